package effects

import (
	"bytes"
	"fmt"
)

// Rand is the entropy source consumed by effects. *math/rand/v2.Rand
// satisfies it. IntN returns a value in [0, n).
type Rand interface {
	IntN(n int) int
}

// Region is a contiguous span of a buffer selected for mutation. Bytes is a
// copy of the span taken when the region was drawn.
type Region struct {
	Start  int
	Length int
	Bytes  []byte
}

// End returns the exclusive end offset of the region.
func (r Region) End() int {
	return r.Start + r.Length
}

// RandomSlice draws a region whose start is uniform in [MinOffset, len(buf)]
// and whose length is uniform in [0, len(buf)-start].
func RandomSlice(buf []byte, r Rand) (Region, error) {
	if len(buf) < MinOffset {
		return Region{}, tooSmall(len(buf), MinOffset)
	}
	start := between(r, MinOffset, len(buf))
	length := between(r, 0, len(buf)-start)
	return Region{
		Start:  start,
		Length: length,
		Bytes:  bytes.Clone(buf[start : start+length]),
	}, nil
}

// clipStart draws the start of a fixed-length clip so the whole clip lies
// past the header and inside the buffer.
func clipStart(buf []byte, length int, r Rand) (int, error) {
	need := MinOffset + length
	if len(buf) < need {
		return 0, tooSmall(len(buf), need)
	}
	return between(r, MinOffset, len(buf)-length), nil
}

// between returns a uniform value in the inclusive range [lo, hi].
func between(r Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

// coin returns true with probability 1/2.
func coin(r Rand) bool {
	return r.IntN(2) == 0
}

func tooSmall(have, need int) error {
	return fmt.Errorf("%w: %d bytes, need at least %d", ErrBufferTooSmall, have, need)
}
