package effects

import (
	"bytes"
	"math"
	"slices"
	"sort"
)

// Apply runs e against buf and returns the resulting buffer. Effects that
// change the buffer length may reallocate, so callers must use the returned
// slice. On error the original buffer is returned unchanged.
func Apply(buf []byte, e Effect, r Rand) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return buf, err
	}
	switch e.Kind {
	case KindMod:
		m := e.Value
		return eachByte(buf, r, func(b byte) (int, bool) { return int(b) % m, true })
	case KindAdd:
		inc := e.Value % 256
		return eachByte(buf, r, func(b byte) (int, bool) { return int(b) + inc, true })
	case KindLog:
		return eachByte(buf, r, numeric(math.Log))
	case KindSin:
		return eachByte(buf, r, numeric(math.Sin))
	case KindTan:
		return eachByte(buf, r, numeric(math.Tan))
	case KindReverse:
		return reverse(buf, r)
	case KindShift:
		return shift(buf, e.Length, r)
	case KindDuplicate:
		return duplicate(buf, e.Length, r)
	case KindStutter:
		return stutter(buf, e.Length, e.Min, e.Max, r)
	case KindDilate:
		return dilate(buf, e.Value, r)
	case KindBurst:
		return burst(buf, e.Count, e.Length, e.Min, e.Max, r)
	}
	// Validate rejects unknown kinds.
	return buf, nil
}

// eachByte replaces each byte of a random slice, with probability 1/2, by
// f(byte) reduced modulo 256. f may decline a byte by returning false.
func eachByte(buf []byte, r Rand, f func(byte) (int, bool)) ([]byte, error) {
	region, err := RandomSlice(buf, r)
	if err != nil {
		return buf, err
	}
	for i := region.Start; i < region.End(); i++ {
		if !coin(r) {
			continue
		}
		v, ok := f(buf[i])
		if !ok {
			continue
		}
		buf[i] = wrapByte(v)
	}
	return buf, nil
}

// numeric adapts a float function to eachByte. The result is truncated
// toward zero; NaN and infinities leave the byte untouched.
func numeric(f func(float64) float64) func(byte) (int, bool) {
	return func(b byte) (int, bool) {
		v := math.Trunc(f(float64(b)))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(math.Mod(v, 256)), true
	}
}

func wrapByte(v int) byte {
	v %= 256
	if v < 0 {
		v += 256
	}
	return byte(v)
}

func reverse(buf []byte, r Rand) ([]byte, error) {
	region, err := RandomSlice(buf, r)
	if err != nil {
		return buf, err
	}
	slices.Reverse(buf[region.Start:region.End()])
	return buf, nil
}

func shift(buf []byte, length int, r Rand) ([]byte, error) {
	start, err := clipStart(buf, length, r)
	if err != nil {
		return buf, err
	}
	clip := bytes.Clone(buf[start : start+length])
	buf = slices.Delete(buf, start, start+length)
	at := between(r, MinOffset, len(buf))
	return slices.Insert(buf, at, clip...), nil
}

func duplicate(buf []byte, length int, r Rand) ([]byte, error) {
	start, err := clipStart(buf, length, r)
	if err != nil {
		return buf, err
	}
	clip := bytes.Clone(buf[start : start+length])
	at := between(r, MinOffset, len(buf))
	return slices.Insert(buf, at, clip...), nil
}

func stutter(buf []byte, length, minRepeats, maxRepeats int, r Rand) ([]byte, error) {
	start, err := clipStart(buf, length, r)
	if err != nil {
		return buf, err
	}
	repeats := between(r, minRepeats, maxRepeats)
	if repeats == 0 {
		return buf, nil
	}
	if err := checkGrowth(KindStutter, len(buf), length, repeats); err != nil {
		return buf, err
	}
	trail := bytes.Repeat(buf[start:start+length], repeats)
	return slices.Insert(buf, start, trail...), nil
}

func dilate(buf []byte, factor int, r Rand) ([]byte, error) {
	region, err := RandomSlice(buf, r)
	if err != nil {
		return buf, err
	}
	if factor == 1 || region.Length == 0 {
		return buf, nil
	}
	if err := checkGrowth(KindDilate, len(buf), region.Length, factor-1); err != nil {
		return buf, err
	}
	expanded := make([]byte, 0, region.Length*factor)
	for _, b := range region.Bytes {
		for range factor {
			expanded = append(expanded, b)
		}
	}
	return slices.Replace(buf, region.Start, region.End(), expanded...), nil
}

// burst writes the buffer out once, emitting repeats of the chunk found at
// each sorted position before continuing from that position.
func burst(buf []byte, count, size, minRepeats, maxRepeats int, r Rand) ([]byte, error) {
	if len(buf) < MinOffset+size {
		return buf, tooSmall(len(buf), MinOffset+size)
	}
	repeats := make([]int, count)
	total := 0
	for i := range repeats {
		repeats[i] = between(r, minRepeats, maxRepeats)
		total += repeats[i]
	}
	positions := make([]int, count)
	for i := range positions {
		positions[i] = between(r, MinOffset, len(buf)-size)
	}
	sort.Ints(positions)
	if err := checkGrowth(KindBurst, len(buf), size, total); err != nil {
		return buf, err
	}

	out := make([]byte, 0, len(buf)+total*size)
	last := 0
	for i, pos := range positions {
		out = append(out, buf[last:pos]...)
		chunk := buf[pos : pos+size]
		for range repeats[i] {
			out = append(out, chunk...)
		}
		last = pos
	}
	return append(out, buf[last:]...), nil
}
