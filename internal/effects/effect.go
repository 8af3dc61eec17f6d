package effects

import (
	"errors"
	"fmt"
)

// MinOffset is the number of leading bytes reserved for container headers.
// No effect draws a region or insertion point below it.
const MinOffset = 32

// Parameter ceilings. They keep every clip length times repeat product far
// below the int range.
const (
	MaxClipLength = 1 << 30
	MaxRepeats    = 1 << 16
	MaxBurstCount = 1 << 16
	MaxDilate     = 1 << 16
)

// maxBufferSize caps how far a growing effect may enlarge a buffer.
var maxBufferSize = 1 << 34

var (
	// ErrBufferTooSmall reports that a buffer is too short for an effect to
	// draw a region from it.
	ErrBufferTooSmall = errors.New("buffer too small")
	// ErrInvalidParameter reports an effect constructed with out-of-range
	// parameters.
	ErrInvalidParameter = errors.New("invalid effect parameter")
)

// Kind identifies an effect operator.
type Kind string

const (
	KindMod       Kind = "mod"
	KindAdd       Kind = "add"
	KindLog       Kind = "log"
	KindSin       Kind = "sin"
	KindTan       Kind = "tan"
	KindReverse   Kind = "reverse"
	KindShift     Kind = "shift"
	KindDuplicate Kind = "duplicate"
	KindStutter   Kind = "stutter"
	KindDilate    Kind = "dilate"
	KindBurst     Kind = "burst"
)

// Kinds lists every supported operator in display order.
func Kinds() []Kind {
	return []Kind{
		KindMod, KindAdd, KindLog, KindSin, KindTan,
		KindReverse, KindShift, KindDuplicate, KindStutter, KindDilate, KindBurst,
	}
}

// Effect describes one corruption operator and its parameters. Which fields
// are meaningful depends on Kind:
//
//	mod        Value = divisor (1..256)
//	add        Value = increment (wraps mod 256)
//	dilate     Value = factor (> 0)
//	shift      Length = clip length
//	duplicate  Length = clip length
//	stutter    Length = clip length, Min..Max = repeat count
//	burst      Count = positions, Length = chunk size, Min..Max = repeats
//
// log, sin, tan and reverse take no parameters.
type Effect struct {
	Kind   Kind `json:"kind"`
	Value  int  `json:"value,omitempty"`
	Length int  `json:"length,omitempty"`
	Min    int  `json:"min,omitempty"`
	Max    int  `json:"max,omitempty"`
	Count  int  `json:"count,omitempty"`
}

// Mod replaces bytes with b % m. m must be in (0, 256].
func Mod(m int) (Effect, error) {
	return validated(Effect{Kind: KindMod, Value: m})
}

// Add replaces bytes with (b + i) mod 256.
func Add(i int) Effect {
	return Effect{Kind: KindAdd, Value: i}
}

// Log replaces bytes with trunc(ln b) mod 256.
func Log() Effect { return Effect{Kind: KindLog} }

// Sin replaces bytes with trunc(sin b) mod 256.
func Sin() Effect { return Effect{Kind: KindSin} }

// Tan replaces bytes with trunc(tan b) mod 256.
func Tan() Effect { return Effect{Kind: KindTan} }

// Reverse reverses the byte order of a random slice.
func Reverse() Effect { return Effect{Kind: KindReverse} }

// Shift moves a clip of the given length to another offset.
func Shift(length int) (Effect, error) {
	return validated(Effect{Kind: KindShift, Length: length})
}

// Duplicate copies a clip of the given length to another offset.
func Duplicate(length int) (Effect, error) {
	return validated(Effect{Kind: KindDuplicate, Length: length})
}

// Stutter repeats a clip in place between minRepeats and maxRepeats times.
func Stutter(length, minRepeats, maxRepeats int) (Effect, error) {
	return validated(Effect{Kind: KindStutter, Length: length, Min: minRepeats, Max: maxRepeats})
}

// Dilate expands every byte of a random slice into factor copies.
func Dilate(factor int) (Effect, error) {
	return validated(Effect{Kind: KindDilate, Value: factor})
}

// Burst repeats count fixed-size chunks at sorted random positions in a
// single pass, each between minRepeats and maxRepeats times.
func Burst(count, size, minRepeats, maxRepeats int) (Effect, error) {
	return validated(Effect{Kind: KindBurst, Count: count, Length: size, Min: minRepeats, Max: maxRepeats})
}

func validated(e Effect) (Effect, error) {
	if err := e.Validate(); err != nil {
		return Effect{}, err
	}
	return e, nil
}

// Validate reports whether the effect's parameters are in range.
func (e Effect) Validate() error {
	switch e.Kind {
	case KindMod:
		if e.Value <= 0 || e.Value > 256 {
			return invalid(e.Kind, "divisor must be in range (0, 256], got %d", e.Value)
		}
	case KindAdd, KindLog, KindSin, KindTan, KindReverse:
	case KindShift, KindDuplicate:
		return validateLength(e.Kind, "clip length", e.Length)
	case KindStutter:
		if err := validateLength(e.Kind, "clip length", e.Length); err != nil {
			return err
		}
		return validateRange(e.Kind, e.Min, e.Max)
	case KindDilate:
		if e.Value <= 0 || e.Value > MaxDilate {
			return invalid(e.Kind, "factor must be in range (0, %d], got %d", MaxDilate, e.Value)
		}
	case KindBurst:
		if e.Count <= 0 || e.Count > MaxBurstCount {
			return invalid(e.Kind, "burst count must be in range (0, %d], got %d", MaxBurstCount, e.Count)
		}
		if err := validateLength(e.Kind, "chunk size", e.Length); err != nil {
			return err
		}
		return validateRange(e.Kind, e.Min, e.Max)
	case "":
		return fmt.Errorf("%w: effect kind is empty", ErrInvalidParameter)
	default:
		return fmt.Errorf("%w: unknown effect kind %q", ErrInvalidParameter, e.Kind)
	}
	return nil
}

func validateRange(kind Kind, lo, hi int) error {
	if lo < 0 {
		return invalid(kind, "minimum repeats must be >= 0, got %d", lo)
	}
	if hi < lo {
		return invalid(kind, "maximum repeats %d is below minimum %d", hi, lo)
	}
	if hi > MaxRepeats {
		return invalid(kind, "maximum repeats must be <= %d, got %d", MaxRepeats, hi)
	}
	return nil
}

func validateLength(kind Kind, what string, n int) error {
	if n <= 0 || n > MaxClipLength {
		return invalid(kind, "%s must be in range (0, %d], got %d", what, MaxClipLength, n)
	}
	return nil
}

// checkGrowth rejects adding times copies of unit bytes to a buffer of have
// bytes when the result would pass maxBufferSize.
func checkGrowth(kind Kind, have, unit, times int) error {
	if unit <= 0 || times <= 0 {
		return nil
	}
	if have > maxBufferSize || times > (maxBufferSize-have)/unit {
		return invalid(kind, "growing a %d byte buffer by %d x %d bytes exceeds %d bytes", have, times, unit, maxBufferSize)
	}
	return nil
}

func invalid(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, kind, fmt.Sprintf(format, args...))
}
