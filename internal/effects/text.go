package effects

import (
	"fmt"
	"strconv"
	"strings"
)

// String returns the canonical text form, e.g. "stutter:1000:10-90".
func (e Effect) String() string {
	switch e.Kind {
	case KindMod, KindAdd, KindDilate:
		return fmt.Sprintf("%s:%d", e.Kind, e.Value)
	case KindShift, KindDuplicate:
		return fmt.Sprintf("%s:%d", e.Kind, e.Length)
	case KindStutter:
		return fmt.Sprintf("%s:%d:%s", e.Kind, e.Length, FormatRange(e.Min, e.Max))
	case KindBurst:
		return fmt.Sprintf("%s:%d:%d:%s", e.Kind, e.Count, e.Length, FormatRange(e.Min, e.Max))
	default:
		return string(e.Kind)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e Effect) MarshalText() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using Parse.
func (e *Effect) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Parse reads an effect from its text form and validates it.
//
//	mod:N add:N log sin tan reverse shift:LEN duplicate:LEN
//	stutter:LEN:MIN-MAX dilate:F burst:COUNT:LEN:MIN-MAX
func Parse(value string) (Effect, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	kind := Kind(strings.ToLower(strings.TrimSpace(parts[0])))
	args := parts[1:]
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}

	var (
		e   = Effect{Kind: kind}
		err error
	)
	switch kind {
	case KindLog, KindSin, KindTan, KindReverse:
		err = expectArgs(kind, args, 0)
	case KindMod, KindAdd, KindDilate:
		if err = expectArgs(kind, args, 1); err == nil {
			e.Value, err = parseInt(kind, "value", args[0])
		}
	case KindShift, KindDuplicate:
		if err = expectArgs(kind, args, 1); err == nil {
			e.Length, err = parseInt(kind, "length", args[0])
		}
	case KindStutter:
		if err = expectArgs(kind, args, 2); err == nil {
			if e.Length, err = parseInt(kind, "length", args[0]); err == nil {
				e.Min, e.Max, err = ParseRange(args[1])
			}
		}
	case KindBurst:
		if err = expectArgs(kind, args, 3); err == nil {
			if e.Count, err = parseInt(kind, "count", args[0]); err != nil {
				break
			}
			if e.Length, err = parseInt(kind, "size", args[1]); err != nil {
				break
			}
			e.Min, e.Max, err = ParseRange(args[2])
		}
	case "":
		err = fmt.Errorf("%w: empty effect", ErrInvalidParameter)
	default:
		err = fmt.Errorf("%w: unknown effect %q", ErrInvalidParameter, kind)
	}
	if err != nil {
		return Effect{}, fmt.Errorf("parse effect %q: %w", value, err)
	}
	return validated(e)
}

// ParseRange reads "MIN-MAX" or a single "N" (meaning N-N).
func ParseRange(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	lo, hi, found := strings.Cut(value, "-")
	minValue, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: range %q: %v", ErrInvalidParameter, value, err)
	}
	if !found {
		return minValue, minValue, nil
	}
	maxValue, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: range %q: %v", ErrInvalidParameter, value, err)
	}
	return minValue, maxValue, nil
}

// FormatRange is the inverse of ParseRange.
func FormatRange(lo, hi int) string {
	if lo == hi {
		return strconv.Itoa(lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

func expectArgs(kind Kind, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrInvalidParameter, kind, n, len(args))
	}
	return nil
}

func parseInt(kind Kind, name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s %q is not an integer", ErrInvalidParameter, kind, name, value)
	}
	return n, nil
}
