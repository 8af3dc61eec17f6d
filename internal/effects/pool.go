package effects

import (
	"fmt"
	"strings"
)

// Pool is an immutable, non-empty set of effects selected with uniform
// probability. The zero Pool is empty and rejected by consumers.
type Pool struct {
	effects []Effect
}

// NewPool validates every effect and returns a pool holding copies of them.
func NewPool(effects ...Effect) (Pool, error) {
	if len(effects) == 0 {
		return Pool{}, fmt.Errorf("%w: effect pool is empty", ErrInvalidParameter)
	}
	for i, e := range effects {
		if err := e.Validate(); err != nil {
			return Pool{}, fmt.Errorf("effect %d: %w", i, err)
		}
	}
	return Pool{effects: append([]Effect(nil), effects...)}, nil
}

// ParsePool builds a pool from text-form effects.
func ParsePool(values ...string) (Pool, error) {
	parsed := make([]Effect, 0, len(values))
	for _, value := range values {
		e, err := Parse(value)
		if err != nil {
			return Pool{}, err
		}
		parsed = append(parsed, e)
	}
	return NewPool(parsed...)
}

// Len returns the number of effects in the pool.
func (p Pool) Len() int {
	return len(p.effects)
}

// Empty reports whether the pool holds no effects.
func (p Pool) Empty() bool {
	return len(p.effects) == 0
}

// Effects returns a copy of the pool's members.
func (p Pool) Effects() []Effect {
	return append([]Effect(nil), p.effects...)
}

// Pick draws one effect uniformly. It panics on an empty pool.
func (p Pool) Pick(r Rand) Effect {
	return p.effects[r.IntN(len(p.effects))]
}

// String joins the members' text forms with commas.
func (p Pool) String() string {
	parts := make([]string, len(p.effects))
	for i, e := range p.effects {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
