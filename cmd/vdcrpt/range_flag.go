package main

import (
	"github.com/spf13/pflag"

	"vdcrpt/internal/effects"
)

// repeatRange is a pflag.Value for "N" or "MIN-MAX" repeat counts.
type repeatRange struct {
	min, max int
}

func newRepeatRange(lo, hi int) *repeatRange {
	return &repeatRange{min: lo, max: hi}
}

func (r *repeatRange) String() string {
	if r == nil {
		return ""
	}
	return effects.FormatRange(r.min, r.max)
}

func (r *repeatRange) Set(value string) error {
	lo, hi, err := effects.ParseRange(value)
	if err != nil {
		return err
	}
	if _, err := effects.Stutter(1, lo, hi); err != nil {
		return err
	}
	r.min, r.max = lo, hi
	return nil
}

func (r *repeatRange) Type() string { return "range" }

var _ pflag.Value = (*repeatRange)(nil)
