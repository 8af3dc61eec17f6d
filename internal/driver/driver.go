// Package driver applies randomly selected effects to a buffer for a fixed
// number of rounds.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"vdcrpt/internal/effects"
	"vdcrpt/internal/logging"
)

// Step describes one completed round.
type Step struct {
	Iteration int
	Effect    effects.Effect
	// Before and After are the buffer lengths around the round.
	Before int
	After  int
}

// StepError reports the round that aborted a run.
type StepError struct {
	Iteration int
	Effect    effects.Effect
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("iteration %d (%s): %v", e.Iteration, e.Effect, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Option configures a run.
type Option func(*runner)

// WithObserver registers fn to be called after every successful round.
func WithObserver(fn func(Step)) Option {
	return func(r *runner) {
		r.observer = fn
	}
}

// WithLogger attaches a logger for run summaries.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRand returns the deterministic source for seed. Runs with the same seed,
// input and pool produce identical bytes.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RandomSeed draws a fresh seed for runs that did not ask for one.
func RandomSeed() uint64 {
	return rand.Uint64()
}

type runner struct {
	observer func(Step)
	logger   *slog.Logger
}

// Run performs iterations rounds; each picks one effect from pool uniformly
// and applies it to the output of the previous round. Rounds are strictly
// sequential. The first failing round aborts the run with a *StepError and
// the buffer as it stood before that round. ctx is checked before each round.
func Run(ctx context.Context, buf []byte, pool effects.Pool, iterations int, r effects.Rand, opts ...Option) ([]byte, error) {
	run := runner{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&run)
	}
	if pool.Empty() {
		return buf, fmt.Errorf("driver: %w: effect pool is empty", effects.ErrInvalidParameter)
	}
	if iterations < 0 {
		return buf, fmt.Errorf("driver: %w: iterations must be >= 0, got %d", effects.ErrInvalidParameter, iterations)
	}

	logger := logging.WithContext(ctx, run.logger)
	started := time.Now()
	initial := len(buf)
	for i := range iterations {
		if err := ctx.Err(); err != nil {
			return buf, fmt.Errorf("driver: stopped after %d of %d iterations: %w", i, iterations, err)
		}
		effect := pool.Pick(r)
		before := len(buf)
		next, err := effects.Apply(buf, effect, r)
		if err != nil {
			return buf, &StepError{Iteration: i, Effect: effect, Err: err}
		}
		buf = next
		if run.observer != nil {
			run.observer(Step{Iteration: i, Effect: effect, Before: before, After: len(buf)})
		}
	}
	attrs := []logging.Attr{
		logging.Int("iterations", iterations),
		logging.Int("pool_size", pool.Len()),
		logging.Int("start_bytes", initial),
		logging.Int("end_bytes", len(buf)),
		logging.Duration("elapsed", time.Since(started)),
	}
	if initial > 0 {
		attrs = append(attrs, logging.Float64("growth", float64(len(buf))/float64(initial)))
	}
	logger.Debug("effects applied", logging.Args(attrs...)...)
	return buf, nil
}
