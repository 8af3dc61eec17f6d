package driver

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vdcrpt/internal/effects"
	"vdcrpt/internal/testsupport"
)

func mustPool(t *testing.T, values ...string) effects.Pool {
	t.Helper()
	pool, err := effects.ParsePool(values...)
	if err != nil {
		t.Fatalf("ParsePool: %v", err)
	}
	return pool
}

func TestRunAppliesScriptedAddition(t *testing.T) {
	buf := testsupport.Pattern(100)
	want := slices.Clone(buf)
	for i := 40; i < 50; i++ {
		want[i] = byte((int(want[i]) + 5) % 256)
	}

	// pick=0, start=32+8, length=10, then every coin lands on apply.
	r := testsupport.NewScriptedRand(0, 8, 10)
	got, err := Run(context.Background(), buf, mustPool(t, "add:5"), 1, r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("buffer mismatch (-want +got):\n%s", diff)
	}
}

func TestRunZeroIterationsLeavesBuffer(t *testing.T) {
	buf := testsupport.Pattern(64)
	got, err := Run(context.Background(), slices.Clone(buf), mustPool(t, "reverse"), 0, testsupport.NewScriptedRand())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(got, buf) {
		t.Fatal("zero iterations modified the buffer")
	}
}

func TestRunIsReproducibleForSeed(t *testing.T) {
	pool := mustPool(t, "stutter:16:1-4", "reverse", "add:3", "dilate:2", "shift:8")
	seed := func() *rand.Rand { return rand.New(rand.NewPCG(42, 7)) }

	a, err := Run(context.Background(), testsupport.Pattern(4096), pool, 50, seed())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := Run(context.Background(), testsupport.Pattern(4096), pool, 50, seed())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same seed produced different buffers")
	}
	if !bytes.Equal(a[:effects.MinOffset], testsupport.Pattern(effects.MinOffset)) {
		t.Fatal("header bytes changed")
	}
}

func TestRunReportsEveryStep(t *testing.T) {
	var steps []Step
	pool := mustPool(t, "stutter:10:2")
	_, err := Run(context.Background(), testsupport.Pattern(200), pool, 3, rand.New(rand.NewPCG(1, 2)),
		WithObserver(func(s Step) { steps = append(steps, s) }))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	for i, s := range steps {
		if s.Iteration != i || s.Effect.Kind != effects.KindStutter {
			t.Fatalf("unexpected step %+v", s)
		}
		if s.After != s.Before+20 {
			t.Fatalf("step %d: expected growth of 20, got %d -> %d", i, s.Before, s.After)
		}
	}
	if steps[0].Before != 200 || steps[2].After != 260 {
		t.Fatalf("unexpected sizes %+v", steps)
	}
}

func TestRunAbortsOnFirstFailure(t *testing.T) {
	buf := testsupport.Pattern(40)
	pool := mustPool(t, "duplicate:64")
	got, err := Run(context.Background(), slices.Clone(buf), pool, 5, rand.New(rand.NewPCG(3, 4)))
	if !errors.Is(err, effects.ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Iteration != 0 {
		t.Fatalf("expected StepError at iteration 0, got %v", err)
	}
	if !bytes.Equal(got, buf) {
		t.Fatal("failed run modified the buffer")
	}
}

func TestRunStopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rounds := 0
	_, err := Run(ctx, testsupport.Pattern(500), mustPool(t, "reverse"), 100, rand.New(rand.NewPCG(5, 6)),
		WithObserver(func(Step) {
			rounds++
			if rounds == 3 {
				cancel()
			}
		}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rounds != 3 {
		t.Fatalf("expected 3 rounds before stopping, got %d", rounds)
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	if _, err := Run(context.Background(), nil, effects.Pool{}, 1, testsupport.NewScriptedRand()); !errors.Is(err, effects.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for empty pool, got %v", err)
	}
	if _, err := Run(context.Background(), nil, mustPool(t, "log"), -1, testsupport.NewScriptedRand()); !errors.Is(err, effects.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for negative iterations, got %v", err)
	}
}

func TestNewRandIsDeterministic(t *testing.T) {
	a, b := NewRand(99), NewRand(99)
	for range 20 {
		if a.IntN(1000) != b.IntN(1000) {
			t.Fatal("equal seeds diverged")
		}
	}
	if NewRand(1).Uint64() == NewRand(2).Uint64() {
		t.Fatal("distinct seeds produced the same first draw")
	}
}
