// Package worker runs corruption jobs off the caller's goroutine, one at a
// time. A second submission while a job is active is rejected with ErrBusy.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vdcrpt/internal/logging"
	"vdcrpt/internal/pipeline"
)

// ErrBusy reports a submission while another job is running.
var ErrBusy = errors.New("worker: a job is already running")

// Runner executes a job. *pipeline.Pipeline satisfies it.
type Runner interface {
	Corrupt(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// Outcome is the single terminal value delivered for a submitted job.
type Outcome struct {
	Job    pipeline.Job
	Result pipeline.Result
	Err    error
}

// Status describes the active job.
type Status struct {
	JobID      string
	InputPath  string
	OutputPath string
	StartedAt  time.Time
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logging.NewComponentLogger(logger, "worker")
	}
}

// WithCompletion registers fn to run after each job, before its Outcome
// is delivered.
func WithCompletion(fn func(Outcome)) Option {
	return func(w *Worker) {
		w.onComplete = fn
	}
}

// Worker owns at most one running job.
type Worker struct {
	runner     Runner
	logger     *slog.Logger
	onComplete func(Outcome)

	mu     sync.Mutex
	active *active
}

type active struct {
	status Status
	cancel context.CancelFunc
}

// New builds a worker around runner.
func New(runner Runner, opts ...Option) *Worker {
	w := &Worker{
		runner: runner,
		logger: logging.NewComponentLogger(nil, "worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit starts job in the background. The returned channel is buffered,
// receives exactly one Outcome and is then closed. Canceling ctx cancels
// the job.
func (w *Worker) Submit(ctx context.Context, job pipeline.Job) (<-chan Outcome, error) {
	w.mu.Lock()
	if w.active != nil {
		current := w.active.status.JobID
		w.mu.Unlock()
		w.logger.Info("job rejected", logging.String("active_job", current))
		return nil, ErrBusy
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	jobCtx, cancel := context.WithCancel(ctx)
	w.active = &active{
		status: Status{
			JobID:      job.ID,
			InputPath:  job.InputPath,
			OutputPath: job.OutputPath,
			StartedAt:  time.Now(),
		},
		cancel: cancel,
	}
	w.mu.Unlock()

	done := make(chan Outcome, 1)
	go func() {
		defer cancel()
		result, err := w.runner.Corrupt(jobCtx, job)
		outcome := Outcome{Job: job, Result: result, Err: err}

		w.mu.Lock()
		w.active = nil
		w.mu.Unlock()

		if w.onComplete != nil {
			w.onComplete(outcome)
		}
		done <- outcome
		close(done)
	}()
	return done, nil
}

// Cancel aborts the active job. It reports whether a job was running.
func (w *Worker) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return false
	}
	w.logger.Info("job cancel requested", logging.String(logging.FieldJobID, w.active.status.JobID))
	w.active.cancel()
	return true
}

// Busy reports whether a job is running.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active != nil
}

// Current returns the active job, if any.
func (w *Worker) Current() (Status, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return Status{}, false
	}
	return w.active.status, true
}
