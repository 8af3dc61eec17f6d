package history

import (
	"errors"
	"time"

	"vdcrpt/internal/pipeline"
)

// Status is the terminal state of a recorded run.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Entry is one recorded run.
type Entry struct {
	ID           int64
	JobID        string
	InputPath    string
	OutputPath   string
	Effects      string
	Iterations   int
	Seed         uint64
	SeedKnown    bool
	CacheHit     bool
	Status       Status
	FailureKind  string
	FailureStage string
	Message      string
	StartedAt    time.Time
	Duration     time.Duration
}

// FromRun builds the entry for a finished pipeline job.
func FromRun(job pipeline.Job, res pipeline.Result, err error) Entry {
	entry := Entry{
		JobID:      firstNonEmpty(res.JobID, job.ID),
		InputPath:  job.InputPath,
		OutputPath: job.OutputPath,
		Effects:    job.Pool.String(),
		Iterations: job.Iterations,
		Seed:       res.Seed,
		SeedKnown:  res.SeedKnown,
		CacheHit:   res.CacheHit,
		Status:     StatusDone,
		StartedAt:  res.StartedAt,
		Duration:   res.Elapsed,
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
	}
	if err != nil {
		entry.Status = StatusFailed
		entry.Message = err.Error()
		var pe *pipeline.Error
		if errors.As(err, &pe) {
			entry.FailureKind = string(pe.Kind)
			entry.FailureStage = string(pe.Stage)
		}
	}
	return entry
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
