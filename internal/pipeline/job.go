package pipeline

import (
	"time"

	"vdcrpt/internal/effects"
)

// Stage names a step of a job.
type Stage string

const (
	StageInit                Stage = "init"
	StageResolveIntermediate Stage = "resolve_intermediate"
	StageLoadBuffer          Stage = "load_buffer"
	StageApplyEffects        Stage = "apply_effects"
	StageWriteScratch        Stage = "write_scratch"
	StageTranscode           Stage = "transcode"
	StageCleanup             Stage = "cleanup"
	StageDone                Stage = "done"
)

// Stages lists the working stages in execution order.
var Stages = []Stage{
	StageInit,
	StageResolveIntermediate,
	StageLoadBuffer,
	StageApplyEffects,
	StageWriteScratch,
	StageTranscode,
	StageCleanup,
}

// Retention controls what happens to the cache entry after a run.
type Retention int

const (
	// RetainCache keeps the intermediate for later runs on the same input.
	RetainCache Retention = iota
	// DiscardCache removes the entry resolved for this run during cleanup.
	DiscardCache
)

func (r Retention) String() string {
	if r == DiscardCache {
		return "discard"
	}
	return "retain"
}

// Job is one corruption request.
type Job struct {
	// ID is assigned when empty.
	ID         string
	InputPath  string
	OutputPath string
	Pool       effects.Pool
	Iterations int
	// VideoCodec and AudioCodec select the intermediate encoding. Empty
	// values fall back to the pipeline defaults.
	VideoCodec string
	AudioCodec string
	Retention  Retention
	// Seed makes the run reproducible. Ignored when Rand is set.
	Seed *uint64
	// Rand injects a random source directly, mainly for tests.
	Rand effects.Rand
}

// Result describes a finished run. On failure it holds whatever was known
// when the job stopped.
type Result struct {
	JobID       string
	OutputPath  string
	Fingerprint string
	CachePath   string
	CacheHit    bool
	// Seed is the seed actually used; SeedKnown is false when the job
	// supplied its own random source.
	Seed              uint64
	SeedKnown         bool
	IntermediateBytes int64
	CorruptedBytes    int
	Iterations        int
	// Stage is StageDone on success or the stage that failed.
	Stage     Stage
	Durations map[Stage]time.Duration
	StartedAt time.Time
	Elapsed   time.Duration
}
