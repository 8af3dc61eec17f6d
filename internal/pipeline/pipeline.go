package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"vdcrpt/internal/config"
	"vdcrpt/internal/driver"
	"vdcrpt/internal/effects"
	"vdcrpt/internal/fileutil"
	"vdcrpt/internal/fingerprint"
	"vdcrpt/internal/intercache"
	"vdcrpt/internal/logging"
	"vdcrpt/internal/services"
	"vdcrpt/internal/textutil"
	"vdcrpt/internal/transcoder"
)

const cacheRemoveTimeout = 30 * time.Second

// Recorder receives run telemetry. All calls happen on the job's goroutine.
type Recorder interface {
	ObserveStage(stage Stage, d time.Duration)
	ObserveCacheLookup(hit bool)
	ObserveEffect(kind effects.Kind)
	ObserveBuffer(size int)
	// ObserveJob is called once per job; kind is empty on success.
	ObserveJob(kind Kind)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(Stage, time.Duration) {}
func (nopRecorder) ObserveCacheLookup(bool) {}
func (nopRecorder) ObserveEffect(effects.Kind) {}
func (nopRecorder) ObserveBuffer(int) {}
func (nopRecorder) ObserveJob(Kind) {}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger routes pipeline logs through logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.NewComponentLogger(logger, "pipeline")
	}
}

// WithScratchDir sets where corrupted buffers are written before the final
// transcode. Defaults to a vdcrpt directory under os.TempDir.
func WithScratchDir(dir string) Option {
	return func(p *Pipeline) {
		if dir = strings.TrimSpace(dir); dir != "" {
			p.scratchDir = dir
		}
	}
}

// WithCodecs sets the intermediate codec pair used when a job names none.
func WithCodecs(video, audio string) Option {
	return func(p *Pipeline) {
		if video = strings.TrimSpace(video); video != "" {
			p.videoCodec = video
		}
		if audio = strings.TrimSpace(audio); audio != "" {
			p.audioCodec = audio
		}
	}
}

// WithRecorder attaches a telemetry sink.
func WithRecorder(rec Recorder) Option {
	return func(p *Pipeline) {
		if rec != nil {
			p.recorder = rec
		}
	}
}

// Pipeline runs corruption jobs. It is safe for concurrent use; jobs share
// only the cache.
type Pipeline struct {
	cache      *intercache.Manager
	transcoder transcoder.Transcoder
	scratchDir string
	videoCodec string
	audioCodec string
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
}

// New builds a pipeline over cache and tc.
func New(cache *intercache.Manager, tc transcoder.Transcoder, opts ...Option) (*Pipeline, error) {
	if cache == nil {
		return nil, errors.New("pipeline: cache manager required")
	}
	if tc == nil {
		return nil, errors.New("pipeline: transcoder required")
	}
	p := &Pipeline{
		cache:      cache,
		transcoder: tc,
		scratchDir: filepath.Join(os.TempDir(), "vdcrpt"),
		videoCodec: "mpeg4",
		audioCodec: "pcm_mulaw",
		logger:     logging.NewComponentLogger(nil, "pipeline"),
		recorder:   nopRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if fileutil.Within(cache.Root(), p.scratchDir) {
		return nil, fmt.Errorf("pipeline: scratch directory %q must be outside cache directory %q", p.scratchDir, cache.Root())
	}
	return p, nil
}

// NewFromConfig wires a pipeline with the cache and ffmpeg client described by cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	cache, err := intercache.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithLogger(logger),
		WithScratchDir(cfg.Paths.ScratchDir),
		WithCodecs(cfg.Transcoder.VideoCodec, cfg.Transcoder.AudioCodec),
	}
	return New(cache, transcoder.NewFromConfig(cfg, logger), append(base, opts...)...)
}

// Cache returns the cache manager the pipeline resolves intermediates from.
func (p *Pipeline) Cache() *intercache.Manager { return p.cache }

// Corrupt runs job to completion. The returned error, when non-nil, is a
// *Error. Cleanup runs on every path and never changes the outcome.
func (p *Pipeline) Corrupt(ctx context.Context, job Job) (Result, error) {
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	ctx = services.WithJobID(ctx, job.ID)
	r := &run{
		p:      p,
		job:    job,
		logger: logging.WithContext(ctx, p.logger),
		result: Result{
			JobID:      job.ID,
			OutputPath: job.OutputPath,
			Iterations: job.Iterations,
			Durations:  make(map[Stage]time.Duration, len(Stages)),
			StartedAt:  p.now(),
		},
	}

	err := r.execute(ctx)
	r.timed(StageCleanup, func() { r.cleanup(ctx) })
	r.result.Elapsed = p.now().Sub(r.result.StartedAt)

	if err != nil {
		r.result.Stage = err.Stage
		p.recorder.ObserveJob(err.Kind)
		r.logger.Error("corruption failed",
			logging.String(logging.FieldEventType, "job_failed"),
			logging.String(logging.FieldStage, string(err.Stage)),
			logging.String("kind", string(err.Kind)),
			logging.String("pass", err.Pass),
			logging.Duration("elapsed", r.result.Elapsed),
			logging.Error(err.Err),
		)
		return r.result, err
	}
	r.result.Stage = StageDone
	p.recorder.ObserveJob("")
	r.logger.Info("corruption complete",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("output", job.OutputPath),
		logging.Time("started_at", r.result.StartedAt),
		logging.Bool("cache_hit", r.result.CacheHit),
		logging.Int("iterations", job.Iterations),
		logging.Int64("intermediate_bytes", r.result.IntermediateBytes),
		logging.Int("corrupted_bytes", r.result.CorruptedBytes),
		logging.Duration("elapsed", r.result.Elapsed),
	)
	return r.result, nil
}

// run carries the state of one job between stages.
type run struct {
	p      *Pipeline
	job    Job
	logger *slog.Logger
	result Result

	rand        effects.Rand
	videoCodec  string
	audioCodec  string
	cacheKey    string
	cachePath   string
	buf         []byte
	scratchPath string
}

func (r *run) execute(ctx context.Context) *Error {
	steps := []struct {
		stage Stage
		fn    func(context.Context) *Error
	}{
		{StageInit, r.init},
		{StageResolveIntermediate, r.resolve},
		{StageLoadBuffer, r.load},
		{StageApplyEffects, r.apply},
		{StageWriteScratch, r.writeScratch},
		{StageTranscode, r.transcode},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return fail(step.stage, KindCanceled, "", err)
		}
		stageCtx := services.WithStage(ctx, string(step.stage))
		var stageErr *Error
		r.timed(step.stage, func() { stageErr = step.fn(stageCtx) })
		if stageErr != nil {
			return stageErr
		}
	}
	return nil
}

func (r *run) timed(stage Stage, fn func()) {
	started := r.p.now()
	fn()
	elapsed := r.p.now().Sub(started)
	r.result.Durations[stage] = elapsed
	r.p.recorder.ObserveStage(stage, elapsed)
	r.logger.Debug("stage finished", logging.String(logging.FieldStage, string(stage)), logging.Duration("elapsed", elapsed))
}

func (r *run) init(context.Context) *Error {
	job := r.job
	if job.Pool.Empty() {
		return fail(StageInit, KindInvalidEffectParameter, "", fmt.Errorf("%w: effect pool is empty", effects.ErrInvalidParameter))
	}
	if job.Iterations < 0 {
		return fail(StageInit, KindInvalidEffectParameter, "", fmt.Errorf("%w: iterations must be >= 0, got %d", effects.ErrInvalidParameter, job.Iterations))
	}
	if strings.TrimSpace(job.OutputPath) == "" {
		return fail(StageInit, KindInvalidJob, "", services.Wrap(services.ErrValidation, string(StageInit), "job", "output path required", nil))
	}
	if strings.TrimSpace(job.InputPath) == "" {
		return fail(StageInit, KindInputNotFound, "", services.Wrap(services.ErrNotFound, string(StageInit), "job", "input path required", nil))
	}
	info, err := os.Stat(job.InputPath)
	if err != nil {
		return fail(StageInit, KindInputNotFound, "", services.Wrap(services.ErrNotFound, string(StageInit), "stat input", job.InputPath, err))
	}
	if !info.Mode().IsRegular() {
		return fail(StageInit, KindInputNotFound, "", services.Wrap(services.ErrNotFound, string(StageInit), "stat input", job.InputPath, fingerprint.ErrNotRegular))
	}
	if samePath(job.InputPath, job.OutputPath) {
		return fail(StageInit, KindInvalidJob, "", services.Wrap(services.ErrValidation, string(StageInit), "job", "output would overwrite input", nil))
	}

	r.videoCodec = firstNonEmpty(job.VideoCodec, r.p.videoCodec)
	r.audioCodec = firstNonEmpty(job.AudioCodec, r.p.audioCodec)

	switch {
	case job.Rand != nil:
		r.rand = job.Rand
	case job.Seed != nil:
		r.rand = driver.NewRand(*job.Seed)
		r.result.Seed, r.result.SeedKnown = *job.Seed, true
	default:
		seed := driver.RandomSeed()
		r.rand = driver.NewRand(seed)
		r.result.Seed, r.result.SeedKnown = seed, true
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("input", job.InputPath),
		logging.String("output", job.OutputPath),
		logging.Any("effects", job.Pool.Effects()),
		logging.Int("iterations", job.Iterations),
		logging.String("video_codec", r.videoCodec),
		logging.String("audio_codec", r.audioCodec),
		logging.String("retention", job.Retention.String()),
	}
	if r.result.SeedKnown {
		attrs = append(attrs, logging.Uint64("seed", r.result.Seed))
	}
	r.logger.Info("corruption started", logging.Args(attrs...)...)
	return nil
}

func (r *run) resolve(ctx context.Context) *Error {
	fp, err := fingerprint.File(ctx, r.job.InputPath)
	if err != nil {
		return fail(StageResolveIntermediate, KindIOFailed, "", err)
	}
	r.result.Fingerprint = fp
	key := intercache.Key(fp, r.videoCodec, r.audioCodec)

	path, hit, err := r.p.cache.Populate(ctx, key, func(ctx context.Context, tmp string) error {
		return r.p.transcoder.Intermediate(ctx, r.job.InputPath, tmp, r.videoCodec, r.audioCodec, true)
	})
	if err != nil {
		if errors.Is(err, intercache.ErrWriteFailed) {
			return fail(StageResolveIntermediate, KindCacheWriteFailed, "", err)
		}
		return fail(StageResolveIntermediate, KindTranscodeFailed, PassIntermediate, err)
	}
	r.cacheKey = key
	r.cachePath = path
	r.result.CachePath = path
	r.result.CacheHit = hit
	r.p.recorder.ObserveCacheLookup(hit)
	r.logger.Info("intermediate resolved",
		logging.String("cache_key", key),
		logging.String("cache_path", path),
		logging.Bool("cache_hit", hit),
	)
	return nil
}

func (r *run) load(context.Context) *Error {
	buf, err := os.ReadFile(r.cachePath)
	if err != nil {
		return fail(StageLoadBuffer, KindIOFailed, "", fmt.Errorf("read intermediate: %w", err))
	}
	r.buf = buf
	r.result.IntermediateBytes = int64(len(buf))
	return nil
}

func (r *run) apply(ctx context.Context) *Error {
	buf, err := driver.Run(ctx, r.buf, r.job.Pool, r.job.Iterations, r.rand,
		driver.WithLogger(r.logger),
		driver.WithObserver(func(step driver.Step) {
			r.p.recorder.ObserveEffect(step.Effect.Kind)
		}),
	)
	r.buf = buf
	if err != nil {
		kind := KindInvalidEffectParameter
		if errors.Is(err, effects.ErrBufferTooSmall) {
			kind = KindBufferTooSmall
		}
		return fail(StageApplyEffects, kind, "", err)
	}
	r.result.CorruptedBytes = len(buf)
	r.p.recorder.ObserveBuffer(len(buf))
	return nil
}

func (r *run) writeScratch(context.Context) *Error {
	if err := os.MkdirAll(r.p.scratchDir, 0o755); err != nil {
		return fail(StageWriteScratch, KindIOFailed, "", fmt.Errorf("create scratch directory: %w", err))
	}
	name := textutil.FileStem(r.job.InputPath) + "_" + r.job.ID + "." + r.p.cache.Container()
	r.scratchPath = filepath.Join(r.p.scratchDir, name)
	if err := fileutil.WriteFileSync(r.scratchPath, r.buf, 0o644); err != nil {
		return fail(StageWriteScratch, KindIOFailed, "", fmt.Errorf("write scratch: %w", err))
	}
	r.buf = nil
	return nil
}

func (r *run) transcode(ctx context.Context) *Error {
	dir := filepath.Dir(r.job.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(StageTranscode, KindIOFailed, "", fmt.Errorf("create output directory: %w", err))
	}
	// ffmpeg picks the muxer from the extension, so the render keeps it.
	base := filepath.Base(r.job.OutputPath)
	ext := filepath.Ext(base)
	render := filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+"."+r.job.ID+".partial"+ext)

	err := r.p.transcoder.Final(ctx, r.scratchPath, render)
	if err == nil {
		_, err = fileutil.NonEmptyFile(render)
	}
	if err == nil {
		if err = atomic.ReplaceFile(render, r.job.OutputPath); err != nil {
			err = fmt.Errorf("publish output: %w", err)
		}
	}
	if err != nil {
		if removeErr := fileutil.RemoveIfExists(render); removeErr != nil {
			r.logger.Debug("remove partial output failed", logging.Error(removeErr))
		}
		return fail(StageTranscode, KindTranscodeFailed, PassFinal, err)
	}
	return nil
}

func (r *run) cleanup(ctx context.Context) {
	if r.scratchPath != "" {
		if err := fileutil.RemoveIfExists(r.scratchPath); err != nil {
			logging.WarnWithContext(r.logger, "scratch cleanup failed", "scratch_cleanup_failed",
				logging.String("scratch_path", r.scratchPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the file manually"),
				logging.String(logging.FieldImpact, "scratch directory keeps a stale file"),
			)
		}
	}
	if r.job.Retention == DiscardCache && r.cacheKey != "" {
		// Cleanup runs after cancellation too.
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheRemoveTimeout)
		defer cancel()
		if err := r.p.cache.Remove(rmCtx, r.cacheKey); err != nil {
			logging.WarnWithContext(r.logger, "cache discard failed", "cache_discard_failed",
				logging.String("cache_key", r.cacheKey),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run `vdcrpt cache clear`"),
				logging.String(logging.FieldImpact, "intermediate stays cached"),
			)
		} else {
			r.logger.DebugContext(ctx, "discarded cache entry", logging.String("cache_key", r.cacheKey))
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
