package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vdcrpt/internal/config"
	"vdcrpt/internal/effects"
	"vdcrpt/internal/history"
	"vdcrpt/internal/intercache"
	"vdcrpt/internal/logging"
	"vdcrpt/internal/metrics"
	"vdcrpt/internal/pipeline"
	"vdcrpt/internal/presets"
	"vdcrpt/internal/services"
	"vdcrpt/internal/worker"
)

const defaultChunkSize = 5000

type corruptOptions struct {
	preset     string
	effects    []string
	chunkSize  int
	stutter    *repeatRange
	iterations int
	seed       uint64
	videoCodec string
	audioCodec string
	noCache    bool
	overwrite  bool
}

func newCorruptCommand(ctx *commandContext) *cobra.Command {
	opts := &corruptOptions{
		chunkSize: defaultChunkSize,
		stutter:   newRepeatRange(10, 20),
	}

	cmd := &cobra.Command{
		Use:   "corrupt INPUT OUTPUT",
		Short: "Corrupt a video file",
		Long: `Transcode INPUT into a fragile intermediate, mangle its bytes with random
effects, and transcode the result into OUTPUT.

With no effect flags the configured default preset is used, falling back to a
single stutter effect built from --chunk-size and --stutter-range.`,
		Example: `  vdcrpt corrupt in.mp4 out.mp4 --preset "melting chaos"
  vdcrpt corrupt in.mp4 out.mp4 --effect stutter:2000:4-12 --effect reverse --iterations 40
  vdcrpt corrupt in.mp4 out.mp4 --chunk-size 800 --stutter-range 2-6 --seed 42`,
		Args: exactArgs(2, "INPUT", "OUTPUT"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorrupt(cmd, ctx, opts, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.preset, "preset", "p", "", "Named preset (see vdcrpt presets)")
	flags.StringArrayVarP(&opts.effects, "effect", "e", nil, "Effect in text form, repeatable (e.g. stutter:1000:10-90)")
	flags.IntVar(&opts.chunkSize, "chunk-size", defaultChunkSize, "Stutter clip length in bytes")
	flags.Var(opts.stutter, "stutter-range", "Stutter repeat count, N or MIN-MAX")
	flags.IntVarP(&opts.iterations, "iterations", "n", 0, "Effect applications (default from preset or config)")
	flags.Uint64Var(&opts.seed, "seed", 0, "Random seed for a reproducible run")
	flags.StringVar(&opts.videoCodec, "vcodec", "", "Intermediate video codec (default from config)")
	flags.StringVar(&opts.audioCodec, "acodec", "", "Intermediate audio codec (default from config)")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Discard the intermediate after this run")
	flags.BoolVar(&opts.overwrite, "overwrite", false, "Replace OUTPUT if it exists")

	return cmd
}

func runCorrupt(cmd *cobra.Command, ctx *commandContext, opts *corruptOptions, inputArg, outputArg string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.componentLogger("cli")
	if err != nil {
		return err
	}

	input, err := config.ExpandPath(strings.TrimSpace(inputArg))
	if err != nil {
		return services.Wrap(services.ErrValidation, "corrupt", "input", inputArg, err)
	}
	output, err := config.ExpandPath(strings.TrimSpace(outputArg))
	if err != nil {
		return services.Wrap(services.ErrValidation, "corrupt", "output", outputArg, err)
	}
	if !opts.overwrite {
		if _, err := os.Stat(output); err == nil {
			return services.Wrap(services.ErrValidation, "corrupt", "output",
				fmt.Sprintf("%s already exists (use --overwrite to replace it)", output), nil)
		}
	}

	selection, err := resolveSelection(cmd, cfg, opts)
	if err != nil {
		return err
	}

	cache, err := intercache.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	recorder := metrics.New()
	pipe, err := pipeline.New(cache, newTranscoder(cfg, logger),
		pipeline.WithLogger(logger),
		pipeline.WithScratchDir(cfg.Paths.ScratchDir),
		pipeline.WithCodecs(cfg.Transcoder.VideoCodec, cfg.Transcoder.AudioCodec),
		pipeline.WithRecorder(recorder),
	)
	if err != nil {
		return err
	}

	store, err := ctx.openHistory(cmd.Context())
	if err != nil {
		logging.WarnWithContext(logger, "run history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not be recorded"),
			logging.String(logging.FieldErrorHint, "check history.path or set history.enabled = false"),
		)
	}
	if store != nil {
		defer store.Close()
	}

	job := pipeline.Job{
		InputPath:  input,
		OutputPath: output,
		Pool:       selection.pool,
		Iterations: selection.iterations,
		VideoCodec: strings.TrimSpace(opts.videoCodec),
		AudioCodec: strings.TrimSpace(opts.audioCodec),
	}
	if opts.noCache || !cfg.Cache.Retain {
		job.Retention = pipeline.DiscardCache
	}
	if cmd.Flags().Changed("seed") {
		seed := opts.seed
		job.Seed = &seed
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := worker.New(pipe,
		worker.WithLogger(logger),
		worker.WithCompletion(func(o worker.Outcome) {
			finishRun(context.WithoutCancel(runCtx), logger, store, recorder, cfg.Metrics.Textfile, o)
		}),
	)
	done, err := w.Submit(runCtx, job)
	if err != nil {
		return err
	}
	outcome := <-done
	if outcome.Err != nil {
		return outcome.Err
	}

	if ctx.jsonOutput() {
		return writeJSON(cmd, newCorruptReport(outcome, selection.source))
	}
	printCorruptResult(cmd, outcome, selection.source)
	return nil
}

type selection struct {
	pool       effects.Pool
	iterations int
	source     string
}

// resolveSelection picks the effect pool: explicit effects, then explicit
// stutter flags, then --preset or corruption.preset, then the stutter
// defaults.
func resolveSelection(cmd *cobra.Command, cfg *config.Config, opts *corruptOptions) (selection, error) {
	flags := cmd.Flags()
	sel := selection{iterations: cfg.Corruption.Iterations}

	var set []string
	for _, name := range []string{"preset", "effect"} {
		if flags.Changed(name) {
			set = append(set, "--"+name)
		}
	}
	if flags.Changed("chunk-size") || flags.Changed("stutter-range") {
		set = append(set, "--chunk-size/--stutter-range")
	}
	if len(set) > 1 {
		return sel, services.Wrap(services.ErrValidation, "corrupt", "flags",
			fmt.Sprintf("%s cannot be combined", strings.Join(set, " and ")), nil)
	}

	presetName := strings.TrimSpace(opts.preset)
	if presetName == "" && len(opts.effects) == 0 && !flags.Changed("chunk-size") && !flags.Changed("stutter-range") {
		presetName = strings.TrimSpace(cfg.Corruption.Preset)
	}

	switch {
	case len(opts.effects) > 0:
		pool, err := effects.ParsePool(opts.effects...)
		if err != nil {
			return sel, services.Wrap(services.ErrValidation, "corrupt", "effects", "", err)
		}
		sel.pool, sel.source = pool, "effects"
	case presetName != "":
		catalog, err := presets.FromConfig(cfg)
		if err != nil {
			return sel, services.Wrap(services.ErrConfiguration, "corrupt", "presets", "", err)
		}
		p, ok := catalog.Lookup(presetName)
		if !ok {
			return sel, services.Wrap(services.ErrValidation, "corrupt", "preset",
				fmt.Sprintf("unknown preset %q (available: %s)", presetName, strings.Join(catalog.Names(), ", ")), nil)
		}
		sel.pool, sel.source = p.Pool, "preset "+p.Name
		if p.Iterations > 0 {
			sel.iterations = p.Iterations
		}
	default:
		e, err := effects.Stutter(opts.chunkSize, opts.stutter.min, opts.stutter.max)
		if err != nil {
			return sel, services.Wrap(services.ErrValidation, "corrupt", "stutter", "", err)
		}
		pool, err := effects.NewPool(e)
		if err != nil {
			return sel, services.Wrap(services.ErrValidation, "corrupt", "stutter", "", err)
		}
		sel.pool, sel.source = pool, "stutter"
	}

	if flags.Changed("iterations") {
		if opts.iterations < 0 {
			return sel, services.Wrap(services.ErrValidation, "corrupt", "iterations",
				fmt.Sprintf("must be zero or positive, got %d", opts.iterations), nil)
		}
		sel.iterations = opts.iterations
	}
	return sel, nil
}

// finishRun records history and metrics. Failures here only warn.
func finishRun(ctx context.Context, logger *slog.Logger, store *history.Store, recorder *metrics.Recorder, textfile string, o worker.Outcome) {
	if store != nil {
		if _, err := store.Record(ctx, history.FromRun(o.Job, o.Result, o.Err)); err != nil {
			logging.WarnWithContext(logger, "failed to record run history", "history_record_failed",
				logging.String(logging.FieldJobID, o.Result.JobID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "run missing from vdcrpt history"),
			)
		}
	}
	if err := recorder.WriteTextfile(textfile); err != nil {
		logging.WarnWithContext(logger, "failed to write metrics textfile", "metrics_write_failed",
			logging.String("path", textfile),
			logging.Error(err),
			logging.String(logging.FieldImpact, "metrics for this run not exported"),
		)
	}
}

type corruptReport struct {
	JobID             string           `json:"job_id"`
	Input             string           `json:"input"`
	Output            string           `json:"output"`
	Effects           string           `json:"effects"`
	Source            string           `json:"source"`
	Iterations        int              `json:"iterations"`
	Seed              *uint64          `json:"seed,omitempty"`
	Fingerprint       string           `json:"fingerprint"`
	CachePath         string           `json:"cache_path"`
	CacheHit          bool             `json:"cache_hit"`
	Retention         string           `json:"retention"`
	IntermediateBytes int64            `json:"intermediate_bytes"`
	CorruptedBytes    int              `json:"corrupted_bytes"`
	ElapsedMS         int64            `json:"elapsed_ms"`
	StageMS           map[string]int64 `json:"stage_ms"`
}

func newCorruptReport(o worker.Outcome, source string) corruptReport {
	res := o.Result
	report := corruptReport{
		JobID:             res.JobID,
		Input:             o.Job.InputPath,
		Output:            res.OutputPath,
		Effects:           o.Job.Pool.String(),
		Source:            source,
		Iterations:        res.Iterations,
		Fingerprint:       res.Fingerprint,
		CachePath:         res.CachePath,
		CacheHit:          res.CacheHit,
		Retention:         o.Job.Retention.String(),
		IntermediateBytes: res.IntermediateBytes,
		CorruptedBytes:    res.CorruptedBytes,
		ElapsedMS:         res.Elapsed.Milliseconds(),
		StageMS:           make(map[string]int64, len(res.Durations)),
	}
	if res.SeedKnown {
		seed := res.Seed
		report.Seed = &seed
	}
	for stage, d := range res.Durations {
		report.StageMS[string(stage)] = d.Milliseconds()
	}
	return report
}

func printCorruptResult(cmd *cobra.Command, o worker.Outcome, source string) {
	res := o.Result
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", res.OutputPath)
	fmt.Fprintf(out, "  Effects:    %s (%s)\n", o.Job.Pool.String(), source)
	fmt.Fprintf(out, "  Iterations: %d\n", res.Iterations)
	if res.SeedKnown {
		fmt.Fprintf(out, "  Seed:       %d\n", res.Seed)
	}
	cacheState := "miss"
	if res.CacheHit {
		cacheState = "hit"
	}
	if o.Job.Retention == pipeline.DiscardCache {
		cacheState += ", discarded"
	}
	fmt.Fprintf(out, "  Cache:      %s\n", cacheState)
	fmt.Fprintf(out, "  Buffer:     %s intermediate, %s corrupted\n",
		humanize.Bytes(uint64(max(res.IntermediateBytes, 0))),
		humanize.Bytes(uint64(max(res.CorruptedBytes, 0))),
	)
	fmt.Fprintf(out, "  Elapsed:    %s\n", res.Elapsed.Round(time.Millisecond))
}
