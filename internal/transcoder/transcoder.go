package transcoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"vdcrpt/internal/config"
	"vdcrpt/internal/logging"
	"vdcrpt/internal/services"
)

var commandContext = exec.CommandContext

// Pass names used in errors and logs.
const (
	PassIntermediate = "intermediate"
	PassFinal        = "final"
)

// Transcoder converts between the input, intermediate and output formats.
type Transcoder interface {
	// Intermediate converts input into the intermediate container using the
	// given codec pair. overwrite controls whether an existing output is replaced.
	Intermediate(ctx context.Context, input, output, videoCodec, audioCodec string, overwrite bool) error
	// Final renders the (corrupted) intermediate at input into output.
	Final(ctx context.Context, input, output string) error
}

// Option configures the ffmpeg client.
type Option func(*FFmpeg)

// WithBinary overrides the ffmpeg binary.
func WithBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary = strings.TrimSpace(binary); binary != "" {
			f.binary = binary
		}
	}
}

// WithProbeBinary overrides the ffprobe binary.
func WithProbeBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary = strings.TrimSpace(binary); binary != "" {
			f.probeBinary = binary
		}
	}
}

// WithContainer sets the intermediate container format (default "avi").
func WithContainer(format string) Option {
	return func(f *FFmpeg) {
		if format = strings.TrimPrefix(strings.TrimSpace(format), "."); format != "" {
			f.container = format
		}
	}
}

// WithFinalCodecs sets the codecs of the rendered output.
func WithFinalCodecs(video, audio string) Option {
	return func(f *FFmpeg) {
		if video = strings.TrimSpace(video); video != "" {
			f.finalVideo = video
		}
		if audio = strings.TrimSpace(audio); audio != "" {
			f.finalAudio = audio
		}
	}
}

// WithTimeout bounds each ffmpeg invocation. Zero leaves only ctx in charge.
func WithTimeout(d time.Duration) Option {
	return func(f *FFmpeg) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) {
		f.logger = logging.NewComponentLogger(logger, "transcoder")
	}
}

// FFmpeg runs both passes through the ffmpeg CLI.
type FFmpeg struct {
	binary      string
	probeBinary string
	container   string
	finalVideo  string
	finalAudio  string
	timeout     time.Duration
	logger      *slog.Logger
}

// New constructs an ffmpeg client using defaults.
func New(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		binary:      "ffmpeg",
		probeBinary: "ffprobe",
		container:   "avi",
		finalVideo:  "libx264",
		finalAudio:  "aac",
		logger:      logging.NewComponentLogger(nil, "transcoder"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFromConfig builds a client from the transcoder section of cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *FFmpeg {
	t := cfg.Transcoder
	return New(
		WithBinary(t.FFmpegBinary),
		WithProbeBinary(t.FFprobeBinary),
		WithContainer(t.Container),
		WithFinalCodecs(t.FinalVideoCodec, t.FinalAudioCodec),
		WithTimeout(time.Duration(t.TimeoutSeconds)*time.Second),
		WithLogger(logger),
	)
}

// Binary returns the ffmpeg binary in use.
func (f *FFmpeg) Binary() string { return f.binary }

// ProbeBinary returns the ffprobe binary in use.
func (f *FFmpeg) ProbeBinary() string { return f.probeBinary }

// Intermediate implements Transcoder.
func (f *FFmpeg) Intermediate(ctx context.Context, input, output, videoCodec, audioCodec string, overwrite bool) error {
	if err := requirePaths(PassIntermediate, input, output); err != nil {
		return err
	}
	videoCodec = strings.TrimSpace(videoCodec)
	audioCodec = strings.TrimSpace(audioCodec)
	if videoCodec == "" || audioCodec == "" {
		return services.Wrap(services.ErrValidation, PassIntermediate, "args", "video and audio codec required", nil)
	}
	args := f.IntermediateArgs(input, output, videoCodec, audioCodec, overwrite)
	return f.run(ctx, PassIntermediate, args)
}

// Final implements Transcoder. An existing output is always replaced; callers
// decide beforehand whether that is acceptable.
func (f *FFmpeg) Final(ctx context.Context, input, output string) error {
	if err := requirePaths(PassFinal, input, output); err != nil {
		return err
	}
	return f.run(ctx, PassFinal, f.FinalArgs(input, output))
}

// IntermediateArgs returns the ffmpeg arguments for the first pass.
func (f *FFmpeg) IntermediateArgs(input, output, videoCodec, audioCodec string, overwrite bool) []string {
	return []string{
		overwriteFlag(overwrite),
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-c:v", videoCodec,
		"-c:a", audioCodec,
		"-f", f.container,
		output,
	}
}

// FinalArgs returns the ffmpeg arguments for the render pass. Timestamps are
// regenerated because corruption leaves them inconsistent.
func (f *FFmpeg) FinalArgs(input, output string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-fflags", "+genpts",
		"-i", input,
		"-map_metadata", "-1",
		"-c:v", f.finalVideo,
		"-c:a", f.finalAudio,
		output,
	}
}

func (f *FFmpeg) run(ctx context.Context, pass string, args []string) error {
	runCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, f.logger)
	logger.Debug("ffmpeg starting", logging.String("pass", pass), logging.String("args", strings.Join(args, " ")))
	started := time.Now()

	cmd := commandContext(runCtx, f.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg %s: %w", pass, ctxErr)
		}
		detail := firstLine(output)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, pass, "ffmpeg", fmt.Sprintf("exceeded %s", f.timeout), err)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrExternalTool, pass, "ffmpeg", fmt.Sprintf("binary %q not found", f.binary), err)
		}
		return services.Wrap(services.ErrExternalTool, pass, "ffmpeg", detail, err)
	}
	logger.Info("ffmpeg finished",
		logging.String("pass", pass),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func requirePaths(pass, input, output string) error {
	if strings.TrimSpace(input) == "" {
		return services.Wrap(services.ErrValidation, pass, "args", "input path required", nil)
	}
	if strings.TrimSpace(output) == "" {
		return services.Wrap(services.ErrValidation, pass, "args", "output path required", nil)
	}
	return nil
}

func overwriteFlag(overwrite bool) string {
	if overwrite {
		return "-y"
	}
	return "-n"
}

// firstLine trims ffmpeg output to its first non-empty line.
func firstLine(output []byte) string {
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return "exited with error"
}

var _ Transcoder = (*FFmpeg)(nil)
