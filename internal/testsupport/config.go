package testsupport

import (
	"path/filepath"
	"testing"

	"vdcrpt/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Transcoder.FFmpegBinary = "ffmpeg"
	cfgVal.Transcoder.FFprobeBinary = "ffprobe"
	cfgVal.Logging.Color = "never"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return builder.cfg
}

// WithCacheBudget sets the cache size limit in GiB.
func WithCacheBudget(gib int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.MaxGiB = gib
	}
}

// WithoutCacheRetention disables keeping intermediates between runs.
func WithoutCacheRetention() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Retain = false
	}
}

// WithPreset appends a user preset to the test config.
func WithPreset(p config.Preset) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Presets = append(b.cfg.Presets, p)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CacheDir)
}
