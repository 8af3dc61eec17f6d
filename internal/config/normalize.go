package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscoder()
	c.normalizeLogging()
	c.normalizePresets()
	c.Corruption.Preset = strings.TrimSpace(c.Corruption.Preset)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		if value, ok := os.LookupEnv("VDCRPT_CACHE_DIR"); ok && strings.TrimSpace(value) != "" {
			c.Paths.CacheDir = strings.TrimSpace(value)
		} else {
			c.Paths.CacheDir = defaultCacheDir()
		}
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir()
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.History.Path = strings.TrimSpace(c.History.Path)
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.Metrics.Textfile = strings.TrimSpace(c.Metrics.Textfile)
	if c.Metrics.Textfile, err = expandPath(c.Metrics.Textfile); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscoder() {
	t := &c.Transcoder
	t.FFmpegBinary = strings.TrimSpace(t.FFmpegBinary)
	if t.FFmpegBinary == "" {
		t.FFmpegBinary = envOr("VDCRPT_FFMPEG", defaultFFmpegBinary)
	}
	t.FFprobeBinary = strings.TrimSpace(t.FFprobeBinary)
	if t.FFprobeBinary == "" {
		t.FFprobeBinary = envOr("VDCRPT_FFPROBE", defaultFFprobeBinary)
	}
	t.VideoCodec = strings.TrimSpace(t.VideoCodec)
	t.AudioCodec = strings.TrimSpace(t.AudioCodec)
	t.Container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t.Container), "."))
	if t.Container == "" {
		t.Container = defaultContainer
	}
	t.FinalVideoCodec = strings.TrimSpace(t.FinalVideoCodec)
	t.FinalAudioCodec = strings.TrimSpace(t.FinalAudioCodec)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Color = strings.ToLower(strings.TrimSpace(c.Logging.Color))
	if c.Logging.Color == "" {
		c.Logging.Color = defaultLogColor
	}
}

func (c *Config) normalizePresets() {
	for i := range c.Presets {
		p := &c.Presets[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Description = strings.TrimSpace(p.Description)
		effects := p.Effects[:0]
		for _, e := range p.Effects {
			if e = strings.TrimSpace(e); e != "" {
				effects = append(effects, e)
			}
		}
		p.Effects = effects
	}
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
