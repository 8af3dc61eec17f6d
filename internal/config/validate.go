package config

import (
	"errors"
	"fmt"
	"strings"

	"vdcrpt/internal/effects"
	"vdcrpt/internal/fileutil"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateCorruption(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validatePresets()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	if fileutil.Within(c.Paths.CacheDir, c.Paths.ScratchDir) {
		return errors.New("paths.scratch_dir must not be paths.cache_dir or inside it")
	}
	if c.History.Enabled && c.HistoryPath() == defaultHistoryFile {
		return errors.New("history.path or paths.log_dir must be set when history.enabled is true")
	}
	return nil
}

func (c *Config) validateTranscoder() error {
	for key, value := range map[string]string{
		"transcoder.ffmpeg":            c.Transcoder.FFmpegBinary,
		"transcoder.ffprobe":           c.Transcoder.FFprobeBinary,
		"transcoder.video_codec":       c.Transcoder.VideoCodec,
		"transcoder.audio_codec":       c.Transcoder.AudioCodec,
		"transcoder.final_video_codec": c.Transcoder.FinalVideoCodec,
		"transcoder.final_audio_codec": c.Transcoder.FinalAudioCodec,
	} {
		if value == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	for _, r := range c.Transcoder.Container {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return fmt.Errorf("transcoder.container %q must be a plain file extension", c.Transcoder.Container)
		}
	}
	if c.Transcoder.TimeoutSeconds < 0 {
		return errors.New("transcoder.timeout_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxGiB < 0 {
		return errors.New("cache.max_gib must be zero (unlimited) or positive")
	}
	return nil
}

func (c *Config) validateCorruption() error {
	if c.Corruption.Iterations < 0 {
		return errors.New("corruption.iterations must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	switch c.Logging.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("logging.color %q must be auto, always, or never", c.Logging.Color)
	}
	return nil
}

func (c *Config) validatePresets() error {
	seen := make(map[string]struct{}, len(c.Presets))
	for i, p := range c.Presets {
		if p.Name == "" {
			return fmt.Errorf("presets[%d].name must be set", i)
		}
		key := strings.ToLower(p.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("presets[%d]: duplicate preset name %q", i, p.Name)
		}
		seen[key] = struct{}{}
		if p.Iterations < 0 {
			return fmt.Errorf("preset %q: iterations must be zero or positive", p.Name)
		}
		if len(p.Effects) == 0 {
			return fmt.Errorf("preset %q: effects must not be empty", p.Name)
		}
		if _, err := effects.ParsePool(p.Effects...); err != nil {
			return fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return nil
}
