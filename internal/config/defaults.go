package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultConfigPath      = "~/.config/vdcrpt/config.toml"
	defaultLogDir          = "~/.local/share/vdcrpt/logs"
	defaultHistoryFile     = "history.db"
	defaultFFmpegBinary    = "ffmpeg"
	defaultFFprobeBinary   = "ffprobe"
	defaultVideoCodec      = "mpeg4"
	defaultAudioCodec      = "pcm_mulaw"
	defaultContainer       = "avi"
	defaultFinalVideoCodec = "libx264"
	defaultFinalAudioCodec = "aac"
	defaultCacheMaxGiB     = 20
	defaultIterations      = 20
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultLogColor        = "auto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Transcoder: Transcoder{
			VideoCodec:      defaultVideoCodec,
			AudioCodec:      defaultAudioCodec,
			Container:       defaultContainer,
			FinalVideoCodec: defaultFinalVideoCodec,
			FinalAudioCodec: defaultFinalAudioCodec,
		},
		Cache: Cache{
			Retain: true,
			MaxGiB: defaultCacheMaxGiB,
		},
		Corruption: Corruption{
			Iterations: defaultIterations,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Color:  defaultLogColor,
		},
		History: History{
			Enabled: true,
		},
	}
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "vdcrpt", "intermediates")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/vdcrpt/intermediates"
	}
	return filepath.Join(home, ".cache", "vdcrpt", "intermediates")
}

func defaultScratchDir() string {
	return filepath.Join(os.TempDir(), "vdcrpt")
}
