package preflight

import (
	"context"

	"vdcrpt/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Failed reports whether any required check in results did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := CheckBinaries([]Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcoder.FFmpegBinary,
			Description: "Required for both transcode passes",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Transcoder.FFprobeBinary,
			Description: "Used by vdcrpt probe",
			Optional:    true,
		},
	})

	results = append(results,
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	)

	if cfg.History.Enabled {
		results = append(results, CheckParentWritable("History database", cfg.HistoryPath()))
	}
	if cfg.Metrics.Textfile != "" {
		results = append(results, CheckParentWritable("Metrics textfile", cfg.Metrics.Textfile))
	}

	if ctx != nil && ctx.Err() != nil {
		results = append(results, Result{Name: "Context", Detail: ctx.Err().Error()})
	}
	return results
}
