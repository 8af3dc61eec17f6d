// Package services defines shared utilities consumed by the corruption
// pipeline, its external tool adapters, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs and stage names for logging.
//   - Structured error markers plus the Wrap helper, and ExitCode which maps
//     those markers to process exit statuses.
//
// Use these helpers when wiring new stage logic so failures stay classified
// the same way across the pipeline and the command line.
package services
