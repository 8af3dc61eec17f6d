// Package config loads, normalizes, and validates vdcrpt configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VDCRPT_FFMPEG and VDCRPT_CACHE_DIR. User-defined presets are parsed here so
// a bad effect string fails at load time rather than mid-run.
package config
