// Package pipeline runs one corruption job end to end.
//
// A job moves through a fixed sequence of stages:
//
//	init → resolve_intermediate → load_buffer → apply_effects →
//	write_scratch → transcode → cleanup → done
//
// Any stage may fail, which skips the remaining work but still runs cleanup.
// The intermediate comes from the shared intercache; the corrupted bytes are
// written to a per-job scratch file, never to the cache entry itself.
//
// Failures are reported as *Error, carrying the Kind and Stage so callers can
// branch with errors.As. The wrapped cause stays reachable through errors.Is.
package pipeline
