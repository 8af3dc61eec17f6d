// Package transcoder wraps the external ffmpeg and ffprobe binaries.
//
// The pipeline only sees the Transcoder interface: one call converts an input
// into the intermediate container whose bytes get corrupted, the other renders
// the corrupted scratch file into a playable output. FFmpeg is the production
// implementation; tests substitute testsupport.FakeTranscoder.
//
// Probe decodes ffprobe JSON for the `vdcrpt probe` command.
package transcoder
