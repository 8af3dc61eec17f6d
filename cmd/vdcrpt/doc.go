// Package main hosts the vdcrpt CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration, builds the corruption
// pipeline and hands single jobs to the worker. Cache, history, preset and
// preflight inspection commands sit alongside "corrupt" so the same config
// and logging setup serves all of them.
//
// Keep this package thin: behavior belongs in internal packages and is only
// surfaced here through flags and rendering.
package main
