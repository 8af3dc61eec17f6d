package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vdcrpt/internal/transcoder"
)

// Kind classifies a failed job.
type Kind string

const (
	KindInputNotFound          Kind = "input_not_found"
	KindTranscodeFailed        Kind = "transcode_failed"
	KindBufferTooSmall         Kind = "buffer_too_small"
	KindCacheWriteFailed       Kind = "cache_write_failed"
	KindInvalidEffectParameter Kind = "invalid_effect_parameter"
	KindInvalidJob             Kind = "invalid_job"
	KindIOFailed               Kind = "io_failed"
	KindCanceled               Kind = "canceled"
)

// Transcode passes reported in Error.Pass.
const (
	PassIntermediate = transcoder.PassIntermediate
	PassFinal        = transcoder.PassFinal
)

// Error is the terminal failure of a job.
type Error struct {
	Kind  Kind
	Stage Stage
	// Pass is set for KindTranscodeFailed.
	Pass string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("pipeline: ")
	b.WriteString(string(e.Kind))
	if e.Pass != "" {
		fmt.Fprintf(&b, " (%s pass)", e.Pass)
	}
	fmt.Fprintf(&b, " during %s", e.Stage)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a pipeline failure, or "" when err is not one.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// StageOf returns the stage a pipeline failure happened in, or "".
func StageOf(err error) Stage {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// fail builds the stage error. Context cancellation wins over the kind the
// stage would otherwise report.
func fail(stage Stage, kind Kind, pass string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCanceled, Stage: stage, Err: err}
	}
	if kind != KindTranscodeFailed {
		pass = ""
	}
	return &Error{Kind: kind, Stage: stage, Pass: pass, Err: err}
}
