package logging

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	logTimestampLayout  = "2006-01-02 15:04:05"
	attrTimestampLayout = "2006-01-02 15:04:05.000"
)

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(logTimestampLayout)
}

// attrString returns the bare text of a header attribute (component, job, stage).
func attrString(v slog.Value) string {
	return v.Resolve().String()
}

// formatField renders one console field. Groups are already flattened and
// LogValuers resolved by the handler. Integer sizes under a *_bytes key of at
// least 1 KiB are shown humanized with the exact count.
func formatField(key string, v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		n := v.Int64()
		if n >= 1024 && strings.HasSuffix(key, "_bytes") {
			return humanize.IBytes(uint64(n)) + " (" + strconv.FormatInt(n, 10) + ")"
		}
		return strconv.FormatInt(n, 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		t := v.Time()
		if t.IsZero() {
			return `""`
		}
		return t.In(time.Local).Format(attrTimestampLayout)
	default:
		// Strings, errors and other values.
		return quoteIfNeeded(v.String())
	}
}

func quoteIfNeeded(s string) string {
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
