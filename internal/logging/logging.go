// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common field names for structured logging.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status_code"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldBank      = "bank"
	FieldPeriod    = "period"
	FieldFile      = "file"
	FieldBatchID   = "import_batch_id"
	FieldAccounts  = "accounts"
	FieldSeq       = "seq"
)

// Component names.
const (
	ComponentApp      = "app"
	ComponentAPI      = "api"
	ComponentSession  = "session"
	ComponentImport   = "import"
	ComponentPL       = "pl"
	ComponentReview   = "review"
	ComponentSchedule = "schedule"
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates a text or JSON logger writing to w.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(handler), nil
}

// Discard returns a logger that drops everything. Tests and library
// callers that pass no logger get this.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// For returns l tagged with a component, or a discard logger when l is nil.
func For(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With(FieldComponent, component)
}
