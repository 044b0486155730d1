package logging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mediaflow/internal/services"
)

type Attr = slog.Attr

const (
	// FieldErrorKind carries the classified marker of a logged error.
	FieldErrorKind = "error_kind"

	defaultErrorHint = "check logs for details"
)

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Duration renders d rounded to milliseconds; encoder runs and backoffs never
// need finer resolution in logs.
func Duration(key string, d time.Duration) Attr {
	return slog.String(key, d.Round(time.Millisecond).String())
}

// Attempt records a job attempt against its budget, e.g. "2/3".
func Attempt(n, limit int) Attr {
	return slog.String("attempt", fmt.Sprintf("%d/%d", n, limit))
}

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// ErrorKind labels err with its classification marker (validation, not_found,
// external_tool, ...).
func ErrorKind(err error) Attr {
	return slog.String(FieldErrorKind, services.Kind(err))
}

// hintForKind maps an error classification to the operator's next step.
var hintForKind = map[string]string{
	"validation":         "correct the request and submit again",
	"not_found":          "check the id; it may have been removed",
	"invalid_transition": "consult the workflow transition table",
	"invalid_state":      "check the current status before retrying",
	"configuration":      "fix the mediaflow config or install the missing tool",
	"external_tool":      "inspect the tool output captured in the error",
	"media_processing":   "check the source file; it may be corrupt or unsupported",
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger creates a logger with a standardized component attribute.
// If logger is nil, a no-op logger is used as the base.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// WarnWithContext logs a warning with enforced event_type and error_hint fields.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logEvent(logger, slog.LevelWarn, msg, eventType, attrs)
}

// ErrorWithContext logs an error with enforced event_type and error_hint fields.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logEvent(logger, slog.LevelError, msg, eventType, attrs)
}

// logEvent fills event_type, error_kind and error_hint when the caller did not.
// The kind and a matching hint are derived from an "error" attribute.
func logEvent(logger *slog.Logger, level slog.Level, msg, eventType string, attrs []Attr) {
	if logger == nil {
		return
	}
	var (
		cause             error
		hasEvent, hasHint bool
		hasKind           bool
	)
	for _, a := range attrs {
		switch a.Key {
		case FieldEventType:
			hasEvent = true
		case FieldErrorHint:
			hasHint = true
		case FieldErrorKind:
			hasKind = true
		case "error":
			if err, ok := a.Value.Any().(error); ok {
				cause = err
			}
		}
	}
	if !hasEvent {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	kind := ""
	if cause != nil {
		kind = services.Kind(cause)
		if !hasKind {
			attrs = append(attrs, String(FieldErrorKind, kind))
		}
	}
	if !hasHint {
		hint, ok := hintForKind[kind]
		if !ok {
			hint = defaultErrorHint
		}
		attrs = append(attrs, String(FieldErrorHint, hint))
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
