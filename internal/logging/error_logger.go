package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// ErrorLogger turns failures into structured records and logs them. It never
// fails; a record is always returned.
type ErrorLogger struct {
	log *slog.Logger
	now func() time.Time
}

// NewErrorLogger creates a new error logger
func NewErrorLogger(log *slog.Logger) *ErrorLogger {
	return &ErrorLogger{log: log, now: time.Now}
}

// Report logs a failure at error level and returns its record
func (l *ErrorLogger) Report(component string, kind domain.ErrorKind, message string, err error, details map[string]any) *domain.ErrorRecord {
	record := &domain.ErrorRecord{
		Timestamp: l.now().UTC(),
		Component: component,
		Kind:      kind,
		Message:   message,
		Details:   details,
	}
	if err != nil {
		record.Cause = &domain.ErrorCause{Type: errorType(err), Message: err.Error()}
	}

	attrs := []any{"component", component, "error_type", string(kind)}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	l.log.Error(message, append(attrs, detailAttrs(details)...)...)
	return record
}

// Warn logs a non-fatal condition with details as attributes
func (l *ErrorLogger) Warn(component, message string, details map[string]any) {
	l.log.Warn(message, append([]any{"component", component}, detailAttrs(details)...)...)
}

// Info logs an operational event with details as attributes
func (l *ErrorLogger) Info(component, message string, details map[string]any) {
	l.log.Info(message, append([]any{"component", component}, detailAttrs(details)...)...)
}

func detailAttrs(details map[string]any) []any {
	keys := lo.Keys(details)
	slices.Sort(keys)
	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, details[k]))
	}
	return attrs
}

// errorType names the innermost error type, skipping fmt wrappers
func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return fmt.Sprintf("%T", err)
}

var _ usecase.ErrorReporter = (*ErrorLogger)(nil)
