package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/crm-scheduler/internal/availability"
	"github.com/example/crm-scheduler/internal/logging"
	"github.com/example/crm-scheduler/internal/recurrence"
	"github.com/example/crm-scheduler/internal/scheduler"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, recurrence.ErrTooManyOccurrences):
		return "too_many_occurrences"
	case errors.Is(err, recurrence.ErrUnboundedRecurrence),
		errors.Is(err, recurrence.ErrInvalidRule),
		errors.Is(err, scheduler.ErrInvalidInterval),
		errors.Is(err, availability.ErrInvalidOptions),
		errors.Is(err, availability.ErrInvalidMember):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
