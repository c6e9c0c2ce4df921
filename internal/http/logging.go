package http

import (
	"cmp"
	"context"
	"log/slog"

	"github.com/example/crm-scheduler/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	return cmp.Or(logger, slog.Default())
}

// handlerLogger prefers the request-scoped logger installed by RequestLogger,
// so entries keep the request id, and tags it with the handler and operation.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := cmp.Or(logging.FromContext(ctx), fallback, slog.Default())
	pairs := append([]any{"handler", handlerName, "operation", operation}, attrs...)
	return logger.With(pairs...)
}
