package handler

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// NewErrorHandler logs the failure at warn for client errors and error for
// server errors, then renders it with JSONError.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = logger.Discard()
	}
	return func(ctx Context, err error) {
		LogError(log, ctx.Request(), err)
		_ = JSONError(err).Render(ctx.ResponseWriter(), ctx.Request())
	}
}

// LogError records a failed request. Request and tenant IDs come from the
// logger's context extractors.
func LogError(log *slog.Logger, r *http.Request, err error) {
	status, _ := ClassifyError(err)
	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	log.LogAttrs(r.Context(), level, "request error",
		logger.Error(err),
		slog.Int("status_code", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		logger.Component("http"),
	)
}
