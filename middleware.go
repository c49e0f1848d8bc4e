package main

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zachkp/skycode/internal/xslog"
)

// requestLogger puts a request-scoped logger on the context and logs every
// finished request. Server errors log at error level, client errors at warn.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := xslog.WithLogger(c.Request.Context(), logger)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		ctx = c.Request.Context()
		status := c.Writer.Status()
		attrs := []any{
			xslog.RequestGroup(c.Request, c.ClientIP()),
			xslog.ResponseGroup(status, time.Since(start)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, xslog.ErrorGroup(c.Errors.Last()))
		}

		l := xslog.FromContext(ctx)
		switch {
		case status >= 500:
			l.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			l.WarnContext(ctx, "request rejected", attrs...)
		default:
			l.DebugContext(ctx, "request served", attrs...)
		}
	}
}
