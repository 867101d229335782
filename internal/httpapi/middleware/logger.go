package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"sqlrag.app/engine/common/logger"
	"sqlrag.app/engine/common/id"
)

// RequestID assigns a request id (from the header, else a fresh UUID)
// and carries it through the request context so every log line the
// orchestrator emits for this call shares it.
func RequestID(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(header)
		if reqID == "" {
			reqID = id.NewRequestID()
		}
		c.Header(header, reqID)

		ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{RequestID: logger.Ptr(reqID)})
		c.Request = c.Request.WithContext(ctx)
		c.Set("request_id", reqID)
		c.Next()
	}
}

// Logger records one structured log line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		ctx := c.Request.Context()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}
