package middleware

import (
	"log/slog"
	"time"

	"Lee_Timeline/internal/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// RequestLogger 每个请求一个带 request_id 的 logger，放进 request context
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(HeaderRequestID, rid)

		lg := base.With("request_id", rid)
		c.Request = c.Request.WithContext(logger.Into(c.Request.Context(), lg))
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
		}
		switch {
		case status >= 500:
			lg.Error("request", attrs...)
		case status >= 400:
			lg.Warn("request", attrs...)
		default:
			lg.Info("request", attrs...)
		}
	}
}
