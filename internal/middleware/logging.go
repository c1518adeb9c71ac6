package middleware

import (
	"strings"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/logger"
	"github.com/songquanpeng/smart-router-gateway/internal/metrics"
)

// AccessLog writes one structured line per completed request and feeds the
// request-level Prometheus counters (§4.1 ambient stack). It must sit after
// RequestID so the request-scoped logger is already on the context.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		lg := logger.FromContext(c.Request.Context())
		lg.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", elapsed))

		dialect := dialectFromPath(c.Request.URL.Path)
		metrics.ObserveDispatch(dialect, statusBucket(c.Writer.Status()), elapsed)
	}
}

func statusBucket(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

func dialectFromPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/messages"):
		return "anthropic"
	case strings.Contains(path, "generateContent"):
		return "gemini"
	case strings.Contains(path, "chat/completions"):
		return "openai"
	default:
		return "other"
	}
}
