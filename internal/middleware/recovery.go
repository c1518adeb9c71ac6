package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/logger"
)

// Recovery mirrors the teacher's RelayPanicRecover: any panic during a
// handler is logged with its stacktrace and turned into a 500 JSON error
// instead of tearing down the whole server.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				lg := logger.FromContext(c.Request.Context())
				lg.Error("panic recovered in http handler",
					zap.Any("panic", r),
					zap.String("stacktrace", string(debug.Stack())),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path))
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"message": "internal error",
						"type":    "server_error",
						"code":    "panic",
					},
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
