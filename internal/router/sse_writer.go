package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/sse"
)

// startSSE sets the standard event-stream headers and flushes them
// immediately, so the client sees headers before the first chunk arrives.
func startSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flush(c)
}

func flush(c *gin.Context) {
	if f, ok := c.Writer.(http.Flusher); ok {
		f.Flush()
	}
}

// writeSSEEvent marshals v as one "data: ..." line and flushes it, ignoring
// a marshal error since there is nothing meaningful to do with it mid-stream.
func writeSSEEvent(c *gin.Context, v any) {
	raw, err := sse.EncodeDataLine(v)
	if err != nil {
		return
	}
	_, _ = c.Writer.Write(raw)
	flush(c)
}

func writeSSEDone(c *gin.Context) {
	_, _ = c.Writer.Write(sse.DoneLine())
	flush(c)
}
