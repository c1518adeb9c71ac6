package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/songquanpeng/smart-router-gateway/internal/dispatcher"
	"github.com/songquanpeng/smart-router-gateway/internal/shim"
)

// openAIStreamSink relays canonical stream events to the client as OpenAI
// chat.completion.chunk SSE lines (§4.12 passthrough dialect), deferring the
// response headers until the first event actually arrives — by that point
// the dispatcher has already committed to one upstream channel (§4.10), so
// no later failover can invalidate headers already sent.
type openAIStreamSink struct {
	c       *gin.Context
	model   string
	id      string
	started bool
}

func newOpenAIStreamSink(c *gin.Context, model string) *openAIStreamSink {
	return &openAIStreamSink{c: c, model: model, id: "chatcmpl-" + uuid.NewString()}
}

func (s *openAIStreamSink) ensureStarted() {
	if !s.started {
		startSSE(s.c)
		s.started = true
	}
}

func (s *openAIStreamSink) OnChunk(delta string) {
	s.ensureStarted()
	writeSSEEvent(s.c, gin.H{
		"id":      s.id,
		"object":  "chat.completion.chunk",
		"model":   s.model,
		"choices": []gin.H{{"index": 0, "delta": gin.H{"content": delta}}},
	})
}

func (s *openAIStreamSink) OnUpstreamError(code int, message string, retryAfterS int) {
	s.ensureStarted()
	writeSSEEvent(s.c, gin.H{
		"error": gin.H{"message": message, "code": code, "retry_after": retryAfterS},
	})
}

func (s *openAIStreamSink) writeFinal(summary *dispatcher.Summary) {
	s.ensureStarted()
	writeSSEEvent(s.c, gin.H{
		"id":             s.id,
		"object":         "chat.completion.chunk",
		"model":          s.model,
		"choices":        []gin.H{{"index": 0, "delta": gin.H{}, "finish_reason": "stop"}},
		"smart_ai_router": summary,
	})
	writeSSEDone(s.c)
}

func (h *handler) chatCompletions(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	req, err := shim.DecodeOpenAI(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.dispatch(c, req, dialectCodec{
		tagSelector: isTagSelector(req.Model),
		newSink:     func() streamSink { return newOpenAIStreamSink(c, req.Model) },
		encodeFinal: shim.EncodeOpenAI,
	})
}
