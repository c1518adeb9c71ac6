package router

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/dispatcher"
	"github.com/songquanpeng/smart-router-gateway/internal/shim"
)

// anthropicStreamSink relays canonical stream events as the four Anthropic
// event types, in the order the dialect requires (§4.12): message_start
// once, content_block_delta per chunk, then message_delta/message_stop
// once Dispatch returns.
type anthropicStreamSink struct {
	c       *gin.Context
	model   string
	started bool
}

func newAnthropicStreamSink(c *gin.Context, model string) *anthropicStreamSink {
	return &anthropicStreamSink{c: c, model: model}
}

func (s *anthropicStreamSink) ensureStarted() {
	if !s.started {
		startSSE(s.c)
		name, payload := shim.AnthropicMessageStart(s.model)
		writeAnthropicEvent(s.c, name, payload)
		s.started = true
	}
}

func (s *anthropicStreamSink) OnChunk(delta string) {
	s.ensureStarted()
	name, payload := shim.AnthropicContentBlockDelta(delta)
	writeAnthropicEvent(s.c, name, payload)
}

func (s *anthropicStreamSink) OnUpstreamError(code int, message string, retryAfterS int) {
	s.ensureStarted()
	writeAnthropicEvent(s.c, "error", gin.H{
		"type":  "error",
		"error": gin.H{"message": message, "code": code, "retry_after": retryAfterS},
	})
}

func (s *anthropicStreamSink) writeFinal(summary *dispatcher.Summary) {
	s.ensureStarted()
	completionTokens := 0
	if summary != nil {
		completionTokens = summary.CompletionTokens
	}
	name, payload := shim.AnthropicMessageDelta("end_turn", completionTokens)
	payload["smart_ai_router"] = summary
	writeAnthropicEvent(s.c, name, payload)
	name, payload = shim.AnthropicMessageStop()
	writeAnthropicEvent(s.c, name, payload)
}

// writeAnthropicEvent writes Anthropic's two-line "event: name\ndata: {..}"
// SSE frame, distinct from OpenAI/Gemini's bare data line.
func writeAnthropicEvent(c *gin.Context, name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = c.Writer.Write([]byte("event: " + name + "\ndata: "))
	_, _ = c.Writer.Write(raw)
	_, _ = c.Writer.Write([]byte("\n\n"))
	flush(c)
}

func (h *handler) anthropicMessages(c *gin.Context) {
	version := c.GetHeader("anthropic-version")
	if err := shim.ValidateAnthropicVersion(version); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_anthropic_version", err.Error())
		return
	}

	body, err := readBody(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	req, err := shim.DecodeAnthropic(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.dispatch(c, req, dialectCodec{
		tagSelector: isTagSelector(req.Model),
		newSink:     func() streamSink { return newAnthropicStreamSink(c, req.Model) },
		encodeFinal: shim.EncodeAnthropic,
	})
}
