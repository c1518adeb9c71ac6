package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/dispatcher"
	"github.com/songquanpeng/smart-router-gateway/internal/shim"
)

// geminiStreamSink relays canonical stream events as bare
// streamGenerateContent JSON chunks (§4.12); Gemini's real wire format has
// no terminating sentinel line, so the stream simply ends when Dispatch
// returns.
type geminiStreamSink struct {
	c       *gin.Context
	started bool
}

func newGeminiStreamSink(c *gin.Context) *geminiStreamSink {
	return &geminiStreamSink{c: c}
}

func (s *geminiStreamSink) ensureStarted() {
	if !s.started {
		startSSE(s.c)
		s.started = true
	}
}

func (s *geminiStreamSink) OnChunk(delta string) {
	s.ensureStarted()
	writeSSEEvent(s.c, shim.EncodeGeminiChunk(delta))
}

func (s *geminiStreamSink) OnUpstreamError(code int, message string, retryAfterS int) {
	s.ensureStarted()
	writeSSEEvent(s.c, gin.H{
		"error": gin.H{"message": message, "code": code, "retry_after": retryAfterS},
	})
}

func (s *geminiStreamSink) writeFinal(summary *dispatcher.Summary) {
	s.ensureStarted()
	writeSSEEvent(s.c, gin.H{"smart_ai_router": summary})
}

// modelAndAction splits the Gemini "{model}:generateContent" or
// "{model}:streamGenerateContent" path segment (§6.1) into its model id and
// the requested action.
func modelAndAction(segment string) (model, action string) {
	i := strings.LastIndex(segment, ":")
	if i < 0 {
		return segment, ""
	}
	return segment[:i], segment[i+1:]
}

func (h *handler) geminiGenerateContent(c *gin.Context) {
	model, action := modelAndAction(c.Param("modelAction"))
	stream := action == "streamGenerateContent"
	if !stream && action != "generateContent" {
		writeError(c, http.StatusBadRequest, "invalid_request", "unsupported gemini action: "+action)
		return
	}

	body, err := readBody(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	req, err := shim.DecodeGemini(body, model, stream)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.dispatch(c, req, dialectCodec{
		tagSelector: isTagSelector(req.Model),
		newSink:     func() streamSink { return newGeminiStreamSink(c) },
		encodeFinal: shim.EncodeGemini,
	})
}
