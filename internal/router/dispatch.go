package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
	"github.com/songquanpeng/smart-router-gateway/internal/dispatcher"
	"github.com/songquanpeng/smart-router-gateway/internal/middleware"
)

// streamSink is dispatcher.StreamSink plus the one extra call each dialect
// needs once Dispatch returns successfully: render the summary (and any
// dialect-specific closing event) before the stream ends.
type streamSink interface {
	dispatcher.StreamSink
	writeFinal(summary *dispatcher.Summary)
}

// dialectCodec is the per-ingress-dialect seam C10 is wrapped in: a
// streaming sink constructor and a non-streaming encoder, so the three
// /v1/chat/completions, /v1/messages, and :generateContent handlers share
// one dispatch path (§4.12: "these shims never route on their own").
type dialectCodec struct {
	tagSelector bool
	newSink     func() streamSink
	encodeFinal func(resp chatmodel.Response, summary any) ([]byte, error)
}

func isTagSelector(model string) bool {
	return strings.HasPrefix(model, "tag:")
}

// dispatch runs one decoded canonical request through C10 and renders the
// result in the caller's dialect, streaming or not.
func (h *handler) dispatch(c *gin.Context, req chatmodel.Request, codec dialectCodec) {
	requestID := middleware.RequestIDFrom(c)
	sessionKey := middleware.SessionKeyFrom(c)
	maskedKey := middleware.MaskedAPIKeyFrom(c)

	var cumulativeCost float64
	if h.d.Sessions != nil && sessionKey != "" {
		cumulativeCost = h.d.Sessions.CumulativeCost(sessionKey)
	}

	ctx := c.Request.Context()

	if req.Stream {
		sink := codec.newSink()
		_, summary, err := h.d.Dispatcher.Dispatch(ctx, req, requestID, cumulativeCost, sink)
		if err != nil {
			status, code := dispatchErrorStatus(err, codec.tagSelector)
			writeError(c, status, code, err.Error())
			return
		}
		sink.writeFinal(summary)
		h.touchSession(sessionKey, maskedKey, summary)
		return
	}

	resp, summary, err := h.d.Dispatcher.Dispatch(ctx, req, requestID, cumulativeCost, nil)
	if err != nil {
		status, code := dispatchErrorStatus(err, codec.tagSelector)
		writeError(c, status, code, err.Error())
		return
	}

	raw, err := codec.encodeFinal(*resp, summary)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "encode_error", err.Error())
		return
	}
	h.touchSession(sessionKey, maskedKey, summary)
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h *handler) touchSession(sessionKey, maskedKey string, summary *dispatcher.Summary) {
	if h.d.Sessions == nil || sessionKey == "" || summary == nil {
		return
	}
	h.d.Sessions.Touch(sessionKey, maskedKey, summary.MatchedModel, summary.ChannelID, summary.RequestCost)
}
