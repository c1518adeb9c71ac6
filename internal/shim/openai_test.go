package shim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
)

func TestDecodeOpenAI_SimpleTextMessage(t *testing.T) {
	body := []byte(`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	req, err := DecodeOpenAI(body)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", req.Model)
	require.True(t, req.Stream)
	require.Len(t, req.Messages, 1)
	require.Equal(t, "hi", req.Messages[0].Content)
}

func TestDecodeOpenAI_MissingModelErrors(t *testing.T) {
	_, err := DecodeOpenAI([]byte(`{"messages":[]}`))
	require.Error(t, err)
}

func TestDecodeOpenAI_MultipartImageMessage(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"http://x/y.png"}}]}]}`)
	req, err := DecodeOpenAI(body)
	require.NoError(t, err)
	require.Len(t, req.Messages[0].Parts, 2)
	require.Equal(t, "image_url", req.Messages[0].Parts[1].Type)
	require.Equal(t, "http://x/y.png", req.Messages[0].Parts[1].ImageURL)
}

func TestEncodeOpenAI_IncludesSummaryUnderSmartRouterKey(t *testing.T) {
	resp := chatmodel.Response{
		ID:    "r1",
		Model: "gpt-4o-mini",
		Choices: []chatmodel.Choice{
			{Message: chatmodel.Message{Role: chatmodel.RoleAssistant, Content: "hello"}, FinishReason: "stop"},
		},
	}
	raw, err := EncodeOpenAI(resp, map[string]any{"ttfb_ms": 120})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"smart_ai_router"`)
	require.Contains(t, string(raw), `"ttfb_ms":120`)
}
