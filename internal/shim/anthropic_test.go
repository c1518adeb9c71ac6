package shim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
)

func TestValidateAnthropicVersion_RejectsWrongVersion(t *testing.T) {
	require.NoError(t, ValidateAnthropicVersion("2023-06-01"))
	require.ErrorIs(t, ValidateAnthropicVersion("2022-01-01"), ErrUnsupportedAnthropicVersion)
}

func TestDecodeAnthropic_SystemBecomesMessage(t *testing.T) {
	body := []byte(`{"model":"claude-3-haiku","system":"be terse","messages":[{"role":"user","content":"hi"}],"max_tokens":100}`)
	req, err := DecodeAnthropic(body)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	require.Equal(t, chatmodel.RoleSystem, req.Messages[0].Role)
	require.Equal(t, "be terse", req.Messages[0].Content)
}

func TestDecodeAnthropic_ToolInputSchemaBecomesParameters(t *testing.T) {
	body := []byte(`{"model":"claude-3-haiku","messages":[],"max_tokens":10,"tools":[{"name":"get_weather","input_schema":{"type":"object"}}]}`)
	req, err := DecodeAnthropic(body)
	require.NoError(t, err)
	require.Len(t, req.Tools, 1)
	require.Equal(t, "get_weather", req.Tools[0].Name)
	require.Equal(t, "object", req.Tools[0].Parameters["type"])
}

func TestEncodeAnthropic_StopReasonMapping(t *testing.T) {
	resp := chatmodel.Response{
		Choices: []chatmodel.Choice{{Message: chatmodel.Message{Content: "hi"}, FinishReason: "length"}},
	}
	raw, err := EncodeAnthropic(resp, nil)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"stop_reason":"max_tokens"`)
}

func TestAnthropicStreamEventOrder(t *testing.T) {
	name, _ := AnthropicMessageStart("claude-3-haiku")
	require.Equal(t, "message_start", name)
	name, _ = AnthropicContentBlockDelta("hi")
	require.Equal(t, "content_block_delta", name)
	name, _ = AnthropicMessageDelta("end_turn", 5)
	require.Equal(t, "message_delta", name)
	name, _ = AnthropicMessageStop()
	require.Equal(t, "message_stop", name)
}
