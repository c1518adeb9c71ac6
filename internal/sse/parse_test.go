package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
)

func TestParse_EmitsChunksThenEnd(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"hel"}}]}

data: {"choices":[{"delta":{"content":"lo"}}]}

data: [DONE]

`
	var events []chatmodel.StreamEvent
	err := Parse(strings.NewReader(body), func(e chatmodel.StreamEvent) { events = append(events, e) })
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, chatmodel.EventChunk, events[0].Kind)
	require.Equal(t, "hel", events[0].ContentDelta)
	require.Equal(t, chatmodel.EventChunk, events[1].Kind)
	require.Equal(t, chatmodel.EventEnd, events[2].Kind)
}

func TestParse_EmitsUsageEvent(t *testing.T) {
	body := `data: {"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}

data: [DONE]

`
	var events []chatmodel.StreamEvent
	err := Parse(strings.NewReader(body), func(e chatmodel.StreamEvent) { events = append(events, e) })
	require.NoError(t, err)
	require.Equal(t, chatmodel.EventUsage, events[0].Kind)
	require.Equal(t, 15, events[0].Usage.TotalTokens)
}

func TestParse_EmitsMidStreamError(t *testing.T) {
	body := `data: {"error":{"message":"rate limited","code":429,"retry_after":5}}

data: [DONE]

`
	var events []chatmodel.StreamEvent
	err := Parse(strings.NewReader(body), func(e chatmodel.StreamEvent) { events = append(events, e) })
	require.NoError(t, err)
	require.Equal(t, chatmodel.EventUpstreamError, events[0].Kind)
	require.Equal(t, "rate limited", events[0].ErrorMessage)
	require.Equal(t, 5, events[0].RetryAfterS)
}

func TestEncodeDataLine_RoundTripsJSON(t *testing.T) {
	raw, err := EncodeDataLine(map[string]any{"a": 1})
	require.NoError(t, err)
	require.Contains(t, string(raw), "data: ")
	require.Contains(t, string(raw), `{"a":1}`)
}
