package dispatcher

import "github.com/songquanpeng/smart-router-gateway/internal/routing"

// Summary is the object rendered under the "smart_ai_router" key, in-stream
// before the terminating [DONE] for streaming responses and attached to the
// JSON body for non-streaming ones (§4.10's streaming contract paragraph).
type Summary struct {
	RequestID             string         `json:"request_id"`
	ChannelID             string         `json:"channel_id"`
	ChannelName           string         `json:"channel_name"`
	MatchedModel          string         `json:"matched_model"`
	Strategy              string         `json:"strategy,omitempty"`
	RoutingScores         []routing.Score `json:"routing_scores,omitempty"`
	TTFBMillis            int64          `json:"ttfb_ms"`
	TokensPerSecond       float64        `json:"tokens_per_second"`
	PromptTokens          int            `json:"prompt_tokens"`
	CompletionTokens      int            `json:"completion_tokens"`
	TotalTokens           int            `json:"total_tokens"`
	RequestCost           float64        `json:"request_cost"`
	SessionCumulativeCost float64        `json:"session_cumulative_cost"`
}
