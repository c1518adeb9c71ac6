package shim

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
	"github.com/google/uuid"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
)

// RequiredAnthropicVersion is the only header value this gateway accepts
// (§6.1: "Header anthropic-version: 2023-06-01 required; other versions →
// 400").
const RequiredAnthropicVersion = "2023-06-01"

// ErrUnsupportedAnthropicVersion is returned by ValidateAnthropicVersion.
var ErrUnsupportedAnthropicVersion = errors.New("unsupported anthropic-version header")

func ValidateAnthropicVersion(v string) error {
	if v != RequiredAnthropicVersion {
		return ErrUnsupportedAnthropicVersion
	}
	return nil
}

type anthropicContentBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Source struct {
		Data      string `json:"data,omitempty"`
		MediaType string `json:"media_type,omitempty"`
	} `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []anthropicContentBlock
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

// DecodeAnthropic parses an Anthropic `/v1/messages` body into the canonical
// request (§4.12): `system` becomes a system-role message,
// `tools[].input_schema` becomes tool parameters.
func DecodeAnthropic(body []byte) (chatmodel.Request, error) {
	var raw anthropicRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return chatmodel.Request{}, errors.Wrap(err, "decode anthropic request body")
	}
	if raw.Model == "" {
		return chatmodel.Request{}, errors.New("missing required field: model")
	}

	req := chatmodel.Request{
		Model:     raw.Model,
		Stream:    raw.Stream,
		MaxTokens: raw.MaxTokens,
		System:    raw.System,
	}
	if raw.Temperature != nil {
		req.Temperature = *raw.Temperature
		req.HasTemperature = true
	}

	if raw.System != "" {
		req.Messages = append(req.Messages, chatmodel.Message{Role: chatmodel.RoleSystem, Content: raw.System})
	}
	for _, m := range raw.Messages {
		req.Messages = append(req.Messages, decodeAnthropicMessage(m))
	}
	for _, t := range raw.Tools {
		req.Tools = append(req.Tools, chatmodel.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	return req, nil
}

func decodeAnthropicMessage(m anthropicMessage) chatmodel.Message {
	out := chatmodel.Message{Role: chatmodel.Role(m.Role)}
	switch content := m.Content.(type) {
	case string:
		out.Content = content
	case []any:
		for _, raw := range content {
			blockMap, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			blockBytes, err := json.Marshal(blockMap)
			if err != nil {
				continue
			}
			var block anthropicContentBlock
			if err := json.Unmarshal(blockBytes, &block); err != nil {
				continue
			}
			if block.Type == "text" {
				out.Parts = append(out.Parts, chatmodel.ContentPart{Type: "text", Text: block.Text})
			} else if block.Type == "image" {
				out.Parts = append(out.Parts, chatmodel.ContentPart{Type: "image_url", ImageURL: block.Source.Data})
			}
		}
	}
	return out
}

// anthropicResponse mirrors §4.12's rebuilt shape:
// {id, type:"message", content:[{type:"text", text}], stop_reason, usage{input_tokens,output_tokens}}.
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	SmartRouter any `json:"smart_ai_router,omitempty"`
}

func EncodeAnthropic(resp chatmodel.Response, summary any) ([]byte, error) {
	out := anthropicResponse{
		ID:          resp.ID,
		Type:        "message",
		Role:        string(chatmodel.RoleAssistant),
		SmartRouter: summary,
	}
	out.Usage.InputTokens = resp.Usage.PromptTokens
	out.Usage.OutputTokens = resp.Usage.CompletionTokens

	var text string
	var finish string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		finish = resp.Choices[0].FinishReason
	}
	out.Content = []anthropicContentBlock{{Type: "text", Text: text}}
	out.StopReason = anthropicStopReason(finish)

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "encode anthropic response")
	}
	return raw, nil
}

func anthropicStopReason(openaiFinishReason string) string {
	switch openaiFinishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls", "function_call":
		return "tool_use"
	default:
		return "end_turn"
	}
}

// The following build the four Anthropic SSE event types in order
// (message_start, content_block_delta*, message_delta, message_stop)
// per §4.12.

func AnthropicMessageStart(model string) (string, map[string]any) {
	return "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":      "msg_" + uuid.NewString(),
			"type":    "message",
			"role":    "assistant",
			"model":   model,
			"content": []any{},
		},
	}
}

func AnthropicContentBlockDelta(text string) (string, map[string]any) {
	return "content_block_delta", map[string]any{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]any{"type": "text_delta", "text": text},
	}
}

func AnthropicMessageDelta(stopReason string, outputTokens int) (string, map[string]any) {
	return "message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason},
		"usage": map[string]any{"output_tokens": outputTokens},
	}
}

func AnthropicMessageStop() (string, map[string]any) {
	return "message_stop", map[string]any{"type": "message_stop"}
}
