// Package shim implements C12: translators between the three ingress
// dialects (OpenAI, Anthropic, Gemini) and chatmodel's canonical request/
// response shape (§4.12). These never route on their own (§4.12); they hand
// the canonical request to the dispatcher and re-encode its canonical
// response back into the dialect the client spoke. Grounded on the
// teacher's per-provider relay/adaptor packages, generalized from "N
// adaptors for N upstream providers" to "3 adaptors for N ingress dialects,
// one adaptor-agnostic dispatcher."
package shim

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
)

// openaiMessage is the wire shape of one OpenAI chat message.
type openaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []part, OpenAI allows both
	Name    string `json:"name,omitempty"`
}

type openaiContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

// openaiRequest is the subset of the OpenAI chat-completions request body
// this gateway understands (§6.1, §6.3).
type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	Functions   []struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"functions,omitempty"`
}

// DecodeOpenAI parses an OpenAI-dialect request body (passthrough, §4.12)
// into the canonical request.
func DecodeOpenAI(body []byte) (chatmodel.Request, error) {
	var raw openaiRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return chatmodel.Request{}, errors.Wrap(err, "decode openai request body")
	}
	if raw.Model == "" {
		return chatmodel.Request{}, errors.New("missing required field: model")
	}

	req := chatmodel.Request{
		Model:     raw.Model,
		Stream:    raw.Stream,
		MaxTokens: raw.MaxTokens,
	}
	if raw.Temperature != nil {
		req.Temperature = *raw.Temperature
		req.HasTemperature = true
	}

	for _, m := range raw.Messages {
		req.Messages = append(req.Messages, decodeOpenAIMessage(m))
	}

	for _, t := range raw.Tools {
		req.Tools = append(req.Tools, chatmodel.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	for _, f := range raw.Functions {
		req.Tools = append(req.Tools, chatmodel.ToolDefinition{Name: f.Name, Description: f.Description, Parameters: f.Parameters})
	}

	return req, nil
}

func decodeOpenAIMessage(m openaiMessage) chatmodel.Message {
	out := chatmodel.Message{Role: chatmodel.Role(m.Role), Name: m.Name}
	switch content := m.Content.(type) {
	case string:
		out.Content = content
	case []any:
		for _, raw := range content {
			partMap, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			partBytes, err := json.Marshal(partMap)
			if err != nil {
				continue
			}
			var part openaiContentPart
			if err := json.Unmarshal(partBytes, &part); err != nil {
				continue
			}
			out.Parts = append(out.Parts, chatmodel.ContentPart{
				Type:     part.Type,
				Text:     part.Text,
				ImageURL: part.ImageURL.URL,
			})
		}
	}
	return out
}

// openaiResponse mirrors the OpenAI chat-completion response shape, with an
// extra SmartRouter field carrying the summary event under the
// "smart_ai_router" key (§4.10: "the summary is attached to the JSON body
// under the same key" for non-streaming responses).
type openaiResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage       chatmodel.Usage `json:"usage"`
	SmartRouter any             `json:"smart_ai_router,omitempty"`
}

// EncodeOpenAI renders the canonical response as an OpenAI-shaped JSON body,
// with the summary object injected under the "smart_ai_router" key.
func EncodeOpenAI(resp chatmodel.Response, summary any) ([]byte, error) {
	out := openaiResponse{
		ID:          resp.ID,
		Object:      "chat.completion",
		Model:       resp.Model,
		Usage:       resp.Usage,
		SmartRouter: summary,
	}
	for _, c := range resp.Choices {
		row := struct {
			Index        int           `json:"index"`
			Message      openaiMessage `json:"message"`
			FinishReason string        `json:"finish_reason,omitempty"`
		}{
			Index:        c.Index,
			Message:      openaiMessage{Role: string(c.Message.Role), Content: c.Message.Content},
			FinishReason: c.FinishReason,
		}
		out.Choices = append(out.Choices, row)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "encode openai response")
	}
	return raw, nil
}

// EncodeOpenAIRequest renders the canonical request as an OpenAI-shaped
// chat-completions body for upstream egress (§6.2: every channel is called
// via `{base_url}/v1/chat/completions` regardless of which ingress dialect
// the client spoke), substituting matchedModel for req.Model so a virtual
// selector or tag match is rewritten to the channel's concrete model name.
func EncodeOpenAIRequest(req chatmodel.Request, matchedModel string) ([]byte, error) {
	out := openaiRequest{
		Model:     matchedModel,
		Stream:    req.Stream,
		MaxTokens: req.MaxTokens,
	}
	if req.HasTemperature {
		t := req.Temperature
		out.Temperature = &t
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openaiMessage{Role: string(chatmodel.RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, encodeOpenAIMessage(m))
	}

	for _, t := range req.Tools {
		tool := openaiTool{Type: "function"}
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, tool)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "encode openai request")
	}
	return raw, nil
}

func encodeOpenAIMessage(m chatmodel.Message) openaiMessage {
	out := openaiMessage{Role: string(m.Role), Name: m.Name}
	if len(m.Parts) == 0 {
		out.Content = m.Content
		return out
	}
	parts := make([]openaiContentPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		part := openaiContentPart{Type: p.Type, Text: p.Text}
		part.ImageURL.URL = p.ImageURL
		parts = append(parts, part)
	}
	out.Content = parts
	return out
}

// openaiUpstreamResponse is the shape an upstream OpenAI-compatible channel
// actually returns (§6.2: egress is always OpenAI wire format), decoded
// back into the canonical response for C10 to hand to whichever ingress
// shim the client spoke.
type openaiUpstreamResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage chatmodel.Usage `json:"usage"`
}

// DecodeOpenAIResponse parses an upstream non-streaming chat-completions
// response body into the canonical response.
func DecodeOpenAIResponse(body []byte) (chatmodel.Response, error) {
	var raw openaiUpstreamResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return chatmodel.Response{}, errors.Wrap(err, "decode upstream openai response")
	}
	out := chatmodel.Response{ID: raw.ID, Model: raw.Model, Usage: raw.Usage}
	for _, c := range raw.Choices {
		content, _ := c.Message.Content.(string)
		out.Choices = append(out.Choices, chatmodel.Choice{
			Index:        c.Index,
			Message:      chatmodel.Message{Role: chatmodel.Role(c.Message.Role), Content: content},
			FinishReason: c.FinishReason,
		})
	}
	return out, nil
}

// EncodeOpenAIChunk renders one streaming delta as an OpenAI
// `chat.completion.chunk` object without SSE framing (sse.EncodeDataLine
// adds the "data: "/"\n\n" framing).
func EncodeOpenAIChunk(model, content, finishReason string) map[string]any {
	choice := map[string]any{
		"index": 0,
		"delta": map[string]any{"content": content},
	}
	if finishReason != "" {
		choice["finish_reason"] = finishReason
	}
	return map[string]any{
		"id":      "",
		"object":  "chat.completion.chunk",
		"model":   model,
		"choices": []any{choice},
	}
}
