package shim

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
)

type geminiPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MimeType string `json:"mime_type,omitempty"`
		Data     string `json:"data,omitempty"`
	} `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"function_declarations,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

// geminiRequest is the body shape for both :generateContent and
// :streamGenerateContent (§6.1, §4.12); model comes from the URL path, not
// the body, so it is filled in by the caller after decoding.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// DecodeGemini parses a Gemini generateContent body into the canonical
// request. model is taken from the `{model}:generateContent` URL segment
// since Gemini never puts it in the JSON body.
func DecodeGemini(body []byte, model string, stream bool) (chatmodel.Request, error) {
	var raw geminiRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return chatmodel.Request{}, errors.Wrap(err, "decode gemini request body")
	}
	if model == "" {
		return chatmodel.Request{}, errors.New("missing model path segment")
	}

	req := chatmodel.Request{Model: model, Stream: stream}

	if raw.SystemInstruction != nil {
		req.System = joinGeminiParts(raw.SystemInstruction.Parts)
		req.Messages = append(req.Messages, chatmodel.Message{Role: chatmodel.RoleSystem, Content: req.System})
	}

	for _, c := range raw.Contents {
		role := chatmodel.RoleUser
		if c.Role == "model" {
			role = chatmodel.RoleAssistant
		}
		msg := chatmodel.Message{Role: role}
		for _, p := range c.Parts {
			if p.Text != "" {
				msg.Parts = append(msg.Parts, chatmodel.ContentPart{Type: "text", Text: p.Text})
			} else if p.InlineData != nil {
				msg.Parts = append(msg.Parts, chatmodel.ContentPart{Type: "image_url", ImageURL: p.InlineData.Data})
			}
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range raw.Tools {
		for _, fd := range t.FunctionDeclarations {
			req.Tools = append(req.Tools, chatmodel.ToolDefinition{Name: fd.Name, Description: fd.Description, Parameters: fd.Parameters})
		}
	}

	if raw.GenerationConfig != nil {
		req.MaxTokens = raw.GenerationConfig.MaxOutputTokens
		if raw.GenerationConfig.Temperature != nil {
			req.Temperature = *raw.GenerationConfig.Temperature
			req.HasTemperature = true
		}
	}

	return req, nil
}

func joinGeminiParts(parts []geminiPart) string {
	var out string
	for _, p := range parts {
		out += p.Text
	}
	return out
}

// geminiResponse mirrors §4.12's rebuilt shape:
// {candidates:[{content:{parts:[{text}],role:"model"}, finish_reason, safety_ratings}], usage_metadata}.
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	SafetyRatings []any        `json:"safetyRatings"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	SmartRouter any `json:"smart_ai_router,omitempty"`
}

func EncodeGemini(resp chatmodel.Response, summary any) ([]byte, error) {
	out := geminiResponse{SmartRouter: summary}
	out.UsageMetadata.PromptTokenCount = resp.Usage.PromptTokens
	out.UsageMetadata.CandidatesTokenCount = resp.Usage.CompletionTokens
	out.UsageMetadata.TotalTokenCount = resp.Usage.TotalTokens

	for _, c := range resp.Choices {
		out.Candidates = append(out.Candidates, geminiCandidate{
			Content:       geminiContent{Role: "model", Parts: []geminiPart{{Text: c.Message.Content}}},
			FinishReason:  geminiFinishReason(c.FinishReason),
			SafetyRatings: []any{},
		})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "encode gemini response")
	}
	return raw, nil
}

func geminiFinishReason(openaiFinishReason string) string {
	switch openaiFinishReason {
	case "stop":
		return "STOP"
	case "length":
		return "MAX_TOKENS"
	default:
		return "STOP"
	}
}

// EncodeGeminiChunk renders one streaming delta as a streamGenerateContent
// response chunk.
func EncodeGeminiChunk(content string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": content}},
				},
			},
		},
	}
}
