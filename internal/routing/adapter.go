package routing

import "github.com/songquanpeng/smart-router-gateway/internal/chatmodel"

// FromChatRequest projects the canonical chatmodel.Request down to the
// fields routing actually needs (§4.12: "these shims never route on their
// own; they call C10" — C10 in turn calls this to hand off to the Router).
func FromChatRequest(req chatmodel.Request) Request {
	out := Request{
		Model:                req.Model,
		Stream:               req.Stream,
		MaxTokens:            req.MaxTokens,
		Temperature:          req.Temperature,
		HasTemperature:       req.HasTemperature,
		HasFunctions:         len(req.Tools) > 0,
		RequiredCapabilities: req.RequiredCapabilities,
		Strategy:             req.Strategy,
		MinContextLength:     req.MinContextLength,
		MaxCostPerKTokens:    req.MaxCostPerKTokens,
		PreferLocal:          req.PreferLocal,
		ExcludeProviders:     req.ExcludeProviders,
	}
	out.Messages = make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		parts := make([]MessagePart, len(m.Parts))
		for j, p := range m.Parts {
			parts[j] = MessagePart{Type: p.Type, Text: p.Text, ImageURL: p.ImageURL}
		}
		out.Messages[i] = Message{Role: string(m.Role), Parts: parts}
	}
	return out
}
