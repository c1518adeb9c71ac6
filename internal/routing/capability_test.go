package routing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
)

func TestDeriveCapabilities_VisionFromImagePart(t *testing.T) {
	req := Request{
		Messages: []Message{{Role: "user", Parts: []MessagePart{{Type: "image_url", ImageURL: "http://x/y.png"}}}},
	}
	caps := DeriveCapabilities(req)
	require.Contains(t, caps, "vision")
}

func TestDeriveCapabilities_StreamingAndFunctions(t *testing.T) {
	req := Request{Stream: true, HasFunctions: true}
	caps := DeriveCapabilities(req)
	require.Contains(t, caps, "streaming")
	require.Contains(t, caps, "function_calling")
}

func TestFilterCandidates_DropsOnMinContextLength(t *testing.T) {
	meta := modelmeta.NewRegistry(map[string]modelmeta.ModelMetadata{
		"small-model": {ContextLength: 4000},
	})
	cands := []ChannelCandidate{{ChannelID: "c1", MatchedModel: "small-model"}}
	out := FilterCandidates(cands, Request{MinContextLength: 32000}, meta)
	require.Empty(t, out)
}

func TestFilterCandidates_DropsUnknownOllamaModelWithoutCapabilityMarker(t *testing.T) {
	meta := modelmeta.NewRegistry(nil) // no catalog entries at all
	cands := []ChannelCandidate{{ChannelID: "c1", Provider: "ollama", MatchedModel: "llama3"}}
	req := Request{Messages: []Message{{Parts: []MessagePart{{Type: "image_url"}}}}}
	out := FilterCandidates(cands, req, meta)
	require.Empty(t, out, "unknown ollama model with no vision marker in its name must not be assumed vision-capable")
}

func TestFilterCandidates_KeepsUnknownOllamaModelWithCapabilityMarker(t *testing.T) {
	meta := modelmeta.NewRegistry(nil) // no catalog entries at all
	cands := []ChannelCandidate{{ChannelID: "c1", Provider: "ollama", MatchedModel: "llava:13b"}}
	req := Request{Messages: []Message{{Parts: []MessagePart{{Type: "image_url"}}}}}
	out := FilterCandidates(cands, req, meta)
	require.Len(t, out, 1, "llava marker in the model name signals vision support despite missing catalog metadata")
}

func TestFilterCandidates_KeepsUnknownCloudModelOptimistically(t *testing.T) {
	meta := modelmeta.NewRegistry(nil)
	cands := []ChannelCandidate{{ChannelID: "c1", Provider: "openai", MatchedModel: "some-future-model"}}
	req := Request{
		Messages: []Message{{Parts: []MessagePart{{Type: "image_url"}}}},
	}
	out := FilterCandidates(cands, req, meta)
	require.Len(t, out, 1, "unknown cloud model is assumed capable when metadata is missing")
}

func TestFilterCandidates_MaxCostPerKTokens(t *testing.T) {
	meta := modelmeta.NewRegistry(map[string]modelmeta.ModelMetadata{
		"pricey": {PricingInputPerM: 50000}, // $50,000/M = $50 per 1k tokens, far over the 0.01 cap
	})
	cands := []ChannelCandidate{{ChannelID: "c1", MatchedModel: "pricey"}}
	out := FilterCandidates(cands, Request{MaxCostPerKTokens: 0.01}, meta)
	require.Empty(t, out)
}
