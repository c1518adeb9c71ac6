package modelmeta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleBase() map[string]ModelMetadata {
	return map[string]ModelMetadata{
		"llama-3.1-8b-instant": {
			ModelID:             "llama-3.1-8b-instant",
			ParameterCountM:     8000,
			ContextLength:       131072,
			SupportedParameters: []string{"tools"},
			Tags:                DeriveTags("llama-3.1-8b-instant"),
		},
		"gpt-4o-mini": {
			ModelID:           "gpt-4o-mini",
			ParameterCountM:   8000,
			ContextLength:     128000,
			PricingInputPerM:  0.15,
			PricingOutputPerM: 0.6,
			InputModalities:   []string{"text", "image"},
			Tags:              DeriveTags("gpt-4o-mini"),
		},
	}
}

func TestDeriveTags_SplitsOnSeparators(t *testing.T) {
	tags := DeriveTags("openai/gpt-4o-mini")
	require.True(t, tags["openai"])
	require.True(t, tags["gpt"])
	require.True(t, tags["4o"])
	require.True(t, tags["mini"])
}

func TestGet_UnknownModelNeverErrors(t *testing.T) {
	reg := NewRegistry(sampleBase())
	meta := reg.Get("totally-unknown-model-xyz", "openai", "")
	require.Equal(t, "totally-unknown-model-xyz", meta.ModelID)
	require.Equal(t, 0.0, meta.ParameterCountM)
}

func TestGet_GroqForcesFree(t *testing.T) {
	base := sampleBase()
	base["llama-3.1-8b-instant"] = ModelMetadata{
		ModelID: "llama-3.1-8b-instant", PricingInputPerM: 5, PricingOutputPerM: 5,
		Tags: DeriveTags("llama-3.1-8b-instant"),
	}
	reg := NewRegistry(base)
	meta := reg.Get("llama-3.1-8b-instant", "groq", "")
	require.True(t, meta.IsFree())
}

func TestGet_SiliconflowAppliesPricingMultiplier(t *testing.T) {
	base := map[string]ModelMetadata{
		"qwen": {ModelID: "qwen", PricingInputPerM: 10, PricingOutputPerM: 20, Tags: DeriveTags("qwen")},
	}
	reg := NewRegistry(base)
	meta := reg.Get("qwen", "siliconflow", "")
	require.InDelta(t, 1.0, meta.PricingInputPerM, 1e-9)
	require.InDelta(t, 2.0, meta.PricingOutputPerM, 1e-9)
}

func TestFindByTags_Superset(t *testing.T) {
	reg := NewRegistry(sampleBase())
	found := reg.FindByTags([]string{"gpt", "mini"}, "")
	require.Len(t, found, 1)
	require.Equal(t, "gpt-4o-mini", found[0].ModelID)
}

func TestVisionModels(t *testing.T) {
	reg := NewRegistry(sampleBase())
	vis := reg.VisionModels()
	require.Len(t, vis, 1)
	require.Equal(t, "gpt-4o-mini", vis[0].ModelID)
}

func TestParameterScore_Ladder(t *testing.T) {
	require.Equal(t, 1.0, ParameterScore(70_000))
	require.Equal(t, 0.3, ParameterScore(50))
}

func TestContextScore_Buckets(t *testing.T) {
	require.Equal(t, 1.0, ContextScore(1_000_000))
	require.Equal(t, 0.9, ContextScore(200_000))
	require.Equal(t, 0.3, ContextScore(100))
}
