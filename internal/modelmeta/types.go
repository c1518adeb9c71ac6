// Package modelmeta implements C2 Model Metadata Registry: a unified view
// over a cached OpenRouter-style catalog plus provider/channel overrides
// (§3.3, §4.2). Grounded on the teacher's layered precedence pattern in
// relay/billing/ratio (base ratio table -> channel override) generalized
// to full capability/pricing metadata.
package modelmeta

import (
	"regexp"
	"strings"
)

// ModelMetadata is keyed by (provider, model id) per §3.3.
type ModelMetadata struct {
	Provider            string
	ModelID             string
	ParameterCountM     float64 // millions of parameters; 0 = unknown
	ContextLength       int
	Modality            string
	InputModalities     []string
	OutputModalities    []string
	SupportedParameters []string // e.g. "tools", "response_format"
	PricingInputPerM    float64  // USD per 1e6 input tokens
	PricingOutputPerM   float64  // USD per 1e6 output tokens
	QualityScore        float64  // [0,1], 0 = unset (inferred on read)
	SpeedScore          float64  // [0,1], 0 = unset (inferred on read)

	// Tags is auto-derived by splitting ModelID on separators (§3.3) and
	// merged with any channel-declared tags by the caller.
	Tags map[string]bool
}

var tagSplitter = regexp.MustCompile(`[:/\-_@,]+`)

// DeriveTags splits a model id into its lowercase tag set on the separators
// ':', '/', '-', '_', '@' and ',', e.g. "openai/gpt-4o-mini" ->
// {"openai","gpt","4o","mini"}. Components are not further split on case
// boundaries (matches the source's simple separator-splitting approach, not
// a tokenizer).
func DeriveTags(modelID string) map[string]bool {
	tags := make(map[string]bool)
	for _, part := range tagSplitter.Split(strings.ToLower(modelID), -1) {
		if part == "" {
			continue
		}
		tags[part] = true
	}
	return tags
}

func (m ModelMetadata) SupportsVision() bool {
	for _, mm := range m.InputModalities {
		if mm == "image" {
			return true
		}
	}
	return strings.Contains(m.Modality, "image")
}

func (m ModelMetadata) SupportsFunctionCalling() bool {
	return containsFold(m.SupportedParameters, "tools") || containsFold(m.SupportedParameters, "functions")
}

func (m ModelMetadata) SupportsStreaming() bool {
	// Absent an explicit negative signal, assume streaming is supported;
	// only metadata that lists it as unsupported disables it.
	return !containsFold(m.SupportedParameters, "no_streaming")
}

func (m ModelMetadata) SupportsAudio() bool {
	for _, mm := range m.InputModalities {
		if mm == "audio" {
			return true
		}
	}
	for _, mm := range m.OutputModalities {
		if mm == "audio" {
			return true
		}
	}
	return false
}

func (m ModelMetadata) IsFree() bool {
	return m.PricingInputPerM == 0 && m.PricingOutputPerM == 0
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
