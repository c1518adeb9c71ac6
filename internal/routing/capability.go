package routing

import (
	"strings"

	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
)

// DeriveCapabilities computes the capability tags a request implicitly
// demands (§4.7): vision when any message part is an image, function_calling
// when tools/functions are attached, streaming when stream=true. Explicit
// RequiredCapabilities on the request are appended, lowercased.
func DeriveCapabilities(req Request) []string {
	set := make(map[string]bool, len(req.RequiredCapabilities)+3)
	for _, c := range req.RequiredCapabilities {
		set[strings.ToLower(c)] = true
	}

	for _, msg := range req.Messages {
		for _, part := range msg.Parts {
			if part.Type == "image_url" {
				set["vision"] = true
			}
		}
	}
	if req.HasFunctions {
		set["function_calling"] = true
	}
	if req.Stream {
		set["streaming"] = true
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// localProviders are the providers §4.7 treats pessimistically: an
// unknown-metadata model on one of these only passes capability filtering
// when its name carries an explicit marker, unlike cloud providers which
// pass optimistically.
var localProviders = map[string]bool{
	"ollama":   true,
	"lmstudio": true,
}

// capabilityMarkers grounds §4.7's "explicit capability marker (e.g. llava,
// hermes)" on the original source's capability_mapper.py model_overrides/
// local-pattern tables: substrings in a local model's own name that signal
// it supports a capability despite carrying no catalog metadata.
var capabilityMarkers = map[string][]string{
	"vision":           {"llava", "vision", "cogvlm", "bakllava"},
	"function_calling": {"hermes", "instruct", "tool"},
}

// hasCapabilityMarker reports whether modelName carries an explicit marker
// for cap, case-insensitively.
func hasCapabilityMarker(modelName, cap string) bool {
	markers, ok := capabilityMarkers[cap]
	if !ok {
		return false
	}
	lower := strings.ToLower(modelName)
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// metaIsKnown reports whether meta carries real catalog data, as opposed to
// the zero-value fallback Registry.Get returns for an unrecognized model id.
func metaIsKnown(m modelmeta.ModelMetadata) bool {
	return m.ContextLength > 0 ||
		m.PricingInputPerM > 0 ||
		m.PricingOutputPerM > 0 ||
		len(m.InputModalities) > 0 ||
		len(m.OutputModalities) > 0 ||
		len(m.SupportedParameters) > 0
}

func capabilitySupported(m modelmeta.ModelMetadata, cap string) bool {
	switch cap {
	case "vision":
		return m.SupportsVision()
	case "function_calling":
		return m.SupportsFunctionCalling()
	case "streaming":
		return m.SupportsStreaming()
	case "audio":
		return m.SupportsAudio()
	default:
		return true
	}
}

// capabilitiesSatisfied applies §4.7's local/cloud asymmetry: a model with no
// catalog entry is assumed capable for cloud providers (optimistic, since
// most cloud APIs support the basics) and assumed NOT capable for
// provider ∈ {ollama, lmstudio} unless its name carries an explicit
// capability marker (pessimistic, since local runtimes rarely publish
// capability metadata and silently ignoring an unsupported capability is
// worse than a spurious routing miss).
func capabilitiesSatisfied(m modelmeta.ModelMetadata, provider, modelName string, required []string) bool {
	known := metaIsKnown(m)
	pessimistic := localProviders[strings.ToLower(provider)]
	for _, cap := range required {
		if !known {
			if pessimistic && !hasCapabilityMarker(modelName, cap) {
				return false
			}
			continue
		}
		if !capabilitySupported(m, cap) {
			return false
		}
	}
	return true
}

// FilterCandidates is C7: drops candidates that fail capability, minimum
// context length, or maximum per-1k-token cost constraints (§4.7).
func FilterCandidates(cands []ChannelCandidate, req Request, metaReg *modelmeta.Registry) []ChannelCandidate {
	required := DeriveCapabilities(req)

	out := make([]ChannelCandidate, 0, len(cands))
	for _, c := range cands {
		meta := metaReg.Get(c.MatchedModel, c.Provider, c.ChannelID)

		if req.MinContextLength > 0 && meta.ContextLength > 0 && meta.ContextLength < req.MinContextLength {
			continue
		}
		if req.MaxCostPerKTokens > 0 && !meta.IsFree() && meta.PricingInputPerM > 0 {
			costPerK := meta.PricingInputPerM / 1000
			if costPerK > req.MaxCostPerKTokens {
				continue
			}
		}
		if !capabilitiesSatisfied(meta, c.Provider, c.MatchedModel, required) {
			continue
		}
		out = append(out, c)
	}
	return out
}
