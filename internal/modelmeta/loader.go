package modelmeta

import (
	"encoding/json"
	"os"

	"github.com/Laisky/errors/v2"
)

// catalogEntry mirrors one row of the cached OpenRouter-style JSON catalog
// (§4.2, §6.4 cache/model_pricing.json), as read from disk.
type catalogEntry struct {
	ModelID             string   `json:"id"`
	ParameterCountM     float64  `json:"parameter_count_m"`
	ContextLength       int      `json:"context_length"`
	Modality            string   `json:"modality"`
	InputModalities     []string `json:"input_modalities"`
	OutputModalities    []string `json:"output_modalities"`
	SupportedParameters []string `json:"supported_parameters"`
	PricingInputPerM    float64  `json:"pricing_input_per_m"`
	PricingOutputPerM   float64  `json:"pricing_output_per_m"`
	QualityScore        float64  `json:"quality_score"`
	SpeedScore          float64  `json:"speed_score"`
}

// LoadCatalogFile parses a cached OpenRouter-style JSON catalog file into
// the base layer consumed by NewRegistry.
func LoadCatalogFile(path string) (map[string]ModelMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model catalog file")
	}
	var entries []catalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "parse model catalog json")
	}

	out := make(map[string]ModelMetadata, len(entries))
	for _, e := range entries {
		out[e.ModelID] = ModelMetadata{
			ModelID:             e.ModelID,
			ParameterCountM:     e.ParameterCountM,
			ContextLength:       e.ContextLength,
			Modality:            e.Modality,
			InputModalities:     e.InputModalities,
			OutputModalities:    e.OutputModalities,
			SupportedParameters: e.SupportedParameters,
			PricingInputPerM:    e.PricingInputPerM,
			PricingOutputPerM:   e.PricingOutputPerM,
			QualityScore:        e.QualityScore,
			SpeedScore:          e.SpeedScore,
			Tags:                DeriveTags(e.ModelID),
		}
	}
	return out, nil
}

// providerOverrideFile mirrors cache/provider_overrides.json.
type providerOverrideFile struct {
	PricingMultiplier float64 `json:"pricing_multiplier"`
	ForceFree         bool    `json:"force_free"`
	Local             bool    `json:"local"`
}

// LoadProviderOverridesFile parses cache/provider_overrides.json and applies
// it to the registry, replacing (not merging with) the built-in defaults —
// operators who customize this file take full ownership of it.
func (r *Registry) LoadProviderOverridesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read provider overrides file")
	}
	var parsed map[string]providerOverrideFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return errors.Wrap(err, "parse provider overrides json")
	}

	overrides := make(map[string]providerOverride, len(parsed))
	for name, ov := range parsed {
		overrides[name] = providerOverride{
			PricingMultiplier: ov.PricingMultiplier,
			ForceFree:         ov.ForceFree,
			Local:             ov.Local,
		}
	}
	r.SetProviderOverrides(overrides)
	return nil
}
