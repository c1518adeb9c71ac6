package modelmeta

import (
	"strings"
	"sync"

	"github.com/jinzhu/copier"
)

// providerOverride captures the small static per-provider adjustments the
// source applies (provider_overrides.json): e.g. siliconflow charges 0.1x
// list price, groq is free, ollama/lmstudio are local.
type providerOverride struct {
	PricingMultiplier float64
	ForceFree         bool
	Local             bool
}

// Registry merges base catalog, provider overrides, and channel overrides
// per the precedence rule in §3.3: channel > provider > base. It never
// errors on an unknown model; Get falls back to zero-value metadata plus
// heuristic inference (§3.3 invariant).
type Registry struct {
	mu sync.RWMutex

	base     map[string]ModelMetadata // key: modelID (provider-agnostic base catalog)
	provider map[string]providerOverride
	channel  map[string]ModelMetadata // key: channelID + "/" + modelID

	tagIndex map[string]map[string]bool // tag -> set(modelID)
}

var defaultProviderOverrides = map[string]providerOverride{
	"siliconflow": {PricingMultiplier: 0.1},
	"groq":        {ForceFree: true},
	"ollama":      {Local: true, ForceFree: true},
	"lmstudio":    {Local: true, ForceFree: true},
}

// NewRegistry constructs a Registry from a base catalog (as loaded from the
// cached OpenRouter-style JSON, §4.2). Provider overrides default to the
// well-known static table and may be replaced via SetProviderOverrides.
func NewRegistry(base map[string]ModelMetadata) *Registry {
	r := &Registry{
		base:     base,
		provider: make(map[string]providerOverride, len(defaultProviderOverrides)),
		channel:  make(map[string]ModelMetadata),
		tagIndex: make(map[string]map[string]bool),
	}
	for k, v := range defaultProviderOverrides {
		r.provider[k] = v
	}
	r.rebuildTagIndex()
	return r
}

func (r *Registry) rebuildTagIndex() {
	r.tagIndex = make(map[string]map[string]bool)
	for id := range r.base {
		for tag := range DeriveTags(id) {
			if r.tagIndex[tag] == nil {
				r.tagIndex[tag] = make(map[string]bool)
			}
			r.tagIndex[tag][id] = true
		}
	}
}

// SetChannelOverride records a channel-specific override for (channelID, modelID).
func (r *Registry) SetChannelOverride(channelID, modelID string, meta ModelMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel[channelID+"/"+modelID] = meta
}

// SetProviderOverrides replaces the provider override table wholesale
// (loaded from provider_overrides.json at startup, §4.2).
func (r *Registry) SetProviderOverrides(overrides map[string]providerOverride) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provider = overrides
}

// Get resolves metadata for a model, optionally scoped to a provider and/or
// channel. Base -> provider -> channel precedence (§3.3); never errors.
func (r *Registry) Get(modelID, provider, channelID string) ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.base[strings.ToLower(modelID)]
	if !ok {
		meta = ModelMetadata{ModelID: modelID}
	}
	meta.ModelID = modelID
	meta.Provider = provider
	if meta.Tags == nil {
		meta.Tags = DeriveTags(modelID)
	}

	if ov, ok := r.provider[provider]; ok {
		if ov.PricingMultiplier > 0 {
			meta.PricingInputPerM *= ov.PricingMultiplier
			meta.PricingOutputPerM *= ov.PricingMultiplier
		}
		if ov.ForceFree {
			meta.PricingInputPerM = 0
			meta.PricingOutputPerM = 0
		}
		if ov.Local {
			meta.Tags["local"] = true
		}
	}

	if channelID != "" {
		if chOv, ok := r.channel[channelID+"/"+modelID]; ok {
			merged := meta
			_ = copier.CopyWithOption(&merged, &chOv, copier.Option{IgnoreEmpty: true})
			meta = merged
		}
	}

	return meta
}

// FindByTags returns every base-catalog model whose tag set (derived from
// its id) is a superset of the requested tags, optionally scoped to a
// provider. Used by candidate discovery's tag: resolution (§4.6).
func (r *Registry) FindByTags(tags []string, provider string) []ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ModelMetadata
	for id, meta := range r.base {
		if meta.Tags == nil {
			meta.Tags = DeriveTags(id)
		}
		if !isSuperset(meta.Tags, tags) {
			continue
		}
		meta.ModelID = id
		if provider != "" {
			meta.Provider = provider
		}
		out = append(out, meta)
	}
	return out
}

func isSuperset(tagSet map[string]bool, requested []string) bool {
	for _, t := range requested {
		if !tagSet[strings.ToLower(t)] {
			return false
		}
	}
	return true
}

// FreeModels returns every base-catalog model with zero input/output pricing.
func (r *Registry) FreeModels() []ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ModelMetadata
	for id, meta := range r.base {
		if meta.IsFree() {
			meta.ModelID = id
			out = append(out, meta)
		}
	}
	return out
}

// VisionModels returns every base-catalog model that supports vision input.
func (r *Registry) VisionModels() []ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ModelMetadata
	for id, meta := range r.base {
		if meta.SupportsVision() {
			meta.ModelID = id
			out = append(out, meta)
		}
	}
	return out
}
