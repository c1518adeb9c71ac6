package routing

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
)

// ErrNoCandidates is returned by ResolveCandidates when model resolution
// produced zero eligible (channel, model) pairs (§4.6, §7: maps to the
// gateway's no_channels error).
var ErrNoCandidates = errors.New("no candidate channels for requested model")

// ResolveCandidates is C6: expands req.Model into concrete (channel, model)
// pairs via one of three resolution modes (§4.6):
//
//   - exact model id: channels whose discovered concrete models (falling
//     back to their configured model_name) match case-insensitively and
//     provider-prefix-tolerantly ("openai/gpt-4o-mini" matches
//     "gpt-4o-mini").
//   - "tag:a,b": every enabled channel's discovered concrete models are
//     enumerated, and a candidate is produced per (channel, concrete-model)
//     whose derived+declared tag set is a superset of {a,b}.
//   - "auto:strategy": every enabled channel's own model_name, unfiltered by
//     tags; strategy is returned alongside the candidates so the caller can
//     attach it to the request for §4.8 weight selection.
//
// Disabled channels, excluded providers, and blacklisted (channel, model)
// pairs are dropped before returning. The second return value is the
// strategy name parsed out of an "auto:" selector, empty for the other two
// modes.
func ResolveCandidates(req Request, cfgReg *config.Registry, metaReg *modelmeta.Registry, bl *blacklist.Manager, now time.Time) ([]ChannelCandidate, string, error) {
	excluded := make(map[string]bool, len(req.ExcludeProviders))
	for _, p := range req.ExcludeProviders {
		excluded[strings.ToLower(p)] = true
	}

	var matched []ChannelCandidate
	var strategy string
	switch {
	case strings.HasPrefix(req.Model, "tag:"):
		tags := splitTags(strings.TrimPrefix(req.Model, "tag:"))
		matched = matchByTags(cfgReg, tags, excluded)
	case strings.HasPrefix(req.Model, "auto:"):
		strategy = strings.TrimSpace(strings.TrimPrefix(req.Model, "auto:"))
		matched = matchAllChannels(cfgReg, excluded)
	default:
		matched = matchExact(cfgReg, req.Model, excluded)
	}

	out := make([]ChannelCandidate, 0, len(matched))
	for _, c := range matched {
		if blacklisted, _ := bl.IsModelBlacklisted(c.ChannelID, c.MatchedModel, now); blacklisted {
			continue
		}
		out = append(out, c)
	}

	if len(out) == 0 {
		return nil, strategy, ErrNoCandidates
	}
	return out, strategy, nil
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// concreteModelsFor returns the channel's discovered-model cache (§6.4: the
// concrete model ids its /v1/models endpoint actually reports, populated by
// the recovery loop's probes) or, absent any discovery yet, its single
// configured model_name as the only known concrete model.
func concreteModelsFor(cfgReg *config.Registry, ch *config.Channel) []string {
	if discovered := cfgReg.DiscoveredModels(ch.ID); len(discovered) > 0 {
		return discovered
	}
	return []string{ch.ModelName}
}

// stripProviderPrefix removes a leading "provider/" segment, if any, so
// "openai/gpt-4o-mini" and "gpt-4o-mini" compare equal.
func stripProviderPrefix(model string) string {
	if i := strings.Index(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// modelsMatch is §4.6 mode 1's provider-prefix-tolerant comparison: equal
// case-insensitively either as given or with either side's "provider/"
// prefix stripped.
func modelsMatch(requested, concrete string) bool {
	if strings.EqualFold(requested, concrete) {
		return true
	}
	return strings.EqualFold(stripProviderPrefix(requested), stripProviderPrefix(concrete))
}

func matchExact(cfgReg *config.Registry, model string, excluded map[string]bool) []ChannelCandidate {
	var out []ChannelCandidate
	for _, ch := range cfgReg.EnabledChannels() {
		if excluded[strings.ToLower(ch.Provider)] {
			continue
		}
		for _, concrete := range concreteModelsFor(cfgReg, ch) {
			if modelsMatch(model, concrete) {
				out = append(out, candidateFromChannel(ch, concrete))
			}
		}
	}
	return out
}

// matchAllChannels is §4.6 mode 3's candidate set for "auto:strategy": every
// enabled, non-excluded channel's own default model, unfiltered by tags.
func matchAllChannels(cfgReg *config.Registry, excluded map[string]bool) []ChannelCandidate {
	var out []ChannelCandidate
	for _, ch := range cfgReg.EnabledChannels() {
		if excluded[strings.ToLower(ch.Provider)] {
			continue
		}
		out = append(out, candidateFromChannel(ch, ch.ModelName))
	}
	return out
}

// matchByTags resolves model=="tag:a,b,...": every enabled channel's
// discovered concrete models (§4.6 mode 2), each checked against tags
// derived from that concrete model id plus the channel's declared tags; a
// candidate is kept only when its tag set is a superset of the request.
func matchByTags(cfgReg *config.Registry, tags []string, excluded map[string]bool) []ChannelCandidate {
	var out []ChannelCandidate
	for _, ch := range cfgReg.EnabledChannels() {
		if excluded[strings.ToLower(ch.Provider)] {
			continue
		}
		for _, concrete := range concreteModelsFor(cfgReg, ch) {
			channelTags := modelmeta.DeriveTags(concrete)
			for _, t := range ch.Tags {
				channelTags[strings.ToLower(t)] = true
			}
			if tagsSuperset(channelTags, tags) {
				out = append(out, candidateFromChannel(ch, concrete))
			}
		}
	}
	return out
}

func tagsSuperset(have map[string]bool, want []string) bool {
	for _, t := range want {
		if !have[t] {
			return false
		}
	}
	return true
}

func candidateFromChannel(ch *config.Channel, matchedModel string) ChannelCandidate {
	rate := 0.0
	if ch.CurrencyExchange != nil {
		rate = ch.CurrencyExchange.Rate
	}
	return ChannelCandidate{
		ChannelID:    ch.ID,
		Provider:     ch.Provider,
		BaseURL:      ch.BaseURL,
		APIKey:       ch.APIKey,
		Priority:     ch.Priority,
		MatchedModel: matchedModel,
		MinIntervalS: ch.MinRequestIntervalS,
		ExchangeRate: rate,
	}
}
