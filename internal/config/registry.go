// Package config implements C1 Config & Channel Registry: parsing the YAML
// document described in spec.md §6.3, validating channels, and exposing
// queries and mutations under a single writer lock. This replaces the
// teacher's DB-backed channel table (model/channel.go) with an in-memory,
// YAML-backed registry, since this gateway's channels are operator-managed
// config rather than end-user-provisioned accounts.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"

	"github.com/songquanpeng/smart-router-gateway/internal/logger"
)

const minAPIKeyLength = 10

// ChannelStats is the coarse runtime-state struct that lives beside the
// config and is updated on every request outcome (§4.1).
type ChannelStats struct {
	TotalRequests  int64
	TotalFailures  int64
	HealthScore    float64 // EWMA in [0,1], seeded at 1.0
	LastOutcomeAt  time.Time
	LastLatencyMS  int64
}

// Registry is the explicit handle replacing the teacher's global config
// singleton (Design Notes §9): created once at startup and passed down to
// every component that needs channel/provider data.
type Registry struct {
	mu   sync.RWMutex
	cfg  *Config
	path string

	statsMu sync.Mutex
	stats   map[string]*ChannelStats // key: channel id

	modelsMu  sync.RWMutex
	discovered map[string][]string // key: channel id, value: concrete model ids
}

// Load parses path into a Registry, validating every channel per §4.1: a
// channel with a missing or too-short api_key is force-disabled with a
// logged warning rather than rejected, so a single bad entry never blocks
// startup.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}

	r := &Registry{
		cfg:        &cfg,
		path:       path,
		stats:      make(map[string]*ChannelStats),
		discovered: make(map[string][]string),
	}
	r.validateChannels()
	r.seedStats()
	return r, nil
}

func (r *Registry) validateChannels() {
	seen := make(map[string]bool, len(r.cfg.Channels))
	for _, ch := range r.cfg.Channels {
		if seen[ch.ID] {
			logger.Logger.Warn("duplicate channel id in config, keeping first occurrence: " + ch.ID)
			ch.Enabled = false
			ch.disabledReason = "duplicate id"
			continue
		}
		seen[ch.ID] = true

		if len(strings.TrimSpace(ch.APIKey)) < minAPIKeyLength {
			ch.Enabled = false
			ch.disabledReason = "api_key missing or shorter than 10 chars"
			logger.Logger.Warn("channel force-disabled: invalid api_key: " + ch.ID)
		}
	}
}

func (r *Registry) seedStats() {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	for _, ch := range r.cfg.Channels {
		r.stats[ch.ID] = &ChannelStats{HealthScore: 1.0}
	}
}

// EnabledChannels returns every channel with Enabled == true, in no
// particular order; callers that need priority order should sort explicitly
// (candidate discovery and the scorer do their own ordering).
func (r *Registry) EnabledChannels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Channel, 0, len(r.cfg.Channels))
	for _, ch := range r.cfg.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// AuthConfig returns a copy of the auth section (ingress API token + admin
// token), consulted by the middleware package on every request.
func (r *Registry) AuthConfig() AuthConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Auth
}

// ServerConfig returns a copy of the server section (host/port/debug).
func (r *Registry) ServerConfig() ServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Server
}

// RoutingConfigSnapshot returns a copy of the routing section, used by admin
// read endpoints that list configured strategies.
func (r *Registry) RoutingConfigSnapshot() RoutingConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Routing
}

// AllChannels returns every configured channel, enabled or not (used by
// admin/status read endpoints).
func (r *Registry) AllChannels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, len(r.cfg.Channels))
	copy(out, r.cfg.Channels)
	return out
}

// ChannelByID looks up a channel by its stable id.
func (r *Registry) ChannelByID(id string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.cfg.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return nil, false
}

// Provider looks up a provider definition by name.
func (r *Registry) Provider(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.cfg.Providers[name]
	return p, ok
}

// SetChannelEnabled flips a channel's enabled flag and persists the change.
func (r *Registry) SetChannelEnabled(id string, enabled bool) error {
	r.mu.Lock()
	found := false
	for _, ch := range r.cfg.Channels {
		if ch.ID == id {
			ch.Enabled = enabled
			found = true
			break
		}
	}
	r.mu.Unlock()
	if !found {
		return errors.Errorf("unknown channel id %q", id)
	}
	return r.persist()
}

// SetChannelPriority updates a channel's priority (lower = better) and persists.
func (r *Registry) SetChannelPriority(id string, priority int) error {
	r.mu.Lock()
	found := false
	for _, ch := range r.cfg.Channels {
		if ch.ID == id {
			ch.Priority = priority
			found = true
			break
		}
	}
	r.mu.Unlock()
	if !found {
		return errors.Errorf("unknown channel id %q", id)
	}
	return r.persist()
}

// persist writes the current in-memory config back to r.path atomically:
// marshal a defensive copy (via copier, so concurrent readers never observe
// a struct mid-marshal), write to a temp file in the same directory, then
// rename over the original (§4.1).
func (r *Registry) persist() error {
	r.mu.RLock()
	var snapshot Config
	if err := copier.CopyWithOption(&snapshot, r.cfg, copier.Option{DeepCopy: true}); err != nil {
		r.mu.RUnlock()
		return errors.Wrap(err, "snapshot config for persist")
	}
	r.mu.RUnlock()

	out, err := yaml.Marshal(&snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp config file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp config file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp config file")
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return errors.Wrap(err, "rename temp config file into place")
	}
	return nil
}

// RecordOutcome updates the coarse runtime-state struct for a channel after
// a request completes, feeding §4.8's reliability dimension.
func (r *Registry) RecordOutcome(channelID string, success bool, latency time.Duration) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	st, ok := r.stats[channelID]
	if !ok {
		st = &ChannelStats{HealthScore: 1.0}
		r.stats[channelID] = st
	}
	st.TotalRequests++
	st.LastOutcomeAt = time.Now()
	st.LastLatencyMS = latency.Milliseconds()
	if success {
		st.HealthScore = clamp01(st.HealthScore + 0.01)
	} else {
		st.TotalFailures++
		st.HealthScore = clamp01(st.HealthScore - 0.05)
	}
}

// Stats returns a snapshot copy of a channel's runtime stats.
func (r *Registry) Stats(channelID string) ChannelStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	if st, ok := r.stats[channelID]; ok {
		return *st
	}
	return ChannelStats{HealthScore: 1.0}
}

// DiscoveredModels returns the concrete model ids a channel's /v1/models
// probe last reported (§6.4's discovered-model cache), or nil if the
// channel has never been successfully probed.
func (r *Registry) DiscoveredModels(channelID string) []string {
	r.modelsMu.RLock()
	defer r.modelsMu.RUnlock()
	models := r.discovered[channelID]
	if models == nil {
		return nil
	}
	out := make([]string, len(models))
	copy(out, models)
	return out
}

// SetDiscoveredModels records the concrete model ids a channel's
// /v1/models endpoint reported, replacing any prior cache entry for that
// channel. Called by the recovery loop after a successful probe.
func (r *Registry) SetDiscoveredModels(channelID string, models []string) {
	r.modelsMu.Lock()
	defer r.modelsMu.Unlock()
	cp := make([]string, len(models))
	copy(cp, models)
	r.discovered[channelID] = cp
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SortedByPriority returns channels ordered by Priority ascending, then by
// Id for determinism (§4.8 hierarchical tiebreak).
func SortedByPriority(channels []*Channel) []*Channel {
	out := make([]*Channel, len(channels))
	copy(out, channels)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
