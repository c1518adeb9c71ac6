// C9 Selection Cache: memoizes a full routed decision (primary + backups)
// for 60s keyed by the request fingerprint (§3.6, §4.9), so identical
// concurrent or rapid-fire requests skip re-running discovery/filter/score.
// Built on patrickmn/go-cache, the same TTL-cache library the teacher's
// billing layer uses for exchange-rate memoization (common/pricing.go).
package routing

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const selectionCacheTTL = 60 * time.Second

// Decision is what C9 stores and C10 consumes: the ordered candidate list a
// routing pass produced, split into the chosen primary and its backups.
type Decision struct {
	Primary       Score
	Backups       []Score
	Reason        string
	EstimatedCost float64
	CachedAt      time.Time
}

// SelectionCache is a thin typed wrapper; the zero value is not usable, use
// NewSelectionCache.
type SelectionCache struct {
	cache *gocache.Cache
}

func NewSelectionCache() *SelectionCache {
	return &SelectionCache{cache: gocache.New(selectionCacheTTL, 2*time.Minute)}
}

func (c *SelectionCache) Get(fingerprint string) (Decision, bool) {
	v, ok := c.cache.Get(fingerprint)
	if !ok {
		return Decision{}, false
	}
	return v.(Decision), true
}

func (c *SelectionCache) Set(fingerprint string, d Decision) {
	d.CachedAt = time.Now()
	c.cache.Set(fingerprint, d, gocache.DefaultExpiration)
}

// InvalidateChannel drops every cached decision whose primary or any backup
// references channelID, so a fresh blacklist/disable event is reflected
// immediately instead of waiting out the TTL (§4.9).
func (c *SelectionCache) InvalidateChannel(channelID string) {
	for key, item := range c.cache.Items() {
		d, ok := item.Object.(Decision)
		if !ok {
			continue
		}
		if decisionReferencesChannel(d, channelID) {
			c.cache.Delete(key)
		}
	}
}

func decisionReferencesChannel(d Decision, channelID string) bool {
	if d.Primary.Candidate.ChannelID == channelID {
		return true
	}
	for _, b := range d.Backups {
		if b.Candidate.ChannelID == channelID {
			return true
		}
	}
	return false
}

// Sweep removes every expired entry; intended for the 60s background
// sweeper described in §5, though go-cache's janitor already does this
// passively — Sweep exists so the sweeper's tick is observable in tests and
// logs rather than purely implicit.
func (c *SelectionCache) Sweep() {
	c.cache.DeleteExpired()
}
