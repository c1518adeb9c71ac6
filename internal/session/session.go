// Package session implements per-API-key request accounting (§3.7):
// total requests, cumulative cost, and the distinct models/channels an
// API key has exercised, keyed by a hash of the masked key, user-agent,
// and client IP so two keys behind the same proxy stay distinguishable
// without ever storing the raw key. Built on patrickmn/go-cache with a 1h
// idle TTL, the same memoization library the routing package uses for its
// selection cache (internal/routing/selection_cache.go) and the teacher's
// billing layer uses for exchange-rate memoization (common/pricing.go).
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const idleTTL = time.Hour

// Session is the per-key accounting row described in §3.7.
type Session struct {
	Key           string
	MaskedAPIKey  string
	TotalRequests int64
	TotalCost     float64
	ModelsUsed    map[string]int
	ChannelsUsed  map[string]int
	LastActiveAt  time.Time
}

// Manager is the 1h-idle-expiring session table (§3.7, §5 "flush session
// table" on shutdown).
type Manager struct {
	cache *gocache.Cache
	mu    sync.Mutex
}

func NewManager() *Manager {
	return &Manager{cache: gocache.New(idleTTL, 10*time.Minute)}
}

// Key hashes a masked API key, a user-agent truncated to 100 bytes, and a
// client IP into the stable session identity (§3.7). clientIP may be empty
// if the deployment chooses not to key sessions by IP.
func Key(apiKey, userAgent, clientIP string) string {
	masked := MaskAPIKey(apiKey)
	ua := userAgent
	if len(ua) > 100 {
		ua = ua[:100]
	}
	h := sha256.New()
	h.Write([]byte(masked))
	h.Write([]byte{0})
	h.Write([]byte(ua))
	h.Write([]byte{0})
	h.Write([]byte(clientIP))
	return hex.EncodeToString(h.Sum(nil))
}

// MaskAPIKey keeps the first 6 and last 4 characters of a key visible
// (enough for an operator to eyeball which key a session belongs to) and
// replaces the rest with asterisks. Short keys are masked entirely.
func MaskAPIKey(apiKey string) string {
	const headLen, tailLen = 6, 4
	if len(apiKey) <= headLen+tailLen {
		return "**********"
	}
	return apiKey[:headLen] + "****" + apiKey[len(apiKey)-tailLen:]
}

// Touch records one request against the session identified by key,
// creating it on first use, and returns the updated snapshot.
func (m *Manager) Touch(key, maskedAPIKey, model, channelID string, cost float64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(key)
	if s == nil {
		s = &Session{
			Key:          key,
			MaskedAPIKey: maskedAPIKey,
			ModelsUsed:   make(map[string]int),
			ChannelsUsed: make(map[string]int),
		}
	}

	s.TotalRequests++
	s.TotalCost += cost
	if model != "" {
		s.ModelsUsed[model]++
	}
	if channelID != "" {
		s.ChannelsUsed[channelID]++
	}
	s.LastActiveAt = time.Now()

	m.cache.Set(key, s, gocache.DefaultExpiration)
	return s
}

// Get returns a session's current snapshot without recording a new request,
// for the admin/status read surface.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getLocked(key)
	if s == nil {
		return nil, false
	}
	return s, true
}

func (m *Manager) getLocked(key string) *Session {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil
	}
	return v.(*Session)
}

// CumulativeCost is a convenience accessor for the dispatcher's
// session_cumulative_cost summary field (§4.10 streaming contract
// paragraph): the cost already recorded for this session before the
// in-flight request's own cost is added.
func (m *Manager) CumulativeCost(key string) float64 {
	s, ok := m.Get(key)
	if !ok {
		return 0
	}
	return s.TotalCost
}

// Count reports how many sessions are currently tracked (used by status
// endpoints).
func (m *Manager) Count() int {
	return m.cache.ItemCount()
}

// Flush evicts every tracked session, used during the shutdown drain
// sequence (§5: "flush session table").
func (m *Manager) Flush() {
	m.cache.Flush()
}
