package blacklist

import (
	"strings"
	"sync"
	"time"
)

const (
	channelWideFailureThreshold   = 5
	channelWideDistinctModelLimit = 3
)

type lockedEntry struct {
	mu    sync.Mutex
	entry *Entry
}

type channelState struct {
	mu                sync.Mutex
	failureCount      int
	blacklistedModels map[string]bool
	authFailure       bool
}

// Manager is the (channel,model) keyed blacklist described in §3.4/§4.3.
// Each key has its own mutex; a separate per-channel mutex guards the
// channel-wide escalation counters (§5's "one mutex per (channel,model)
// key... one per channel" sharing rule).
type Manager struct {
	entries  sync.Map // string(key) -> *lockedEntry
	channels sync.Map // channelID -> *channelState
}

func NewManager() *Manager {
	return &Manager{}
}

func key(channelID, model string) string {
	return channelID + "\x00" + strings.ToLower(model)
}

func (m *Manager) channelStateFor(channelID string) *channelState {
	v, _ := m.channels.LoadOrStore(channelID, &channelState{blacklistedModels: make(map[string]bool)})
	return v.(*channelState)
}

// AddEntry classifies a failure and inserts or mutates the (channel, model)
// entry, returning the resulting entry and whether this call escalated the
// entire channel to blacklisted (§4.3: the bool the dispatcher uses to skip
// a channel immediately).
func (m *Manager) AddEntry(channelID, model string, kind FailureKind, statusCode int, body string, now time.Time) (*Entry, bool) {
	retryAfter, hasRetryAfter := ParseRetryAfterBody(body)
	class := Classify(kind, statusCode, body, retryAfter, hasRetryAfter)

	k := key(channelID, model)
	v, _ := m.entries.LoadOrStore(k, &lockedEntry{})
	le := v.(*lockedEntry)

	le.mu.Lock()
	e := le.entry
	if e == nil {
		e = &Entry{
			ChannelID:     channelID,
			Model:         strings.ToLower(model),
			ErrorType:     class.errorType,
			ErrorCode:     statusCode,
			ErrorMessage:  body,
			BlacklistedAt: now,
			IsPermanent:   class.permanent,
			FailureCount:  1,
		}
		if !class.permanent {
			e.BackoffSeconds = int(class.initialBackoff.Seconds())
			e.ExpiresAt = now.Add(class.initialBackoff)
		}
		le.entry = e
	} else {
		e.FailureCount++
		e.ErrorType = class.errorType
		e.ErrorCode = statusCode
		e.ErrorMessage = body
		if class.permanent {
			e.IsPermanent = true
			e.ExpiresAt = time.Time{}
		} else if !e.IsPermanent {
			backoff := int(class.initialBackoff.Seconds())
			if e.FailureCount >= 2 {
				doubled := backoff << uint(e.FailureCount-1)
				if doubled > maxBackoffSeconds || doubled <= 0 {
					doubled = maxBackoffSeconds
				}
				backoff = doubled
			}
			e.BackoffSeconds = backoff
			e.ExpiresAt = now.Add(time.Duration(backoff) * time.Second)
		}
	}
	entryCopy := *e
	le.mu.Unlock()

	cs := m.channelStateFor(channelID)
	cs.mu.Lock()
	cs.failureCount++
	if class.errorType == ErrorAuth {
		cs.authFailure = true
	}
	if !entryCopy.Expired(now) {
		cs.blacklistedModels[entryCopy.Model] = true
	}
	whole := cs.authFailure || cs.failureCount >= channelWideFailureThreshold || len(cs.blacklistedModels) >= channelWideDistinctModelLimit
	cs.mu.Unlock()

	return &entryCopy, whole
}

// IsModelBlacklisted reports whether (channel, model) is currently barred:
// either an unexpired entry exists, or the channel is whole-channel
// blacklisted (§8 invariant 3). Expired entries are garbage-collected here.
func (m *Manager) IsModelBlacklisted(channelID, model string, now time.Time) (bool, *Entry) {
	k := key(channelID, model)
	if v, ok := m.entries.Load(k); ok {
		le := v.(*lockedEntry)
		le.mu.Lock()
		if le.entry != nil {
			if !le.entry.Expired(now) {
				cp := *le.entry
				le.mu.Unlock()
				return true, &cp
			}
			m.entries.Delete(k)
		}
		le.mu.Unlock()
	}
	return m.isChannelWideBlacklisted(channelID), nil
}

func (m *Manager) isChannelWideBlacklisted(channelID string) bool {
	v, ok := m.channels.Load(channelID)
	if !ok {
		return false
	}
	cs := v.(*channelState)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.authFailure || cs.failureCount >= channelWideFailureThreshold || len(cs.blacklistedModels) >= channelWideDistinctModelLimit
}

// BlacklistedModelsForChannel returns the lowercase model names currently
// blacklisted for a channel (unexpired only).
func (m *Manager) BlacklistedModelsForChannel(channelID string, now time.Time) []string {
	var out []string
	m.entries.Range(func(k, v any) bool {
		le := v.(*lockedEntry)
		le.mu.Lock()
		defer le.mu.Unlock()
		if le.entry != nil && le.entry.ChannelID == channelID && !le.entry.Expired(now) {
			out = append(out, le.entry.Model)
		}
		return true
	})
	return out
}

// AvailableChannelsForModel filters allChannelIDs down to those not
// blacklisted for model.
func (m *Manager) AvailableChannelsForModel(model string, allChannelIDs []string, now time.Time) []string {
	out := make([]string, 0, len(allChannelIDs))
	for _, id := range allChannelIDs {
		if blacklisted, _ := m.IsModelBlacklisted(id, model, now); !blacklisted {
			out = append(out, id)
		}
	}
	return out
}

// CleanupExpired removes every expired, non-permanent entry. Intended to be
// called by the 60s cache-expiry sweeper (§5).
func (m *Manager) CleanupExpired(now time.Time) int {
	removed := 0
	m.entries.Range(func(k, v any) bool {
		le := v.(*lockedEntry)
		le.mu.Lock()
		expired := le.entry != nil && le.entry.Expired(now)
		if expired {
			le.entry = nil
		}
		le.mu.Unlock()
		if expired {
			m.entries.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// ExpiredSurvivors returns a snapshot of every non-permanent entry whose
// expiry has passed, for the recovery loop to probe (§4.4 step 1).
func (m *Manager) ExpiredSurvivors(now time.Time) []*Entry {
	var out []*Entry
	m.entries.Range(func(_, v any) bool {
		le := v.(*lockedEntry)
		le.mu.Lock()
		if le.entry != nil && !le.entry.IsPermanent && le.entry.Expired(now) {
			cp := *le.entry
			out = append(out, &cp)
		}
		le.mu.Unlock()
		return true
	})
	return out
}

// AllEntries returns a snapshot of every live entry, permanent or not, for
// the read-only status/admin surfaces (§6.1).
func (m *Manager) AllEntries() []*Entry {
	var out []*Entry
	m.entries.Range(func(_, v any) bool {
		le := v.(*lockedEntry)
		le.mu.Lock()
		if le.entry != nil {
			cp := *le.entry
			out = append(out, &cp)
		}
		le.mu.Unlock()
		return true
	})
	return out
}

// Remove deletes the entry for (channel, model), used when a recovery probe
// succeeds (§4.4 step 5).
func (m *Manager) Remove(channelID, model string) {
	m.entries.Delete(key(channelID, model))
}

// ExtendExpiry pushes an entry's expiry forward after a failed recovery
// probe, using k = consecutive failed probes for the exponent (§4.4 step 5).
func (m *Manager) ExtendExpiry(channelID, model string, base time.Duration, now time.Time) {
	k := key(channelID, model)
	v, ok := m.entries.Load(k)
	if !ok {
		return
	}
	le := v.(*lockedEntry)
	le.mu.Lock()
	defer le.mu.Unlock()
	if le.entry == nil || le.entry.IsPermanent {
		return
	}
	le.entry.consecutiveProbeFailures++
	extension := base.Seconds() * pow2(le.entry.consecutiveProbeFailures)
	if extension > maxBackoffSeconds {
		extension = maxBackoffSeconds
	}
	le.entry.ExpiresAt = now.Add(time.Duration(extension) * time.Second)
}

func pow2(exp int) float64 {
	v := 1.0
	for i := 0; i < exp; i++ {
		v *= 2
	}
	return v
}

// ClearPermanent removes a permanent entry, used by the admin API (§6.1
// "/admin/..." mutates C1 and C3; §8 invariant 2: only admin clears auth bans).
func (m *Manager) ClearPermanent(channelID, model string) bool {
	k := key(channelID, model)
	v, ok := m.entries.Load(k)
	if !ok {
		return false
	}
	le := v.(*lockedEntry)
	le.mu.Lock()
	defer le.mu.Unlock()
	if le.entry == nil || !le.entry.IsPermanent {
		return false
	}
	clearedModel := le.entry.Model
	le.entry = nil
	m.entries.Delete(k)

	cs := m.channelStateFor(channelID)
	cs.mu.Lock()
	cs.authFailure = false
	delete(cs.blacklistedModels, clearedModel)
	cs.mu.Unlock()
	return true
}
