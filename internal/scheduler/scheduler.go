// Package scheduler implements C5 Request-Interval Scheduler: a per-channel
// minimum-interval gate that skips channels not yet ready (§4.5). Built on
// golang.org/x/time/rate's token-bucket limiter (one per channel, refilled
// at 1/min_interval Hz with burst 1), which gives lock-free reads for the
// common case and exact "now - last >= min_interval" semantics for free.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler guards one golang.org/x/time/rate.Limiter per channel_id,
// created lazily (§5: "one per channel" mutex-equivalent granularity).
type Scheduler struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	last     map[string]time.Time
}

func New() *Scheduler {
	return &Scheduler{
		limiters: make(map[string]*rate.Limiter),
		last:     make(map[string]time.Time),
	}
}

func (s *Scheduler) limiterFor(channelID string, minInterval time.Duration) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[channelID]
	if !ok {
		l = newLimiter(minInterval)
		s.limiters[channelID] = l
		return l
	}
	return l
}

func newLimiter(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		// A channel with min_request_interval=0 is never skipped (§8
		// boundary behaviour): use an effectively unlimited limiter.
		return rate.NewLimiter(rate.Inf, 1)
	}
	every := rate.Every(minInterval)
	return rate.NewLimiter(every, 1)
}

// IsChannelReady is a lock-free-ish read (rate.Limiter.Tokens reads
// the bucket without a caller-held lock) reporting
// whether a dispatch may proceed right now without consuming the token.
func (s *Scheduler) IsChannelReady(channelID string, minInterval time.Duration) bool {
	l := s.limiterFor(channelID, minInterval)
	return l.Tokens() >= 1
}

// RecordRequest consumes the channel's token, marking "now" as the last
// dispatch time. The dispatcher calls this immediately before sending the
// upstream request, not after, to avoid herd effects during long streaming
// calls (§4.5).
func (s *Scheduler) RecordRequest(channelID string, minInterval time.Duration) {
	l := s.limiterFor(channelID, minInterval)
	l.Allow()
	s.mu.Lock()
	s.last[channelID] = time.Now()
	s.mu.Unlock()
}

// WaitIfNeeded blocks until the channel's interval gate allows a dispatch,
// honoring ctx cancellation. Used by callers that prefer to wait over
// failing over (§4.5, §8 scenario 4).
func (s *Scheduler) WaitIfNeeded(ctx context.Context, channelID string, minInterval time.Duration) error {
	l := s.limiterFor(channelID, minInterval)
	return l.Wait(ctx)
}

// LastDispatch returns the last recorded dispatch time for a channel, or
// the zero time if none yet (§8 invariant 5 verification helper).
func (s *Scheduler) LastDispatch(channelID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[channelID]
}
