// Package blacklist implements C3 Blacklist Manager: a (channel_id,
// lowercase(model_name)) keyed map of typed failures with expiry, failure
// counts, and channel-wide escalation (§3.4, §4.3). Grounded on the
// teacher's controller/relay.go classification/suspension logic
// (processChannelRelayError, SuspendAbility) generalized from a DB-backed
// per-ability suspend_until column to an in-memory, typed, expiring entry.
package blacklist

import "time"

type ErrorType string

const (
	ErrorRateLimit        ErrorType = "rate_limit"
	ErrorAuth             ErrorType = "auth_error"
	ErrorModelUnavailable ErrorType = "model_unavailable"
	ErrorQuotaExceeded    ErrorType = "quota_exceeded"
	ErrorServer           ErrorType = "server_error"
	ErrorTimeout          ErrorType = "timeout"
	ErrorConnection       ErrorType = "connection_error"
	ErrorUnknown          ErrorType = "unknown"
)

const maxBackoffSeconds = 3600

// Entry is a typed, expiring record barring a (channel, model) pair from
// being tried (§3.4). Invariants: IsPermanent => ExpiresAt is zero;
// BackoffSeconds doubles (capped) on re-fail.
type Entry struct {
	ChannelID      string
	Model          string // lowercased
	ErrorType      ErrorType
	ErrorCode      int // HTTP status, or 0
	ErrorMessage   string
	BlacklistedAt  time.Time
	ExpiresAt      time.Time // zero value means no expiry (only valid when IsPermanent)
	FailureCount   int
	IsPermanent    bool
	BackoffSeconds int

	// consecutiveProbeFailures counts failed recovery probes (§4.4), used to
	// compute the recovery loop's own exponential backoff on expiry extension.
	consecutiveProbeFailures int
}

// Expired reports whether a non-permanent entry's expiry has passed.
func (e *Entry) Expired(now time.Time) bool {
	if e.IsPermanent {
		return false
	}
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
