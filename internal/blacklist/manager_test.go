package blacklist

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify_AuthIsPermanent(t *testing.T) {
	c := Classify(FailureHTTPStatus, http.StatusUnauthorized, "", 0, false)
	require.Equal(t, ErrorAuth, c.errorType)
	require.True(t, c.permanent)
}

func TestClassify_429Quota(t *testing.T) {
	c := Classify(FailureHTTPStatus, http.StatusTooManyRequests, "insufficient quota/balance", 0, false)
	require.Equal(t, ErrorQuotaExceeded, c.errorType)
	require.Equal(t, 1800*time.Second, c.initialBackoff)
}

func TestClassify_429RetryAfterCapped(t *testing.T) {
	c := Classify(FailureHTTPStatus, http.StatusTooManyRequests, "", 10*time.Minute, true)
	require.Equal(t, ErrorRateLimit, c.errorType)
	require.Equal(t, 300*time.Second, c.initialBackoff)
}

func TestAddEntry_PermanentAuthBlocksImmediately(t *testing.T) {
	m := NewManager()
	now := time.Now()
	_, whole := m.AddEntry("c1", "gpt-4o", FailureHTTPStatus, http.StatusUnauthorized, "invalid api key", now)
	require.True(t, whole)

	blacklisted, entry := m.IsModelBlacklisted("c1", "gpt-4o", now)
	require.True(t, blacklisted)
	require.NotNil(t, entry)
	require.True(t, entry.IsPermanent)
}

func TestAddEntry_BackoffDoublesOnRefail(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.AddEntry("c2", "m1", FailureHTTPStatus, http.StatusInternalServerError, "", now)
	e1, _ := m.entries.Load(key("c2", "m1"))
	first := e1.(*lockedEntry).entry.BackoffSeconds
	require.Equal(t, 60, first)

	m.AddEntry("c2", "m1", FailureHTTPStatus, http.StatusInternalServerError, "", now)
	second := e1.(*lockedEntry).entry.BackoffSeconds
	require.Equal(t, 120, second)
}

func TestChannelWideEscalation_ThreeDistinctModels(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.AddEntry("c3", "a", FailureHTTPStatus, http.StatusInternalServerError, "", now)
	m.AddEntry("c3", "b", FailureHTTPStatus, http.StatusInternalServerError, "", now)
	_, whole := m.AddEntry("c3", "c", FailureHTTPStatus, http.StatusInternalServerError, "", now)
	require.True(t, whole)

	blacklisted, _ := m.IsModelBlacklisted("c3", "never-touched-model", now)
	require.True(t, blacklisted)
}

func TestIsModelBlacklisted_ExpiredEntryGarbageCollected(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.AddEntry("c4", "m", FailureHTTPStatus, http.StatusNotFound, "", now)

	future := now.Add(400 * time.Second)
	blacklisted, _ := m.IsModelBlacklisted("c4", "m", future)
	require.False(t, blacklisted)
}

func TestExtendExpiry_ExponentialOnRepeatedProbeFailure(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.AddEntry("c5", "m", FailureHTTPStatus, http.StatusInternalServerError, "", now)

	m.ExtendExpiry("c5", "m", 60*time.Second, now)
	v, _ := m.entries.Load(key("c5", "m"))
	require.Equal(t, now.Add(120*time.Second), v.(*lockedEntry).entry.ExpiresAt)
}

func TestClearPermanent(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.AddEntry("c6", "m", FailureHTTPStatus, http.StatusForbidden, "account deactivated", now)
	require.True(t, m.ClearPermanent("c6", "m"))
	blacklisted, _ := m.IsModelBlacklisted("c6", "m", now)
	require.False(t, blacklisted)
}
