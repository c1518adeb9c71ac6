package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectionCache_SetGetRoundTrip(t *testing.T) {
	c := NewSelectionCache()
	d := Decision{Primary: Score{Candidate: ChannelCandidate{ChannelID: "c1"}, Total: 0.9}}
	c.Set("fp1", d)

	got, ok := c.Get("fp1")
	require.True(t, ok)
	require.Equal(t, "c1", got.Primary.Candidate.ChannelID)
	require.False(t, got.CachedAt.IsZero())
}

func TestSelectionCache_MissReturnsFalse(t *testing.T) {
	c := NewSelectionCache()
	_, ok := c.Get("missing")
	require.False(t, ok)
}

func TestSelectionCache_InvalidateChannelRemovesMatchingEntries(t *testing.T) {
	c := NewSelectionCache()
	c.Set("fp1", Decision{Primary: Score{Candidate: ChannelCandidate{ChannelID: "c1"}}})
	c.Set("fp2", Decision{
		Primary: Score{Candidate: ChannelCandidate{ChannelID: "c2"}},
		Backups: []Score{{Candidate: ChannelCandidate{ChannelID: "c1"}}},
	})
	c.Set("fp3", Decision{Primary: Score{Candidate: ChannelCandidate{ChannelID: "c3"}}})

	c.InvalidateChannel("c1")

	_, ok1 := c.Get("fp1")
	_, ok2 := c.Get("fp2")
	_, ok3 := c.Get("fp3")
	require.False(t, ok1)
	require.False(t, ok2)
	require.True(t, ok3)
}
