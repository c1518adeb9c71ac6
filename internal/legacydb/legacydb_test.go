package legacydb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

func TestStore_AppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.sqlite")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	require.NoError(t, store.Append(usage.Record{
		RequestID: "req-1", Timestamp: now, Model: "gpt-4o-mini",
		ChannelID: "c1", ChannelName: "fast-gpt", Provider: "openai",
		InputTokens: 10, OutputTokens: 5, InputCost: 0.01, OutputCost: 0.02, TotalCost: 0.03,
		Status: "success", ResponseTimeMS: 120,
	}))
	require.NoError(t, store.Append(usage.Record{
		RequestID: "req-2", Timestamp: now.Add(time.Minute), Model: "gpt-4o-mini",
		ChannelID: "c1", ChannelName: "fast-gpt", Provider: "openai",
		InputTokens: 20, OutputTokens: 10, InputCost: 0.02, OutputCost: 0.04, TotalCost: 0.06,
		Status: "success", ResponseTimeMS: 80,
	}))

	rows, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "req-2", rows[0].RequestID) // newest first

	total, err := store.TotalCostByChannel("c1")
	require.NoError(t, err)
	require.InDelta(t, 0.09, total, 1e-9)
}

func TestStore_TotalCostByChannel_UnknownChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.sqlite")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	total, err := store.TotalCostByChannel("does-not-exist")
	require.NoError(t, err)
	require.Equal(t, 0.0, total)
}
