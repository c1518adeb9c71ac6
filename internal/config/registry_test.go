package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  host: 0.0.0.0
  port: 8080
providers:
  groq:
    name: groq
    base_url: https://api.groq.com/openai
    auth_type: bearer
channels:
  - id: groq_1
    name: groq free
    provider: groq
    model_name: llama-3.1-8b-instant
    api_key: "abcdefghijklmnop"
    priority: 10
    enabled: true
    tags: [free, fast]
  - id: bad_1
    name: bad channel
    provider: groq
    model_name: llama-3.1-8b-instant
    api_key: "short"
    priority: 5
    enabled: true
routing:
  default_strategy: balanced
`

func writeTempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoad_ForceDisablesShortAPIKey(t *testing.T) {
	path := writeTempConfig(t)
	reg, err := Load(path)
	require.NoError(t, err)

	ch, ok := reg.ChannelByID("bad_1")
	require.True(t, ok)
	require.False(t, ch.Enabled)
	require.NotEmpty(t, ch.DisabledReason())

	good, ok := reg.ChannelByID("groq_1")
	require.True(t, ok)
	require.True(t, good.Enabled)
}

func TestEnabledChannels_ExcludesDisabled(t *testing.T) {
	reg, err := Load(writeTempConfig(t))
	require.NoError(t, err)

	enabled := reg.EnabledChannels()
	require.Len(t, enabled, 1)
	require.Equal(t, "groq_1", enabled[0].ID)
}

func TestSetChannelEnabled_PersistsAndUpdates(t *testing.T) {
	path := writeTempConfig(t)
	reg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, reg.SetChannelEnabled("groq_1", false))
	ch, _ := reg.ChannelByID("groq_1")
	require.False(t, ch.Enabled)

	reloaded, err := Load(path)
	require.NoError(t, err)
	ch2, _ := reloaded.ChannelByID("groq_1")
	require.False(t, ch2.Enabled)
}

func TestSetChannelPriority_UnknownChannel(t *testing.T) {
	reg, err := Load(writeTempConfig(t))
	require.NoError(t, err)
	require.Error(t, reg.SetChannelPriority("nope", 1))
}

func TestResolveStrategy_FallsBackToBalanced(t *testing.T) {
	reg, err := Load(writeTempConfig(t))
	require.NoError(t, err)

	rules := reg.ResolveStrategy("does-not-exist")
	require.Equal(t, builtinStrategies["balanced"], rules)

	rules2 := reg.ResolveStrategy("")
	require.Equal(t, builtinStrategies["balanced"], rules2)
}

func TestRecordOutcome_AdjustsHealthScore(t *testing.T) {
	reg, err := Load(writeTempConfig(t))
	require.NoError(t, err)

	reg.RecordOutcome("groq_1", true, 0)
	st := reg.Stats("groq_1")
	require.InDelta(t, 1.0, st.HealthScore, 1e-9) // clamped at 1.0

	reg.RecordOutcome("groq_1", false, 0)
	st = reg.Stats("groq_1")
	require.InDelta(t, 0.95, st.HealthScore, 1e-9)
}

func TestDiscoveredModels_EmptyUntilSet(t *testing.T) {
	reg, err := Load(writeTempConfig(t))
	require.NoError(t, err)

	require.Nil(t, reg.DiscoveredModels("groq_1"))

	reg.SetDiscoveredModels("groq_1", []string{"llama-3.1-8b-instant", "llama-3.1-70b-versatile"})
	require.Equal(t, []string{"llama-3.1-8b-instant", "llama-3.1-70b-versatile"}, reg.DiscoveredModels("groq_1"))

	// a fresh caller's mutation of the returned slice must not corrupt the cache
	got := reg.DiscoveredModels("groq_1")
	got[0] = "corrupted"
	require.Equal(t, "llama-3.1-8b-instant", reg.DiscoveredModels("groq_1")[0])
}

func TestSortedByPriority_DeterministicTiebreak(t *testing.T) {
	channels := []*Channel{
		{ID: "b", Priority: 1},
		{ID: "a", Priority: 1},
		{ID: "z", Priority: 0},
	}
	sorted := SortedByPriority(channels)
	require.Equal(t, []string{"z", "a", "b"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}
