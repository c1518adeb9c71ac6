package routing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
)

const discoveryYAML = `
server:
  port: 8080
channels:
  - id: c1
    name: fast-gpt
    provider: openai
    model_name: gpt-4o-mini
    api_key: "abcdefghijklmnop"
    priority: 1
    enabled: true
    base_url: "https://api.openai.com"
  - id: c2
    name: claude
    provider: anthropic
    model_name: claude-3-haiku
    api_key: "abcdefghijklmnop"
    priority: 2
    enabled: true
    base_url: "https://api.anthropic.com"
  - id: c3
    name: disabled-channel
    provider: openai
    model_name: gpt-4o-mini
    api_key: "abcdefghijklmnop"
    priority: 1
    enabled: false
    base_url: "https://api.openai.com"
`

func newTestRegistry(t *testing.T) *config.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(discoveryYAML), 0o644))
	reg, err := config.Load(path)
	require.NoError(t, err)
	return reg
}

func TestResolveCandidates_ExactMatch(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()

	cands, _, err := ResolveCandidates(Request{Model: "gpt-4o-mini"}, reg, meta, bl, time.Now())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "c1", cands[0].ChannelID)
}

func TestResolveCandidates_SkipsDisabledChannels(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()

	cands, _, err := ResolveCandidates(Request{Model: "gpt-4o-mini"}, reg, meta, bl, time.Now())
	require.NoError(t, err)
	for _, c := range cands {
		require.NotEqual(t, "c3", c.ChannelID)
	}
}

func TestResolveCandidates_NoMatchReturnsError(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()

	_, _, err := ResolveCandidates(Request{Model: "nonexistent-model"}, reg, meta, bl, time.Now())
	require.ErrorIs(t, err, ErrNoCandidates)
}

func TestResolveCandidates_ExcludesBlacklistedChannel(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()
	now := time.Now()
	bl.AddEntry("c1", "gpt-4o-mini", blacklist.FailureHTTPStatus, 401, "", now)

	_, _, err := ResolveCandidates(Request{Model: "gpt-4o-mini"}, reg, meta, bl, now)
	require.ErrorIs(t, err, ErrNoCandidates)
}

func TestResolveCandidates_ExcludeProviders(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()

	cands, _, err := ResolveCandidates(Request{Model: "tag:claude", ExcludeProviders: []string{"anthropic"}}, reg, meta, bl, time.Now())
	require.ErrorIs(t, err, ErrNoCandidates)
	require.Empty(t, cands)
}

func TestResolveCandidates_TagPrefix(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()

	cands, _, err := ResolveCandidates(Request{Model: "tag:claude"}, reg, meta, bl, time.Now())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "c2", cands[0].ChannelID)
}

func TestResolveCandidates_AutoPrefixReturnsAllEnabledChannelsAndStrategy(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()

	cands, strategy, err := ResolveCandidates(Request{Model: "auto:cost_first"}, reg, meta, bl, time.Now())
	require.NoError(t, err)
	require.Equal(t, "cost_first", strategy)
	require.Len(t, cands, 2) // c1 and c2; c3 is disabled
}

func TestResolveCandidates_ExactMatchIsProviderPrefixTolerant(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()

	cands, _, err := ResolveCandidates(Request{Model: "openai/gpt-4o-mini"}, reg, meta, bl, time.Now())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "c1", cands[0].ChannelID)
}

func TestResolveCandidates_ExactMatchUsesDiscoveredModelCache(t *testing.T) {
	reg := newTestRegistry(t)
	meta := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()
	reg.SetDiscoveredModels("c1", []string{"gpt-4o-mini", "gpt-4o-mini-2024-07-18"})

	cands, _, err := ResolveCandidates(Request{Model: "gpt-4o-mini-2024-07-18"}, reg, meta, bl, time.Now())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "gpt-4o-mini-2024-07-18", cands[0].MatchedModel)
}
