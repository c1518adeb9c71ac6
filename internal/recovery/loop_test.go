package recovery

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/httpx"
)

func writeConfig(t *testing.T, baseURL string) *config.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := "server:\n  port: 8080\nchannels:\n  - id: c1\n    name: test\n    provider: openai\n    model_name: gpt-4o-mini\n    api_key: \"abcdefghijklmnop\"\n    priority: 1\n    enabled: true\n    base_url: \"" + baseURL + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	reg, err := config.Load(path)
	require.NoError(t, err)
	return reg
}

func TestProbeModelsEndpoint_SuccessReportsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"}]}`))
	}))
	defer srv.Close()

	reg := writeConfig(t, srv.URL)
	bl := blacklist.NewManager()
	now := time.Now()
	bl.AddEntry("c1", "gpt-4o-mini", blacklist.FailureHTTPStatus, http.StatusInternalServerError, "", now)

	l := New(bl, reg, httpx.NewPool())
	ch, _ := reg.ChannelByID("c1")
	ok, err := l.probeModelsEndpoint(t.Context(), ch, "gpt-4o-mini")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProbeModelsEndpoint_Non200ReportsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := writeConfig(t, srv.URL)
	bl := blacklist.NewManager()
	l := New(bl, reg, httpx.NewPool())
	ch, _ := reg.ChannelByID("c1")

	ok, err := l.probeModelsEndpoint(t.Context(), ch, "gpt-4o-mini")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProbeModelsEndpoint_Status200WithoutModelInBodyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[{"id":"claude-3-haiku"}]}`))
	}))
	defer srv.Close()

	reg := writeConfig(t, srv.URL)
	bl := blacklist.NewManager()
	l := New(bl, reg, httpx.NewPool())
	ch, _ := reg.ChannelByID("c1")

	ok, err := l.probeModelsEndpoint(t.Context(), ch, "gpt-4o-mini")
	require.NoError(t, err)
	require.False(t, ok, "channel no longer serving the failing model must not clear its blacklist entry")
	require.Equal(t, []string{"claude-3-haiku"}, reg.DiscoveredModels("c1"))
}

func TestProbeModelsEndpoint_PopulatesDiscoveredModelCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"},{"id":"gpt-4o"}]}`))
	}))
	defer srv.Close()

	reg := writeConfig(t, srv.URL)
	bl := blacklist.NewManager()
	l := New(bl, reg, httpx.NewPool())
	ch, _ := reg.ChannelByID("c1")

	ok, err := l.probeModelsEndpoint(t.Context(), ch, "gpt-4o-mini")
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"gpt-4o-mini", "gpt-4o"}, reg.DiscoveredModels("c1"))
}

func TestAttemptsExhausted_CapsAtThreeWithinWindow(t *testing.T) {
	l := New(blacklist.NewManager(), nil, nil)
	now := time.Now()
	require.False(t, l.attemptsExhausted("c1", "m", now))
	l.recordAttempt("c1", "m", now)
	l.recordAttempt("c1", "m", now)
	l.recordAttempt("c1", "m", now)
	require.True(t, l.attemptsExhausted("c1", "m", now))
}
