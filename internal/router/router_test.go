package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/dispatcher"
	"github.com/songquanpeng/smart-router-gateway/internal/httpx"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
	"github.com/songquanpeng/smart-router-gateway/internal/routing"
	"github.com/songquanpeng/smart-router-gateway/internal/scheduler"
	"github.com/songquanpeng/smart-router-gateway/internal/session"
	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

const routerYAMLTemplate = `
server:
  port: 8080
auth:
  enabled: true
  api_token: "sk-gatewaytoken1234"
  admin:
    enabled: true
    admin_token: "admin-secret-token"
providers:
  openai:
    name: openai
    base_url: "https://api.openai.com"
    auth_type: bearer
channels:
  - id: c1
    name: c1
    provider: openai
    model_name: gpt-4o-mini
    api_key: "abcdefghijklmnop"
    priority: 1
    enabled: true
    base_url: %q
`

func isProbeRequest(r *http.Request) bool {
	return r.ContentLength == 0
}

func newTestEngine(t *testing.T, upstreamURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(routerYAMLTemplate, upstreamURL)), 0o644))
	cfgReg, err := config.Load(path)
	require.NoError(t, err)

	metaReg := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()
	rt := routing.NewRouter(cfgReg, metaReg, bl)
	sched := scheduler.New()
	pool := httpx.NewPool()
	probes := httpx.NewProbeCache()
	tracker, err := usage.NewTracker(t.TempDir(), 0)
	require.NoError(t, err)
	disp := dispatcher.New(cfgReg, metaReg, rt, bl, sched, pool, probes, tracker)
	sessions := session.NewManager()

	return New(Deps{
		CfgReg:     cfgReg,
		MetaReg:    metaReg,
		BL:         bl,
		Dispatcher: disp,
		Sessions:   sessions,
		Tracker:    tracker,
		StartedAt:  time.Now(),
	})
}

func upstreamJSONServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbeRequest(r) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "resp1",
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "hello there"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func TestChatCompletions_NonStreamingSuccess(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk-gatewaytoken1234")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	choices := out["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	require.Equal(t, "hello there", msg["content"])
	require.NotNil(t, out["smart_ai_router"])
}

func TestChatCompletions_RejectsMissingAuth(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4o-mini","messages":[]}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatCompletions_NoMatchingModelReturns503(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	body := `{"model":"does-not-exist","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk-gatewaytoken1234")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAnthropicMessages_RejectsWrongVersion(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	body := `{"model":"gpt-4o-mini","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk-gatewaytoken1234")
	req.Header.Set("anthropic-version", "2022-01-01")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnthropicMessages_Success(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	body := `{"model":"gpt-4o-mini","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk-gatewaytoken1234")
	req.Header.Set("anthropic-version", "2023-06-01")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, "message", out["type"])
}

func TestGeminiGenerateContent_Success(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	body := `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/models/gpt-4o-mini:generateContent", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk-gatewaytoken1234")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out["candidates"])
}

func TestListModels_UnionOfConcreteAndVirtual(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer sk-gatewaytoken1234")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))

	var ids []string
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	require.Contains(t, ids, "gpt-4o-mini")
	require.Contains(t, ids, "auto:balanced")
}

func TestStatusChannels_Unauthenticated(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/status/channels", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminChannels_RequiresAdminToken(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/admin/channels", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/admin/channels", nil)
	req2.Header.Set("Authorization", "Bearer admin-secret-token")
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
}

func TestAdminSetChannelEnabled(t *testing.T) {
	upstream := upstreamJSONServer(t)
	defer upstream.Close()
	engine := newTestEngine(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/admin/channels/c1/disable", nil)
	req.Header.Set("Authorization", "Bearer admin-secret-token")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
