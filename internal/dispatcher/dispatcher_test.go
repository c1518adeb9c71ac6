package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/httpx"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
	"github.com/songquanpeng/smart-router-gateway/internal/routing"
	"github.com/songquanpeng/smart-router-gateway/internal/scheduler"
	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

const dispatcherYAMLTemplate = `
server:
  port: 8080
providers:
  openai:
    name: openai
    base_url: "https://api.openai.com"
    auth_type: bearer
channels:
%s
`

func oneChannelYAML(id, baseURL string, priority int) string {
	return fmt.Sprintf(`  - id: %s
    name: %s
    provider: openai
    model_name: gpt-4o-mini
    api_key: "abcdefghijklmnop"
    priority: %d
    enabled: true
    base_url: %q
`, id, id, priority, baseURL)
}

func newDispatcherTestRegistry(t *testing.T, channelsYAML string) *config.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(dispatcherYAMLTemplate, channelsYAML)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	reg, err := config.Load(path)
	require.NoError(t, err)
	return reg
}

func newTestDispatcher(t *testing.T, cfgReg *config.Registry) *Dispatcher {
	t.Helper()
	metaReg := modelmeta.NewRegistry(nil)
	bl := blacklist.NewManager()
	router := routing.NewRouter(cfgReg, metaReg, bl)
	sched := scheduler.New()
	pool := httpx.NewPool()
	probes := httpx.NewProbeCache()
	tracker, err := usage.NewTracker(t.TempDir(), 0)
	require.NoError(t, err)
	return New(cfgReg, metaReg, router, bl, sched, pool, probes, tracker)
}

func chatRequest(model string) chatmodel.Request {
	return chatmodel.Request{
		Model:    model,
		Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "hi"}},
	}
}

// isProbeRequest distinguishes §4.10 step 3's availability probe (an empty
// POST body) from a real chat-completions call.
func isProbeRequest(r *http.Request) bool {
	raw, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return len(raw) == 0
}

func TestDispatch_NonStreamingSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
	defer server.Close()

	cfgReg := newDispatcherTestRegistry(t, oneChannelYAML("c1", server.URL, 1))
	d := newTestDispatcher(t, cfgReg)

	resp, summary, err := d.Dispatch(context.Background(), chatRequest("gpt-4o-mini"), "req-1", 0, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Len(t, resp.Choices, 1)
	require.Equal(t, "hello there", resp.Choices[0].Message.Content)

	require.NotNil(t, summary)
	require.Equal(t, "c1", summary.ChannelID)
	require.Equal(t, "gpt-4o-mini", summary.MatchedModel)
	require.Equal(t, 10, summary.PromptTokens)
	require.Equal(t, 5, summary.CompletionTokens)
	require.Equal(t, 15, summary.TotalTokens)
}

func TestDispatch_FailsOverToSecondChannelOn500(t *testing.T) {
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbeRequest(r) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"upstream exploded"}`))
	}))
	defer badServer.Close()

	goodServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbeRequest(r) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "resp2",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "recovered"}}},
			"usage":   map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	defer goodServer.Close()

	channelsYAML := oneChannelYAML("bad", badServer.URL, 1) + oneChannelYAML("good", goodServer.URL, 2)
	cfgReg := newDispatcherTestRegistry(t, channelsYAML)
	d := newTestDispatcher(t, cfgReg)

	resp, summary, err := d.Dispatch(context.Background(), chatRequest("gpt-4o-mini"), "req-2", 0, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "recovered", resp.Choices[0].Message.Content)
	require.Equal(t, "good", summary.ChannelID)

	blacklisted, entry := d.bl.IsModelBlacklisted("bad", "gpt-4o-mini", time.Now())
	require.True(t, blacklisted)
	require.False(t, entry.IsPermanent)
}

func TestDispatch_AuthFailurePermanentlyExcludesChannel(t *testing.T) {
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbeRequest(r) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer authServer.Close()

	cfgReg := newDispatcherTestRegistry(t, oneChannelYAML("unauth", authServer.URL, 1))
	d := newTestDispatcher(t, cfgReg)

	_, _, err := d.Dispatch(context.Background(), chatRequest("gpt-4o-mini"), "req-3", 0, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrAllChannelsFailed)

	blacklisted, entry := d.bl.IsModelBlacklisted("unauth", "gpt-4o-mini", time.Now())
	require.True(t, blacklisted)
	require.True(t, entry.IsPermanent)
}

func TestDispatch_NoMatchingChannelReturnsErrNoChannels(t *testing.T) {
	cfgReg := newDispatcherTestRegistry(t, oneChannelYAML("c1", "https://example.invalid", 1))
	d := newTestDispatcher(t, cfgReg)

	_, _, err := d.Dispatch(context.Background(), chatRequest("does-not-exist"), "req-4", 0, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoChannels)
}

type testSink struct {
	chunks []string
	errs   []string
}

func (s *testSink) OnChunk(delta string) { s.chunks = append(s.chunks, delta) }
func (s *testSink) OnUpstreamError(code int, message string, retryAfterS int) {
	s.errs = append(s.errs, message)
}

func TestDispatch_StreamingForwardsChunksToSink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbeRequest(r) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"choices":[{"delta":{"content":"he"}}]}`,
			`data: {"choices":[{"delta":{"content":"llo"}}]}`,
			`data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			_, _ = fmt.Fprintf(w, "%s\n\n", l)
		}
	}))
	defer server.Close()

	cfgReg := newDispatcherTestRegistry(t, oneChannelYAML("stream1", server.URL, 1))
	d := newTestDispatcher(t, cfgReg)

	req := chatRequest("gpt-4o-mini")
	req.Stream = true

	sink := &testSink{}
	resp, summary, err := d.Dispatch(context.Background(), req, "req-5", 0, sink)
	require.NoError(t, err)
	require.Nil(t, resp)
	require.NotNil(t, summary)
	require.Equal(t, []string{"he", "llo"}, sink.chunks)
	require.Equal(t, 3, summary.PromptTokens)
	require.Equal(t, 2, summary.CompletionTokens)
}

func TestCleanThinking(t *testing.T) {
	cleaned, reasoning, found := CleanThinking("<think>mull it over</think>final answer")
	require.True(t, found)
	require.Equal(t, "final answer", cleaned)
	require.Equal(t, "mull it over", reasoning)

	cleaned, _, found = CleanThinking("no reasoning block here")
	require.False(t, found)
	require.Equal(t, "no reasoning block here", cleaned)
}
