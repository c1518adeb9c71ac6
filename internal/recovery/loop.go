// Package recovery implements C4 Recovery Loop: a periodic background task
// that probes expired blacklist entries and either clears or extends them
// with exponential backoff (§4.4). Grounded on the teacher's
// common/graceful cancellable-goroutine pattern and monitor package's
// channel health probing idea (monitor.go), generalized from "test a
// channel on a timer" to "probe only entries that just expired".
package recovery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/httpx"
	"github.com/songquanpeng/smart-router-gateway/internal/logger"
)

const (
	tickPeriod          = 300 * time.Second
	probeTimeout        = 10 * time.Second
	maxRecoveryAttempts = 3
	attemptWindow       = time.Hour
	extendBase          = 60 * time.Second
)

// Loop runs the single long-running recovery task described in §4.4.
type Loop struct {
	bl       *blacklist.Manager
	registry *config.Registry
	pool     *httpx.Pool

	mu       sync.Mutex
	attempts map[string][]time.Time // key: channelID+"/"+model -> recent attempt timestamps
}

func New(bl *blacklist.Manager, registry *config.Registry, pool *httpx.Pool) *Loop {
	return &Loop{
		bl:       bl,
		registry: registry,
		pool:     pool,
		attempts: make(map[string][]time.Time),
	}
}

// Run blocks, ticking every tickPeriod until ctx is cancelled. Stop requests
// (ctx cancellation) drain the current tick before returning (§4.4, §5).
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	lg := logger.FromContext(ctx)
	now := time.Now()
	survivors := l.bl.ExpiredSurvivors(now)

	var toProbe []*blacklist.Entry
	for _, e := range survivors {
		if e.ErrorType == blacklist.ErrorAuth {
			continue
		}
		if l.attemptsExhausted(e.ChannelID, e.Model, now) {
			continue
		}
		toProbe = append(toProbe, e)
	}
	if len(toProbe) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range toProbe {
		e := e
		g.Go(func() error {
			l.probeOne(gctx, lg, e)
			return nil
		})
	}
	_ = g.Wait() // individual probe failures never abort the tick
}

func (l *Loop) attemptsExhausted(channelID, model string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := channelID + "/" + model
	var recent []time.Time
	for _, t := range l.attempts[k] {
		if now.Sub(t) <= attemptWindow {
			recent = append(recent, t)
		}
	}
	l.attempts[k] = recent
	return len(recent) >= maxRecoveryAttempts
}

func (l *Loop) recordAttempt(channelID, model string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := channelID + "/" + model
	l.attempts[k] = append(l.attempts[k], now)
}

func (l *Loop) probeOne(ctx context.Context, lg glog.Logger, e *blacklist.Entry) {
	now := time.Now()
	l.recordAttempt(e.ChannelID, e.Model, now)

	ch, ok := l.registry.ChannelByID(e.ChannelID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	ok2, err := l.probeModelsEndpoint(ctx, ch, e.Model)
	if err != nil || !ok2 {
		l.bl.ExtendExpiry(e.ChannelID, e.Model, extendBase, now)
		lg.Warn("recovery probe failed, extending expiry",
			zap.String("channel_id", e.ChannelID), zap.String("model", e.Model))
		return
	}

	l.bl.Remove(e.ChannelID, e.Model)
	lg.Info("recovery probe succeeded, entry cleared",
		zap.String("channel_id", e.ChannelID), zap.String("model", e.Model))
}

// modelsListResponse is the OpenAI-shaped /v1/models body: {"data":[{"id":"..."},...]}.
type modelsListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// probeModelsEndpoint issues GET {base_url}/v1/models with the channel's
// credentials and reports success per §4.4 step 4: HTTP 200 and, when
// parseable, the target model id appears in the returned list
// (case-insensitive substring match both ways). A body that fails to parse
// as the expected shape falls back to the bare status-200 check, since not
// every provider's /v1/models reply is introspectable. A parseable body
// also refreshes the channel's discovered-model cache (§6.4), regardless of
// whether the probed model itself was found, so later candidate discovery
// sees the channel's real concrete model list.
func (l *Loop) probeModelsEndpoint(ctx context.Context, ch *config.Channel, model string) (bool, error) {
	url := strings.TrimSuffix(ch.BaseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+ch.APIKey)

	resp, err := l.pool.Stream(ctx, req)
	if err != nil {
		return false, err
	}
	defer httpx.DrainBody(resp)

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, nil // status was 200; a read failure just skips body verification
	}

	var parsed modelsListResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Data) == 0 {
		return true, nil
	}

	ids := make([]string, 0, len(parsed.Data))
	found := false
	for _, d := range parsed.Data {
		if d.ID == "" {
			continue
		}
		ids = append(ids, d.ID)
		if modelIDsMatch(d.ID, model) {
			found = true
		}
	}
	if len(ids) > 0 {
		l.registry.SetDiscoveredModels(ch.ID, ids)
	}
	return found, nil
}

// modelIDsMatch is the "case-insensitive substring match both ways" rule
// §4.4 step 4 calls for: either id contains the other, folded to lowercase.
func modelIDsMatch(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}
