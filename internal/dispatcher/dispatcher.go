// Package dispatcher implements C10 Chat Dispatcher, the integration point
// tying together routing (C6-C9), the blacklist (C3), the interval
// scheduler (C5), the HTTP pool (C13), and the usage tracker (C11) into the
// per-request sequential-failover loop described in §4.10. Grounded on the
// teacher's relay/controller/text.go RelayTextHelper (the per-request
// retry-across-channels loop) and middleware/distributor.go (channel
// selection before dispatch), generalized from a DB-backed channel list and
// ability-suspension table to the in-memory routing facade and blacklist
// manager built for this gateway.
package dispatcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/httpx"
	"github.com/songquanpeng/smart-router-gateway/internal/logger"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
	"github.com/songquanpeng/smart-router-gateway/internal/routing"
	"github.com/songquanpeng/smart-router-gateway/internal/scheduler"
	"github.com/songquanpeng/smart-router-gateway/internal/shim"
	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

const errorBodySnippetLimit = 2048

// probeTopK is how many ranked candidates are probed concurrently for
// availability before the sequential failover loop begins (§4.10 step 3).
const probeTopK = 3

// Dispatcher is C10: the per-request pipeline of routing, availability
// probing, and sequential failover. CleanThink controls whether the
// non-streaming path strips the first <think>...</think> block (§4.10 step 4: "if
// cleaning is enabled"); exposed as a field so an admin toggle can flip it
// later. Defaults to true.
type Dispatcher struct {
	cfgReg     *config.Registry
	metaReg    *modelmeta.Registry
	router     *routing.Router
	bl         *blacklist.Manager
	sched      *scheduler.Scheduler
	pool       *httpx.Pool
	probes     *httpx.ProbeCache
	tracker    *usage.Tracker
	CleanThink bool
}

func New(cfgReg *config.Registry, metaReg *modelmeta.Registry, router *routing.Router, bl *blacklist.Manager, sched *scheduler.Scheduler, pool *httpx.Pool, probes *httpx.ProbeCache, tracker *usage.Tracker) *Dispatcher {
	return &Dispatcher{
		cfgReg:     cfgReg,
		metaReg:    metaReg,
		router:     router,
		bl:         bl,
		sched:      sched,
		pool:       pool,
		probes:     probes,
		tracker:    tracker,
		CleanThink: true,
	}
}

// pricingFor resolves per-1k-token input/output prices for a matched
// candidate, preferring model-catalog metadata over the channel's literal
// cost_per_token override (§4.11, §9 open question: "model-level pricing as
// authoritative, falls back to channel-level").
func (d *Dispatcher) pricingFor(ch *config.Channel, cand routing.ChannelCandidate) (pricePerKIn, pricePerKOut, exchangeRate float64) {
	exchangeRate = 1
	if ch != nil && ch.CurrencyExchange != nil && ch.CurrencyExchange.Rate > 0 {
		exchangeRate = ch.CurrencyExchange.Rate
	}

	if d.metaReg != nil {
		meta := d.metaReg.Get(cand.MatchedModel, cand.Provider, cand.ChannelID)
		if meta.PricingInputPerM > 0 || meta.PricingOutputPerM > 0 {
			return meta.PricingInputPerM / 1000, meta.PricingOutputPerM / 1000, exchangeRate
		}
	}
	if ch != nil && ch.CostPerToken != nil {
		return ch.CostPerToken.Input, ch.CostPerToken.Output, exchangeRate
	}
	return 0, 0, exchangeRate
}

// Dispatch runs the full pre-flight -> probe -> failover pipeline for one
// canonical chat request (§4.10). For a non-streaming request it returns a
// populated Response and Summary. For a streaming request (req.Stream) it
// returns a nil Response; every content delta is pushed to sink as it
// arrives and the Summary describes the completed call.
func (d *Dispatcher) Dispatch(ctx context.Context, req chatmodel.Request, requestID string, sessionCumulativeCost float64, sink StreamSink) (*chatmodel.Response, *Summary, error) {
	lg := logger.FromContext(ctx)

	decision, err := d.router.Route(ctx, routing.FromChatRequest(req))
	if err != nil {
		if errors.Is(err, routing.ErrNoCandidates) {
			return nil, nil, errors.Wrap(ErrNoChannels, err.Error())
		}
		return nil, nil, errors.Wrap(err, "route request")
	}

	ranked := append([]routing.Score{decision.Primary}, decision.Backups...)
	ranked = d.reorderByAvailability(ctx, ranked)

	failed := make(map[string]bool)
	var lastErr error

	for _, sc := range ranked {
		cand := sc.Candidate
		if failed[cand.ChannelID] {
			continue
		}

		minInterval := time.Duration(cand.MinIntervalS * float64(time.Second))
		if !d.sched.IsChannelReady(cand.ChannelID, minInterval) {
			continue
		}
		d.sched.RecordRequest(cand.ChannelID, minInterval)

		resp, summary, attemptErr := d.attempt(ctx, req, requestID, sessionCumulativeCost, cand, sc, decision, sink)
		if attemptErr == nil {
			return resp, summary, nil
		}

		lastErr = attemptErr
		if attemptErr.permanent {
			failed[cand.ChannelID] = true
			d.router.InvalidateChannel(cand.ChannelID)
		}
		lg.Warn("channel attempt failed, continuing failover",
			zap.String("channel_id", cand.ChannelID), zap.String("model", cand.MatchedModel),
			zap.String("reason", attemptErr.Error()))
	}

	if lastErr == nil {
		lastErr = errors.New("no channel was ready to dispatch")
	}
	return nil, nil, errors.Wrap(ErrAllChannelsFailed, lastErr.Error())
}

// attemptFailure wraps a per-candidate failure with whether it should
// permanently remove the channel from this request's remaining attempts
// (auth failures) versus just recording a blacklist entry and moving on.
type attemptFailure struct {
	err       error
	permanent bool
}

func (a *attemptFailure) Error() string { return a.err.Error() }

func (d *Dispatcher) attempt(ctx context.Context, req chatmodel.Request, requestID string, sessionCumulativeCost float64, cand routing.ChannelCandidate, sc routing.Score, decision routing.Decision, sink StreamSink) (*chatmodel.Response, *Summary, *attemptFailure) {
	ch, _ := d.cfgReg.ChannelByID(cand.ChannelID)
	provider, _ := d.cfgReg.Provider(cand.Provider)

	httpReq, err := d.buildUpstreamRequest(ctx, cand, provider, req)
	if err != nil {
		return nil, nil, &attemptFailure{err: errors.Wrap(err, "build upstream request")}
	}

	start := time.Now()
	resp, err := d.pool.Stream(ctx, httpReq)
	if err != nil {
		kind := blacklist.ClassifyGoError(err)
		d.bl.AddEntry(cand.ChannelID, cand.MatchedModel, kind, 0, err.Error(), time.Now())
		d.cfgReg.RecordOutcome(cand.ChannelID, false, time.Since(start))
		return nil, nil, &attemptFailure{err: err}
	}
	ttfb := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, nil, d.recordFailureResponse(cand, resp)
	}

	channelName := ""
	if ch != nil {
		channelName = ch.Name
	}

	if req.Stream {
		summary, err := d.relayStream(ctx, resp, req, requestID, ch, cand, channelName, sc, decision, ttfb, sessionCumulativeCost, sink)
		if err != nil {
			d.cfgReg.RecordOutcome(cand.ChannelID, false, time.Since(start))
			return nil, nil, &attemptFailure{err: err}
		}
		d.cfgReg.RecordOutcome(cand.ChannelID, true, time.Since(start))
		return nil, summary, nil
	}

	response, summary, err := d.relayNonStream(ctx, resp, req, requestID, ch, cand, channelName, sc, decision, ttfb, sessionCumulativeCost)
	if err != nil {
		d.cfgReg.RecordOutcome(cand.ChannelID, false, time.Since(start))
		return nil, nil, &attemptFailure{err: err}
	}
	d.cfgReg.RecordOutcome(cand.ChannelID, true, time.Since(start))
	return response, summary, nil
}

// recordFailureResponse classifies a non-200 upstream response per §4.3 /
// §4.10 step 4, records the corresponding blacklist entry, and drains the
// body.
func (d *Dispatcher) recordFailureResponse(cand routing.ChannelCandidate, resp *http.Response) *attemptFailure {
	body := readBodySnippet(resp)
	httpx.DrainBody(resp)

	d.bl.AddEntry(cand.ChannelID, cand.MatchedModel, blacklist.FailureHTTPStatus, resp.StatusCode, body, time.Now())
	d.cfgReg.RecordOutcome(cand.ChannelID, false, 0)

	permanent := resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
	return &attemptFailure{
		err:       errors.Errorf("channel %s returned %d", cand.ChannelID, resp.StatusCode),
		permanent: permanent,
	}
}

func readBodySnippet(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippetLimit))
	return string(raw)
}

// buildUpstreamRequest renders req as an OpenAI-wire chat-completions body
// (§6.2) and attaches the provider's authentication header.
func (d *Dispatcher) buildUpstreamRequest(ctx context.Context, cand routing.ChannelCandidate, provider config.Provider, req chatmodel.Request) (*http.Request, error) {
	body, err := shim.EncodeOpenAIRequest(req, cand.MatchedModel)
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(cand.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build upstream http request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if provider.AuthType == config.AuthTypeXAPIKey {
		httpReq.Header.Set("x-api-key", cand.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+cand.APIKey)
	}
	return httpReq, nil
}

// reorderByAvailability is §4.10 step 3: probe the top probeTopK ranked
// candidates concurrently, and if the first-ranked one was unavailable
// while another was, rotate the first available candidate to the front.
func (d *Dispatcher) reorderByAvailability(ctx context.Context, ranked []routing.Score) []routing.Score {
	if len(ranked) < 2 {
		return ranked
	}
	k := probeTopK
	if k > len(ranked) {
		k = len(ranked)
	}

	available := make([]bool, k)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < k; i++ {
		i := i
		g.Go(func() error {
			cand := ranked[i].Candidate
			url := strings.TrimSuffix(cand.BaseURL, "/") + "/v1/chat/completions"
			headers := make(http.Header)
			headers.Set("Content-Type", "application/json")
			headers.Set("Authorization", "Bearer "+cand.APIKey)
			available[i] = d.probes.Probe(gctx, d.pool, url, headers)
			return nil
		})
	}
	_ = g.Wait()

	if available[0] {
		return ranked
	}
	for i := 1; i < k; i++ {
		if available[i] {
			out := make([]routing.Score, 0, len(ranked))
			out = append(out, ranked[i])
			out = append(out, ranked[:i]...)
			out = append(out, ranked[i+1:]...)
			return out
		}
	}
	return ranked
}

// buildSummary assembles the "smart_ai_router" payload (§4.10's streaming
// contract paragraph).
func buildSummary(requestID, channelName string, cand routing.ChannelCandidate, sc routing.Score, decision routing.Decision, ttfb time.Duration, promptTokens, completionTokens int, requestCost, sessionCumulativeCost float64) *Summary {
	total := promptTokens + completionTokens
	var tps float64
	if ttfb > 0 && completionTokens > 0 {
		tps = float64(completionTokens) / ttfb.Seconds()
	}
	scores := append([]routing.Score{sc}, decision.Backups...)
	return &Summary{
		RequestID:             requestID,
		ChannelID:             cand.ChannelID,
		ChannelName:           channelName,
		MatchedModel:          cand.MatchedModel,
		RoutingScores:         scores,
		TTFBMillis:            ttfb.Milliseconds(),
		TokensPerSecond:       tps,
		PromptTokens:          promptTokens,
		CompletionTokens:      completionTokens,
		TotalTokens:           total,
		RequestCost:           requestCost,
		SessionCumulativeCost: sessionCumulativeCost + requestCost,
	}
}
