package dispatcher

import (
	"context"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/routing"
	"github.com/songquanpeng/smart-router-gateway/internal/sse"
	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

// relayStream proxies an upstream SSE response chunk-by-chunk (§4.10's
// streaming contract): forwarding content deltas to sink as they arrive,
// capturing usage opportunistically from the final usage chunk, and
// re-emitting any mid-stream error event without aborting the relay — by
// the time an in-stream error shows up, headers and some content have
// already reached the client, so failing over to another channel is no
// longer possible for this response.
func (d *Dispatcher) relayStream(ctx context.Context, resp *http.Response, req chatmodel.Request, requestID string, ch *config.Channel, cand routing.ChannelCandidate, channelName string, sc routing.Score, decision routing.Decision, ttfb time.Duration, sessionCumulativeCost float64, sink StreamSink) (*Summary, error) {
	defer resp.Body.Close()

	var usageResult chatmodel.Usage
	parseErr := sse.Parse(resp.Body, func(ev chatmodel.StreamEvent) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		switch ev.Kind {
		case chatmodel.EventChunk:
			if sink != nil {
				sink.OnChunk(ev.ContentDelta)
			}
		case chatmodel.EventUsage:
			usageResult = ev.Usage
		case chatmodel.EventUpstreamError:
			if sink != nil {
				sink.OnUpstreamError(ev.ErrorCode, ev.ErrorMessage, ev.RetryAfterS)
			}
		case chatmodel.EventEnd:
		}
	})
	if parseErr != nil && ctx.Err() == nil {
		return nil, errors.Wrap(parseErr, "parse upstream stream")
	}

	pricePerKIn, pricePerKOut, exchangeRate := d.pricingFor(ch, cand)
	_, _, cost := usage.ComputeCost(usageResult.PromptTokens, usageResult.CompletionTokens, pricePerKIn, pricePerKOut, exchangeRate)
	summary := buildSummary(requestID, channelName, cand, sc, decision, ttfb, usageResult.PromptTokens, usageResult.CompletionTokens, cost, sessionCumulativeCost)

	// A client disconnect mid-stream is not an upstream failure (§5
	// "Cancellation"): the partial usage record is tagged "cancelled" and
	// the channel is not penalized.
	status := "success"
	if ctx.Err() != nil {
		status = "cancelled"
	}

	if d.tracker != nil {
		inputCost, outputCost, totalCost := usage.ComputeCost(usageResult.PromptTokens, usageResult.CompletionTokens, pricePerKIn, pricePerKOut, exchangeRate)
		_ = d.tracker.Append(usage.Record{
			RequestID:      requestID,
			Timestamp:      time.Now().UTC(),
			Model:          cand.MatchedModel,
			ChannelID:      cand.ChannelID,
			ChannelName:    channelName,
			Provider:       cand.Provider,
			InputTokens:    usageResult.PromptTokens,
			OutputTokens:   usageResult.CompletionTokens,
			InputCost:      inputCost,
			OutputCost:     outputCost,
			TotalCost:      totalCost,
			Status:         status,
			ResponseTimeMS: ttfb.Milliseconds(),
		})
	}

	return summary, nil
}
