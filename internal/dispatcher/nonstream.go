package dispatcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/songquanpeng/smart-router-gateway/internal/chatmodel"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/routing"
	"github.com/songquanpeng/smart-router-gateway/internal/shim"
	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

// relayNonStream reads a complete upstream JSON response, runs the
// thinking-chain cleaner (§4.10 step 4), records usage, and builds the
// summary attached under the "smart_ai_router" key (§4.10 streaming
// contract paragraph, non-streaming case).
func (d *Dispatcher) relayNonStream(ctx context.Context, resp *http.Response, req chatmodel.Request, requestID string, ch *config.Channel, cand routing.ChannelCandidate, channelName string, sc routing.Score, decision routing.Decision, ttfb time.Duration, sessionCumulativeCost float64) (*chatmodel.Response, *Summary, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read upstream response body")
	}

	out, err := shim.DecodeOpenAIResponse(raw)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode upstream response")
	}

	if d.CleanThink {
		for i := range out.Choices {
			if cleaned, _, found := CleanThinking(out.Choices[i].Message.Content); found {
				out.Choices[i].Message.Content = cleaned
			}
		}
	}

	pricePerKIn, pricePerKOut, exchangeRate := d.pricingFor(ch, cand)
	_, _, cost := usage.ComputeCost(out.Usage.PromptTokens, out.Usage.CompletionTokens, pricePerKIn, pricePerKOut, exchangeRate)

	summary := buildSummary(requestID, channelName, cand, sc, decision, ttfb, out.Usage.PromptTokens, out.Usage.CompletionTokens, cost, sessionCumulativeCost)

	if d.tracker != nil {
		inputCost, outputCost, totalCost := usage.ComputeCost(out.Usage.PromptTokens, out.Usage.CompletionTokens, pricePerKIn, pricePerKOut, exchangeRate)
		_ = d.tracker.Append(usage.Record{
			RequestID:      requestID,
			Timestamp:      time.Now().UTC(),
			Model:          cand.MatchedModel,
			ChannelID:      cand.ChannelID,
			ChannelName:    channelName,
			Provider:       cand.Provider,
			InputTokens:    out.Usage.PromptTokens,
			OutputTokens:   out.Usage.CompletionTokens,
			InputCost:      inputCost,
			OutputCost:     outputCost,
			TotalCost:      totalCost,
			Status:         "success",
			ResponseTimeMS: ttfb.Milliseconds(),
		})
	}

	return &out, summary, nil
}
