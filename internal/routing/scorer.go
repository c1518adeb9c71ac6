// C8 Batch Scorer. Scores are computed from eight normalized [0,1]
// dimensions, combined via the active strategy's weighted-sum sort rules
// (§4.8). Grounded on the teacher's channel-ability weighting in
// model/ability.go (priority + weight columns), generalized to eight
// independently-computed dimensions instead of one operator-set weight.
package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
)

// parallelThreshold is the candidate-count floor above which BatchScore fans
// scoring out across an errgroup worker pool instead of scoring inline
// (§4.8: "O(n); candidate sets of five or more are scored by a worker pool").
const parallelThreshold = 5

// scoreMemoTTL is how long a single candidate's computed score is reused
// across unrelated requests that happen to name the same channel, model,
// and strategy (§4.8 memoization).
const scoreMemoTTL = 300 * time.Second

type cachedScore struct {
	score     Score
	expiresAt time.Time
}

// Scorer is C8: a stateful facade holding the short-lived per-candidate
// score memo. Safe for concurrent use.
type Scorer struct {
	cfgReg  *config.Registry
	metaReg *modelmeta.Registry

	mu    sync.Mutex
	cache map[string]cachedScore
}

func NewScorer(cfgReg *config.Registry, metaReg *modelmeta.Registry) *Scorer {
	return &Scorer{
		cfgReg:  cfgReg,
		metaReg: metaReg,
		cache:   make(map[string]cachedScore),
	}
}

func memoKey(c ChannelCandidate, strategy string) string {
	return c.ChannelID + "|" + c.MatchedModel + "|" + strategy
}

// BatchScore is C8's entry point: scores every candidate against req's
// active strategy, returning results already ordered per §4.8's tiebreak.
func (s *Scorer) BatchScore(ctx context.Context, cands []ChannelCandidate, req Request) ([]Score, error) {
	rules := s.cfgReg.ResolveStrategy(req.Strategy)
	now := time.Now()

	scores := make([]Score, len(cands))
	if len(cands) < parallelThreshold {
		for i, c := range cands {
			scores[i] = s.scoreOne(c, req.Strategy, rules, now)
		}
	} else {
		g, _ := errgroup.WithContext(ctx)
		for i, c := range cands {
			i, c := i, c
			g.Go(func() error {
				scores[i] = s.scoreOne(c, req.Strategy, rules, now)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	SortScores(scores)
	return scores, nil
}

func (s *Scorer) scoreOne(c ChannelCandidate, strategy string, rules []config.SortRule, now time.Time) Score {
	k := memoKey(c, strategy)

	s.mu.Lock()
	if cs, ok := s.cache[k]; ok && now.Before(cs.expiresAt) {
		s.mu.Unlock()
		return cs.score
	}
	s.mu.Unlock()

	meta := s.metaReg.Get(c.MatchedModel, c.Provider, c.ChannelID)
	stats := s.cfgReg.Stats(c.ChannelID)

	score := Score{
		Candidate:   c,
		Cost:        costDimension(meta, c.ExchangeRate),
		Speed:       speedDimension(meta, stats),
		Quality:     qualityDimension(meta),
		Reliability: reliabilityDimension(stats),
		Parameter:   modelmeta.ParameterScore(meta.ParameterCountM),
		Context:     modelmeta.ContextScore(meta.ContextLength),
		Free:        freeDimension(meta),
		Local:       localDimension(meta),
	}
	score.Total = weightedTotal(score, rules)
	score.Reason = fmt.Sprintf("strategy=%s total=%.4f channel=%s model=%s",
		strategyName(strategy), score.Total, c.ChannelID, c.MatchedModel)

	s.mu.Lock()
	s.cache[k] = cachedScore{score: score, expiresAt: now.Add(scoreMemoTTL)}
	s.mu.Unlock()

	return score
}

func strategyName(name string) string {
	if name == "" {
		return "balanced"
	}
	return name
}

// costDimension maps USD-per-million-input-token pricing onto [0,1], cheaper
// is higher; free models score 1.0 here, and freeDimension also scores
// them 1.0 (§4.8). The
// channel's currency_exchange.rate is applied to the listed price before
// ranking, so two channels quoting the same catalog price in different
// currencies are not ranked as if they cost the same.
func costDimension(m modelmeta.ModelMetadata, exchangeRate float64) float64 {
	if m.IsFree() {
		return 1.0
	}
	const referenceCeiling = 30.0 // USD/M input tokens considered "expensive"
	if m.PricingInputPerM <= 0 {
		return 0.5 // unknown pricing: neutral
	}
	if exchangeRate <= 0 {
		exchangeRate = 1
	}
	price := m.PricingInputPerM * exchangeRate
	score := 1.0 - (price / referenceCeiling)
	return clamp01Score(score)
}

func speedDimension(m modelmeta.ModelMetadata, stats config.ChannelStats) float64 {
	if stats.LastLatencyMS > 0 {
		// Rolling latency sample takes precedence over catalog metadata
		// (§4.8): faster than 500ms scores 1.0, slower than 10s scores 0.
		const fastMS, slowMS = 500.0, 10_000.0
		v := 1.0 - (float64(stats.LastLatencyMS)-fastMS)/(slowMS-fastMS)
		return clamp01Score(v)
	}
	return modelmeta.InferredSpeed(m)
}

func qualityDimension(m modelmeta.ModelMetadata) float64 {
	return modelmeta.InferredQuality(m)
}

func reliabilityDimension(stats config.ChannelStats) float64 {
	return clamp01Score(stats.HealthScore)
}

// freeDimension is 1.0 iff both prompt and completion prices are 0, else 0.1
// (§4.8) — never 0, so a strategy that weights "free" still gives paid
// models a nonzero floor instead of disqualifying them outright.
func freeDimension(m modelmeta.ModelMetadata) float64 {
	if m.IsFree() {
		return 1.0
	}
	return 0.1
}

// localDimension is 1.0 iff the model carries a local-runtime tag, else 0.1
// (§4.8), for the same reason as freeDimension.
func localDimension(m modelmeta.ModelMetadata) float64 {
	if m.Tags["local"] {
		return 1.0
	}
	return 0.1
}

func clamp01Score(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dimensionValue(s Score, field string) float64 {
	switch field {
	case "cost":
		return s.Cost
	case "speed":
		return s.Speed
	case "quality":
		return s.Quality
	case "reliability":
		return s.Reliability
	case "parameter":
		return s.Parameter
	case "context":
		return s.Context
	case "free":
		return s.Free
	case "local":
		return s.Local
	default:
		return 0
	}
}

// weightedTotal combines a score's dimensions per the active strategy's
// weighted sort rules. Every dimension is already oriented "higher is
// better"; order="asc" flips that for the rare rule that wants the opposite.
func weightedTotal(s Score, rules []config.SortRule) float64 {
	var total float64
	for _, r := range rules {
		v := dimensionValue(s, r.Field)
		if r.Order == "asc" {
			v = 1 - v
		}
		total += v * r.Weight
	}
	return total
}
