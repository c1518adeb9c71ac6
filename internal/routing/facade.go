// Router is the facade object Design Notes §9 calls for: a single entry
// point wrapping C6 Candidate Discovery, C7 Capability Filter, C8 Batch
// Scorer, and C9 Selection Cache, so the dispatcher never imports those four
// packages directly and no cyclic import ever has a chance to form.
package routing

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
)

// backupCount is how many runner-up candidates ride along with the primary
// for the dispatcher's top-3 concurrent availability probe (§4.10 step 3).
const backupCount = 2

type Router struct {
	cfgReg  *config.Registry
	metaReg *modelmeta.Registry
	bl      *blacklist.Manager
	scorer  *Scorer
	cache   *SelectionCache
}

func NewRouter(cfgReg *config.Registry, metaReg *modelmeta.Registry, bl *blacklist.Manager) *Router {
	return &Router{
		cfgReg:  cfgReg,
		metaReg: metaReg,
		bl:      bl,
		scorer:  NewScorer(cfgReg, metaReg),
		cache:   NewSelectionCache(),
	}
}

// Route runs the full C6->C7->C8 pipeline, consulting C9 first. A cache hit
// still re-checks the primary/backups against the live blacklist so a
// channel that was suspended after the decision was cached never gets
// reused from a stale entry (§4.9).
func (r *Router) Route(ctx context.Context, req Request) (Decision, error) {
	fp := Fingerprint(req)
	now := time.Now()

	if d, ok := r.cache.Get(fp); ok && decisionStillValid(d, r.bl, now) {
		return d, nil
	}

	cands, strategy, err := ResolveCandidates(req, r.cfgReg, r.metaReg, r.bl, now)
	if err != nil {
		return Decision{}, err
	}
	if strategy != "" {
		req.Strategy = strategy
	}

	cands = FilterCandidates(cands, req, r.metaReg)
	if len(cands) == 0 {
		return Decision{}, errors.Wrap(ErrNoCandidates, "all candidates failed capability filter")
	}

	scores, err := r.scorer.BatchScore(ctx, cands, req)
	if err != nil {
		return Decision{}, errors.Wrap(err, "batch score candidates")
	}

	d := Decision{
		Primary: scores[0],
		Reason:  scores[0].Reason,
	}
	if len(scores) > 1 {
		end := 1 + backupCount
		if end > len(scores) {
			end = len(scores)
		}
		d.Backups = scores[1:end]
	}

	r.cache.Set(fp, d)
	return d, nil
}

// InvalidateChannel forwards to the selection cache; called by the
// dispatcher when an upstream failure blacklists a channel; enabling or
// disabling a channel in the config registry does not call it.
func (r *Router) InvalidateChannel(channelID string) {
	r.cache.InvalidateChannel(channelID)
}

// Sweep runs the periodic cache-expiry housekeeping described in §5.
func (r *Router) Sweep() {
	r.cache.Sweep()
}

func decisionStillValid(d Decision, bl *blacklist.Manager, now time.Time) bool {
	if blacklisted, _ := bl.IsModelBlacklisted(d.Primary.Candidate.ChannelID, d.Primary.Candidate.MatchedModel, now); blacklisted {
		return false
	}
	for _, b := range d.Backups {
		if blacklisted, _ := bl.IsModelBlacklisted(b.Candidate.ChannelID, b.Candidate.MatchedModel, now); blacklisted {
			return false
		}
	}
	return true
}
