// Package routing collapses candidate discovery (C6), capability filtering
// (C7), batch scoring (C8), and the selection cache (C9) into one facade
// package, per Design Notes §9 ("Collapse cyclic imports between router,
// scorer, and mixins into a single routing package with a facade object and
// pure functions for score computations"). Grounded on the teacher's
// middleware/distributor.go channel-selection flow, generalized from a
// single random-pick-among-equals strategy to full multi-factor scoring.
package routing

import (
	"sort"
)

// Message is the minimal shape routing needs from a chat message; the full
// wire representation lives in the shim package.
type Message struct {
	Role  string
	Parts []MessagePart
}

type MessagePart struct {
	Type     string // "text" | "image_url"
	Text     string
	ImageURL string
}

// Request is C6/C7/C8's input (§3.5).
type Request struct {
	Model                string
	Messages             []Message
	Stream               bool
	MaxTokens            int
	Temperature          float64
	HasTemperature       bool
	HasFunctions         bool
	RequiredCapabilities []string // merged with the derived capabilities by DeriveCapabilities
	Strategy             string
	MinContextLength     int
	MaxCostPerKTokens    float64
	PreferLocal          bool
	ExcludeProviders     []string
}

// ChannelCandidate is one (channel, concrete-model) pairing produced by
// candidate discovery (§4.6).
type ChannelCandidate struct {
	ChannelID    string
	Provider     string
	BaseURL      string
	APIKey       string
	Priority     int
	MatchedModel string
	MinIntervalS float64
	// ExchangeRate converts the channel's native pricing currency to the
	// gateway's reporting currency (§4.8's cost dimension); 0 means no
	// conversion is configured and costDimension treats it as 1.0.
	ExchangeRate float64
}

// Score holds the eight normalized sub-scores plus the total and a
// human-readable reason (§3.5).
type Score struct {
	Candidate   ChannelCandidate
	Cost        float64
	Speed       float64
	Quality     float64
	Reliability float64
	Parameter   float64
	Context     float64
	Free        float64
	Local       float64
	Total       float64
	Reason      string
}

// dimensionEpsilon is the tie-break tolerance for total_score comparisons
// (§4.8: "ties on total_score within epsilon 1e-6").
const dimensionEpsilon = 1e-6

// SortScores orders scores per §4.8's hierarchical tiebreak: total_score
// desc (within epsilon), then priority asc, then matched-model parameter
// score desc, then channel id asc.
func SortScores(scores []Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if diff := a.Total - b.Total; diff > dimensionEpsilon || diff < -dimensionEpsilon {
			return a.Total > b.Total
		}
		if a.Candidate.Priority != b.Candidate.Priority {
			return a.Candidate.Priority < b.Candidate.Priority
		}
		if a.Parameter != b.Parameter {
			return a.Parameter > b.Parameter
		}
		return a.Candidate.ChannelID < b.Candidate.ChannelID
	})
}
