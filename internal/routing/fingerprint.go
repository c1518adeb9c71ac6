package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// fingerprintPayload is the canonical (stable field order, sorted slices,
// bucketed floats) projection of a Request hashed for the selection cache
// key (§3.6). Two requests that would route identically hash identically.
type fingerprintPayload struct {
	Model             string   `json:"model"`
	Strategy          string   `json:"strategy"`
	Capabilities      []string `json:"capabilities"`
	MinContextLength  int      `json:"min_context_length"`
	MaxCostPerKTokens float64  `json:"max_cost_per_1k"`
	PreferLocal       bool     `json:"prefer_local"`
	ExcludeProviders  []string `json:"exclude_providers"`
	MaxTokensBucket   int      `json:"max_tokens_bucket"`
	TemperatureBucket float64  `json:"temperature_bucket"`
	Stream            bool     `json:"stream"`
	HasFunctions      bool     `json:"has_functions"`
}

// bucketMaxTokens rounds down to the nearest 256, collapsing near-identical
// requests onto the same cache key.
func bucketMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 0
	}
	return (maxTokens / 256) * 256
}

// bucketTemperature rounds to the nearest 0.1; -1 signals "unset" distinctly
// from an explicit temperature of 0.
func bucketTemperature(temperature float64, hasTemperature bool) float64 {
	if !hasTemperature {
		return -1
	}
	return float64(int(temperature*10+0.5)) / 10
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	sort.Strings(out)
	return out
}

// Fingerprint returns the stable hex-encoded SHA-256 identifying req for
// selection-cache lookups (§3.6, §4.9).
func Fingerprint(req Request) string {
	caps := DeriveCapabilities(req)
	sort.Strings(caps)

	payload := fingerprintPayload{
		Model:             strings.ToLower(req.Model),
		Strategy:          req.Strategy,
		Capabilities:      caps,
		MinContextLength:  req.MinContextLength,
		MaxCostPerKTokens: req.MaxCostPerKTokens,
		PreferLocal:       req.PreferLocal,
		ExcludeProviders:  sortedCopy(req.ExcludeProviders),
		MaxTokensBucket:   bucketMaxTokens(req.MaxTokens),
		TemperatureBucket: bucketTemperature(req.Temperature, req.HasTemperature),
		Stream:            req.Stream,
		HasFunctions:      req.HasFunctions,
	}

	raw, _ := json.Marshal(payload) // struct field order is fixed; never fails
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
