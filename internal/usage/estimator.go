// Package usage implements C11: pre-flight cost estimation and post-flight
// usage/cost accounting to append-only daily JSONL logs (§3.8, §4.11).
// Grounded on the teacher's relay/billing token counting
// (relay/adaptor/openai/token.go counts via tiktoken-go) and the Python
// source's core/utils/cost_estimator.py complexity-bucket heuristic,
// reimplemented as deterministic pure functions per §8 invariant 6
// ("cost_estimator.estimate is purely a function of messages and channel
// metadata, no I/O").
package usage

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackBaseTokens is added to every fallback estimate to account for
// chat-format scaffolding tokens (role markers, separators) the character
// heuristic cannot see (Python source: "+ 50").
const fallbackBaseTokens = 50

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func defaultEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens counts text tokens with the cl100k_base BPE encoding when
// available, falling back to a character-class heuristic otherwise (when the
// tiktoken-go vocabulary file cannot be loaded, e.g. no network at startup):
// ceil(chinese_chars/2 + other_chars/4) + 50.
func CountTokens(text string) int {
	if enc := defaultEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return fallbackEstimate(text)
}

func fallbackEstimate(text string) int {
	var chinese, other int
	for _, r := range text {
		if isCJK(r) {
			chinese++
		} else if r != ' ' && r != '\t' && r != '\n' {
			other++
		}
	}
	estimate := (2*chinese+other+3)/4 + fallbackBaseTokens
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3400 && r <= 0x4DBF)
}

// Complexity is the coarse request-difficulty bucket the Python source
// derives from keyword matching (core/utils/cost_estimator.py), used to
// multiply the output-token estimate.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

var complexityKeywords = map[Complexity][]string{
	ComplexityExpert: {
		"prove", "theorem", "research paper", "dissertation", "architecture design",
		"distributed system", "formal verification", "security audit",
	},
	ComplexityComplex: {
		"analyze", "algorithm", "optimize", "refactor", "design pattern",
		"debug", "compare and contrast", "multi-step",
	},
	ComplexityModerate: {
		"explain", "summarize", "write a", "translate", "how does", "why does",
	},
}

// outputMultiplier maps a complexity bucket to the estimated
// output/input token ratio (§4.11: "0.5/1/2/3x").
var outputMultiplier = map[Complexity]float64{
	ComplexitySimple:   0.5,
	ComplexityModerate: 1.0,
	ComplexityComplex:  2.0,
	ComplexityExpert:   3.0,
}

// DetectComplexity scans text for the keyword buckets, highest-specificity
// bucket wins; no match defaults to simple.
func DetectComplexity(text string) Complexity {
	lower := strings.ToLower(text)
	for _, bucket := range []Complexity{ComplexityExpert, ComplexityComplex, ComplexityModerate} {
		for _, kw := range complexityKeywords[bucket] {
			if strings.Contains(lower, kw) {
				return bucket
			}
		}
	}
	return ComplexitySimple
}

// Estimate is the pre-flight projection: input tokens counted directly,
// output tokens projected via the complexity multiplier, and a cost
// computed against the supplied per-1M-token prices (§4.11: "used only for
// logging and recommendations, not for routing itself unless the strategy
// opts in").
type Estimate struct {
	InputTokens  int
	OutputTokens int
	Complexity   Complexity
	InputCost    float64
	OutputCost   float64
	TotalCost    float64
}

// EstimateRequest is a pure function of the concatenated message text and
// the candidate model's per-1M-token pricing.
func EstimateRequest(text string, pricingInputPerM, pricingOutputPerM float64) Estimate {
	inputTokens := CountTokens(text)
	complexity := DetectComplexity(text)
	outputTokens := int(float64(inputTokens) * outputMultiplier[complexity])
	if outputTokens < 1 {
		outputTokens = 1
	}

	inputCost := float64(inputTokens) / 1_000_000 * pricingInputPerM
	outputCost := float64(outputTokens) / 1_000_000 * pricingOutputPerM

	return Estimate{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Complexity:   complexity,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost + outputCost,
	}
}
