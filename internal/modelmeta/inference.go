package modelmeta

// ladderBucket is the deterministic parameter-count -> score ladder shared
// by quality and parameter dimensions (§4.8: "identical ladder as quality").
func ladderBucket(paramCountM float64) float64 {
	switch {
	case paramCountM >= 70_000:
		return 1.0
	case paramCountM >= 30_000:
		return 0.9
	case paramCountM >= 10_000:
		return 0.8
	case paramCountM >= 3_000:
		return 0.7
	case paramCountM >= 1_000:
		return 0.6
	case paramCountM >= 300:
		return 0.5
	case paramCountM >= 100:
		return 0.4
	default:
		return 0.3
	}
}

// InferredQuality returns the deterministic heuristic quality score used
// when ModelMetadata.QualityScore is unset (0): bucketed from parameter
// count, with a small reputation bump for known high-quality providers.
func InferredQuality(m ModelMetadata) float64 {
	if m.QualityScore > 0 {
		return m.QualityScore
	}
	score := ladderBucket(m.ParameterCountM)
	switch m.Provider {
	case "openai", "anthropic", "google", "gemini":
		score = clamp01(score + 0.05)
	}
	return score
}

// InferredSpeed returns the heuristic speed score used when
// ModelMetadata.SpeedScore is unset; this is only the metadata-level
// fallback — the scorer itself prefers rolling latency samples (§4.8).
func InferredSpeed(m ModelMetadata) float64 {
	if m.SpeedScore > 0 {
		return m.SpeedScore
	}
	return 0.8
}

// ParameterScore buckets parameter count using the identical ladder as
// quality (§4.8).
func ParameterScore(paramCountM float64) float64 {
	return ladderBucket(paramCountM)
}

// ContextScore buckets context length per the table in §4.8.
func ContextScore(contextLength int) float64 {
	switch {
	case contextLength >= 1_000_000:
		return 1.0
	case contextLength >= 200_000:
		return 0.9
	case contextLength >= 32_000:
		return 0.8
	case contextLength >= 16_000:
		return 0.7
	case contextLength >= 8_000:
		return 0.6
	case contextLength >= 4_000:
		return 0.5
	default:
		return 0.3
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
