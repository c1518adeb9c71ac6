package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableForEquivalentRequests(t *testing.T) {
	a := Request{Model: "GPT-4O-Mini", Strategy: "balanced", MaxTokens: 260, HasTemperature: true, Temperature: 0.71}
	b := Request{Model: "gpt-4o-mini", Strategy: "balanced", MaxTokens: 300, HasTemperature: true, Temperature: 0.74}
	require.Equal(t, Fingerprint(a), Fingerprint(b), "bucketing should collapse near-identical requests")
}

func TestFingerprint_DiffersOnModel(t *testing.T) {
	a := Request{Model: "gpt-4o-mini"}
	b := Request{Model: "gpt-4o"}
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_ExcludeProvidersOrderInsensitive(t *testing.T) {
	a := Request{Model: "m", ExcludeProviders: []string{"openai", "anthropic"}}
	b := Request{Model: "m", ExcludeProviders: []string{"Anthropic", "OpenAI"}}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_UnsetTemperatureDiffersFromZero(t *testing.T) {
	a := Request{Model: "m", HasTemperature: false}
	b := Request{Model: "m", HasTemperature: true, Temperature: 0}
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
