package usage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountTokens_Deterministic(t *testing.T) {
	a := CountTokens("hello, how does this algorithm work?")
	b := CountTokens("hello, how does this algorithm work?")
	require.Equal(t, a, b)
	require.Greater(t, a, 0)
}

func TestDetectComplexity_ExpertBeatsComplex(t *testing.T) {
	c := DetectComplexity("please prove this theorem about distributed systems")
	require.Equal(t, ComplexityExpert, c)
}

func TestDetectComplexity_DefaultsSimple(t *testing.T) {
	c := DetectComplexity("hi there")
	require.Equal(t, ComplexitySimple, c)
}

func TestEstimateRequest_PureFunctionNoIO(t *testing.T) {
	e1 := EstimateRequest("explain how to refactor this algorithm", 5.0, 15.0)
	e2 := EstimateRequest("explain how to refactor this algorithm", 5.0, 15.0)
	require.Equal(t, e1, e2)
	require.Greater(t, e1.TotalCost, 0.0)
}

func TestEstimateRequest_OutputMultiplierScalesWithComplexity(t *testing.T) {
	simple := EstimateRequest("hi", 1, 1)
	complex := EstimateRequest("please analyze and optimize this algorithm design pattern", 1, 1)
	require.Less(t, float64(simple.OutputTokens)/float64(simple.InputTokens), float64(complex.OutputTokens)/float64(complex.InputTokens))
}
