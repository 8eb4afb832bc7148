package workflowexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokensRoughlyFourCharsPerToken(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 3, EstimateTokens("0123456789")) // ceil(10/4) = 3
}

func TestNewTokenCounterFallsBackToCl100kBaseForUnknownModel(t *testing.T) {
	tc, err := NewTokenCounter("not-a-real-model")
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Greater(t, tc.Count("hello, world"), 0)
}

func TestTokenCounterCountIsStableAcrossCalls(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)
	a := tc.Count("the quick brown fox jumps over the lazy dog")
	b := tc.Count("the quick brown fox jumps over the lazy dog")
	assert.Equal(t, a, b)
	assert.Greater(t, a, 0)
}
