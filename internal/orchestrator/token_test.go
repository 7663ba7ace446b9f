package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens_Monotonic(t *testing.T) {
	small, err := estimateTokens("echo", map[string]any{"a": "1"})
	require.NoError(t, err)

	large, err := estimateTokens("echo", map[string]any{"a": "1111111111111111111111111111111111111"})
	require.NoError(t, err)

	assert.LessOrEqual(t, small, large)
}

func TestEstimateTokens_BoundedByTwiceByteLength(t *testing.T) {
	params := map[string]any{"message": "hello world, this is a reasonably sized payload"}
	tokens, err := estimateTokens("echo", params)
	require.NoError(t, err)

	serialized, err := json.Marshal(params)
	require.NoError(t, err)

	assert.LessOrEqual(t, tokens, 2*(len("echo")+len(serialized)))
}

func TestCacheKey_OrderInsensitive(t *testing.T) {
	k1, err := cacheKey("echo", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	k2, err := cacheKey("echo", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "key order in params must not affect the cache key")
}

func TestCacheKey_DifferentIntentsDiffer(t *testing.T) {
	k1, _ := cacheKey("echo", map[string]any{"a": 1})
	k2, _ := cacheKey("other", map[string]any{"a": 1})
	assert.NotEqual(t, k1, k2)
}
