package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturedStream_WritesWithinCapAreNotTruncated(t *testing.T) {
	s := newCapturedStream(10)
	n, err := s.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(s.Bytes()))
	assert.False(t, s.Truncated())
}

func TestCapturedStream_OverflowTruncatesTailAndSetsFlag(t *testing.T) {
	s := newCapturedStream(5)
	n, err := s.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n, "Write must report the full length even when bytes are dropped")
	assert.Equal(t, "hello", string(s.Bytes()))
	assert.True(t, s.Truncated())
}

func TestCapturedStream_WritesAfterCapHitAreDiscardedButNeverBlock(t *testing.T) {
	s := newCapturedStream(3)
	_, err := s.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = s.Write([]byte("more data"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(s.Bytes()))
	assert.True(t, s.Truncated())
}

func TestCapturedStream_ZeroCapFallsBackToDefault(t *testing.T) {
	s := newCapturedStream(0)
	assert.Equal(t, OutputCapBytes, s.cap)
}
