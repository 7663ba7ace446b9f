package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceID_RoundTripsThroughContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", TraceID(ctx))

	id := NewTraceID()
	ctx = WithTraceID(ctx, id)
	assert.Equal(t, id, TraceID(ctx))
}

func TestSessionID_RoundTripsThroughContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", SessionID(ctx))

	ctx = WithSessionID(ctx, "s1")
	assert.Equal(t, "s1", SessionID(ctx))
}

func TestNewTraceID_IsUnique(t *testing.T) {
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}

func TestNew_FallsBackToInfoOnInvalidLevel(t *testing.T) {
	l := New("test", "not-a-level", "json")
	assert.Equal(t, "info", l.GetLevel().String())
}

func TestWithContext_AttachesTraceAndSessionFields(t *testing.T) {
	l := New("test", "info", "json")
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithSessionID(ctx, "session-1")

	entry := l.WithContext(ctx)
	assert.Equal(t, "trace-1", entry.Data["trace_id"])
	assert.Equal(t, "session-1", entry.Data["session_id"])
	assert.Equal(t, "test", entry.Data["component"])
}
