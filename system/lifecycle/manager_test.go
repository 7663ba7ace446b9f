package lifecycle

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	name        string
	startErr    error
	stopErr     error
	started     bool
	stopped     bool
	startOrder  *[]string
	stopOrder   *[]string
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	if f.startOrder != nil {
		*f.startOrder = append(*f.startOrder, f.name)
	}
	return nil
}

func (f *fakeService) Stop(ctx context.Context) error {
	f.stopped = true
	if f.stopOrder != nil {
		*f.stopOrder = append(*f.stopOrder, f.name)
	}
	return f.stopErr
}

func TestManager_StartsInRegistrationOrder(t *testing.T) {
	var order []string
	m := NewManager()
	require.NoError(t, m.Register(&fakeService{name: "a", startOrder: &order}))
	require.NoError(t, m.Register(&fakeService{name: "b", startOrder: &order}))
	require.NoError(t, m.Register(&fakeService{name: "c", startOrder: &order}))

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestManager_StopsInReverseOrder(t *testing.T) {
	var order []string
	m := NewManager()
	require.NoError(t, m.Register(&fakeService{name: "a", stopOrder: &order}))
	require.NoError(t, m.Register(&fakeService{name: "b", stopOrder: &order}))
	require.NoError(t, m.Register(&fakeService{name: "c", stopOrder: &order}))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestManager_StartFailureRollsBackAlreadyStarted(t *testing.T) {
	a := &fakeService{name: "a"}
	b := &fakeService{name: "b", startErr: fmt.Errorf("boom")}
	c := &fakeService{name: "c"}

	m := NewManager()
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Register(c))

	err := m.Start(context.Background())
	require.Error(t, err)

	assert.True(t, a.started)
	assert.True(t, a.stopped, "already-started services must be rolled back")
	assert.False(t, c.started, "a service after the failing one must never start")
}

func TestManager_StopIsIdempotent(t *testing.T) {
	var stopOrder []string
	svc := &fakeService{name: "a", stopOrder: &stopOrder}
	m := NewManager()
	require.NoError(t, m.Register(svc))
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Stop(context.Background()))
	require.NoError(t, m.Stop(context.Background()))

	assert.Len(t, stopOrder, 1, "calling Stop twice must not panic or double-run service Stop")
}

func TestManager_RegisterAfterStartIsRejected(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start(context.Background()))

	err := m.Register(&fakeService{name: "late"})
	assert.Error(t, err)
}

func TestManager_RegisterNilRejected(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.Register(nil))
}
