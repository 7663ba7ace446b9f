package contextstore

import (
	"context"

	"github.com/robfig/cron/v3"
)

// SweepSchedule is the default cron schedule for the TTL sweep, replacing
// the teacher's raw time.Ticker cleanup loop with a scheduled job so the
// sweep interval is configurable the same way the rest of the core's
// periodic work is.
const SweepSchedule = "@every 30s"

// Sweeper periodically sweeps expired entries out of a MemoryStore. It
// implements the lifecycle Service contract (see system/lifecycle) so it
// can be registered with the top-level manager alongside every other
// component.
type Sweeper struct {
	store    *MemoryStore
	schedule string
	cron     *cron.Cron
}

// NewSweeper builds a Sweeper for store, using schedule (or SweepSchedule
// if empty).
func NewSweeper(store *MemoryStore, schedule string) *Sweeper {
	if schedule == "" {
		schedule = SweepSchedule
	}
	return &Sweeper{store: store, schedule: schedule}
}

func (s *Sweeper) Name() string { return "contextstore.sweeper" }

func (s *Sweeper) Start(_ context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.store.Sweep() }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}
