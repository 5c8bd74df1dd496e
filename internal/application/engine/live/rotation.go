package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alejandrodnm/wxbot/internal/domain"
	"github.com/alejandrodnm/wxbot/internal/ports"
)

// Sweeper deactivates instruments whose settlement day has passed. It runs
// once on Start and then on the cron spec.
type Sweeper struct {
	store ports.InstrumentStore
	spec  string
	now   func() time.Time
	cron  *cron.Cron
}

// NewSweeper creates a sweeper. spec accepts six-field cron expressions and
// descriptors such as "@every 6h".
func NewSweeper(store ports.InstrumentStore, spec string, now func() time.Time) *Sweeper {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{
		store: store,
		spec:  spec,
		now:   now,
		cron:  cron.New(cron.WithSeconds()),
	}
}

// Start runs one sweep and schedules the rest. Jobs use ctx.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("sweeper: bad spec %q: %w", s.spec, err)
	}
	s.sweep(ctx)
	s.cron.Start()
	slog.Debug("sweeper: started", "spec", s.spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce deactivates every instrument settling before today.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DeactivateExpired(ctx, domain.StartOfDay(s.now()))
	if err != nil {
		return 0, fmt.Errorf("sweeper: %w", err)
	}
	return n, nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.RunOnce(ctx)
	if err != nil {
		slog.Warn("sweeper: failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("sweeper: instruments expired", "count", n)
	}
}
