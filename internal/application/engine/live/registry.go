package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
	"github.com/alejandrodnm/wxbot/internal/ports"
)

// Evaluator checks one breaker condition. tripped=true activates the gate.
// A non-nil error also activates it (fail closed).
type Evaluator func(ctx context.Context) (tripped bool, reason string, err error)

// RiskConfig holds the floors and ceilings the standard evaluators use.
// Zero values disable the corresponding check.
type RiskConfig struct {
	MaxLoss           float64       // loss_limit: realized PnL below -MaxLoss
	WinRateWindow     int           // win_rate: last N resolved positions
	WinRateMinSamples int           // win_rate: needs at least this many
	WinRateFloor      float64       // win_rate: 0..1
	MaxDataAge        time.Duration // data_freshness
	BalanceFloor      float64       // balance_floor, USDC
}

// Registry holds the state of every named breaker. Evaluation may run from
// any goroutine; state changes are persisted and alerted once.
type Registry struct {
	mu         sync.RWMutex
	state      map[domain.BreakerName]domain.Breaker
	evaluators map[domain.BreakerName]Evaluator

	store   ports.BreakerStore
	alerter ports.Alerter
	metrics *Metrics
	now     func() time.Time
}

// NewRegistry creates a registry with every breaker inactive and no evaluators.
func NewRegistry(store ports.BreakerStore, alerter ports.Alerter, metrics *Metrics) *Registry {
	r := &Registry{
		state:      make(map[domain.BreakerName]domain.Breaker, len(domain.BreakerNames)),
		evaluators: make(map[domain.BreakerName]Evaluator),
		store:      store,
		alerter:    alerter,
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, name := range domain.BreakerNames {
		r.state[name] = domain.Breaker{Name: name}
	}
	return r
}

// Register sets the evaluator for name. The manual breaker cannot have one.
func (r *Registry) Register(name domain.BreakerName, ev Evaluator) {
	if !name.AutoClears() {
		return
	}
	r.mu.Lock()
	r.evaluators[name] = ev
	r.mu.Unlock()
}

// Restore loads persisted breaker state. Unknown names are ignored.
func (r *Registry) Restore(ctx context.Context) error {
	saved, err := r.store.LoadBreakers(ctx)
	if err != nil {
		return fmt.Errorf("registry.Restore: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range saved {
		if _, ok := r.state[b.Name]; !ok {
			continue
		}
		r.state[b.Name] = b
		r.metrics.setBreaker(b)
		if b.Active {
			slog.Warn("breaker: restored active", "name", b.Name, "reason", b.Reason)
		}
	}
	return nil
}

// Evaluate runs every registered evaluator and applies the transitions.
// It returns the breakers active afterwards.
func (r *Registry) Evaluate(ctx context.Context) []domain.Breaker {
	r.mu.RLock()
	evs := make(map[domain.BreakerName]Evaluator, len(r.evaluators))
	for n, ev := range r.evaluators {
		evs[n] = ev
	}
	r.mu.RUnlock()

	for _, name := range domain.BreakerNames {
		ev, ok := evs[name]
		if !ok {
			continue
		}
		tripped, reason, err := ev(ctx)
		if err != nil {
			tripped = true
			reason = "evaluator error: " + err.Error()
		}
		r.set(ctx, name, tripped, reason)
	}
	return r.Active()
}

// Trip activates name regardless of its evaluator.
func (r *Registry) Trip(ctx context.Context, name domain.BreakerName, reason string) {
	r.set(ctx, name, true, reason)
}

// Clear deactivates name. It is the only way to clear the manual breaker.
func (r *Registry) Clear(ctx context.Context, name domain.BreakerName) {
	r.set(ctx, name, false, "")
}

// AnyActive reports whether any breaker vetoes new orders.
func (r *Registry) AnyActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.state {
		if b.Active {
			return true
		}
	}
	return false
}

// Active returns the active breakers in evaluation order.
func (r *Registry) Active() []domain.Breaker {
	var out []domain.Breaker
	for _, b := range r.Snapshot() {
		if b.Active {
			out = append(out, b)
		}
	}
	return out
}

// Snapshot returns every breaker in evaluation order.
func (r *Registry) Snapshot() []domain.Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Breaker, 0, len(domain.BreakerNames))
	for _, name := range domain.BreakerNames {
		out = append(out, r.state[name])
	}
	return out
}

// set applies one transition. Only real changes are persisted and alerted.
func (r *Registry) set(ctx context.Context, name domain.BreakerName, active bool, reason string) {
	r.mu.Lock()
	cur, ok := r.state[name]
	if !ok || cur.Active == active {
		r.mu.Unlock()
		return
	}
	now := r.now()
	next := domain.Breaker{Name: name, Active: active, UpdatedAt: now}
	if active {
		next.Reason = reason
		next.TriggeredAt = &now
	}
	r.state[name] = next
	r.mu.Unlock()

	r.metrics.setBreaker(next)
	if err := r.store.SaveBreaker(ctx, next); err != nil {
		slog.Error("breaker: persist failed", "name", name, "err", err)
	}

	alert := domain.Alert{Level: "info", Title: "breaker cleared", Message: string(name), At: now}
	if active {
		slog.Warn("breaker: tripped", "name", name, "reason", reason)
		alert = domain.Alert{Level: "warn", Title: "breaker tripped", Message: fmt.Sprintf("%s: %s", name, reason), At: now}
	} else {
		slog.Info("breaker: cleared", "name", name, "was", cur.Reason)
	}
	if r.alerter != nil {
		if err := r.alerter.Alert(ctx, alert); err != nil {
			slog.Debug("breaker: alert failed", "err", err)
		}
	}
}

// RegisterStandard wires the built-in evaluators. tracked lists the locations
// whose readings must stay fresh.
func (r *Registry) RegisterStandard(
	cfg RiskConfig,
	positions ports.PositionStore,
	readings ports.ReadingStore,
	quotes ports.QuoteSource,
	venue ports.OrderVenue,
	tracked []string,
) {
	r.Register(domain.BreakerLossLimit, LossLimit(positions, cfg.MaxLoss))
	r.Register(domain.BreakerWinRate, WinRate(positions, cfg.WinRateWindow, cfg.WinRateMinSamples, cfg.WinRateFloor))
	r.Register(domain.BreakerDataFreshness, DataFreshness(readings, tracked, cfg.MaxDataAge, r.now))
	r.Register(domain.BreakerAPIHealth, APIHealth(quotes))
	r.Register(domain.BreakerBalanceFloor, BalanceFloor(venue, cfg.BalanceFloor))
}

// LossLimit trips when realized PnL falls below -maxLoss.
func LossLimit(store ports.PositionStore, maxLoss float64) Evaluator {
	return func(ctx context.Context) (bool, string, error) {
		if maxLoss <= 0 {
			return false, "", nil
		}
		pnl, err := store.RealizedPnL(ctx)
		if err != nil {
			return false, "", err
		}
		if pnl < -maxLoss {
			return true, fmt.Sprintf("realized PnL $%.2f below -$%.2f", pnl, maxLoss), nil
		}
		return false, "", nil
	}
}

// WinRate trips when the win rate over the last window resolved positions
// drops below floor. Fewer than minSamples resolutions never trip.
func WinRate(store ports.PositionStore, window, minSamples int, floor float64) Evaluator {
	return func(ctx context.Context) (bool, string, error) {
		if window <= 0 || floor <= 0 {
			return false, "", nil
		}
		recent, err := store.RecentResolved(ctx, window)
		if err != nil {
			return false, "", err
		}
		if len(recent) == 0 || len(recent) < minSamples {
			return false, "", nil
		}
		wins := 0
		for _, p := range recent {
			if p.RealizedPnL != nil && *p.RealizedPnL > 0 {
				wins++
			}
		}
		rate := float64(wins) / float64(len(recent))
		if rate < floor {
			return true, fmt.Sprintf("win rate %.0f%% over %d below %.0f%%", rate*100, len(recent), floor*100), nil
		}
		return false, "", nil
	}
}

// DataFreshness trips when any tracked location has no reading newer than maxAge.
func DataFreshness(store ports.ReadingStore, tracked []string, maxAge time.Duration, now func() time.Time) Evaluator {
	return func(ctx context.Context) (bool, string, error) {
		if maxAge <= 0 || len(tracked) == 0 {
			return false, "", nil
		}
		latest, err := store.LatestReadingTimes(ctx)
		if err != nil {
			return false, "", err
		}
		t := now()
		for _, loc := range tracked {
			at, ok := latest[loc]
			if !ok {
				return true, fmt.Sprintf("no readings for %s", loc), nil
			}
			if age := t.Sub(at); age > maxAge {
				return true, fmt.Sprintf("%s reading is %s old", loc, age.Truncate(time.Second)), nil
			}
		}
		return false, "", nil
	}
}

// APIHealth trips while the quote source does not answer.
func APIHealth(quotes ports.QuoteSource) Evaluator {
	return func(ctx context.Context) (bool, string, error) {
		if err := quotes.Ping(ctx); err != nil {
			return true, "quote API unreachable: " + err.Error(), nil
		}
		return false, "", nil
	}
}

// BalanceFloor trips when the venue balance is below floor.
func BalanceFloor(venue ports.OrderVenue, floor float64) Evaluator {
	return func(ctx context.Context) (bool, string, error) {
		if floor <= 0 {
			return false, "", nil
		}
		bal, err := venue.GetBalance(ctx)
		if err != nil {
			return false, "", err
		}
		if bal < floor {
			return true, fmt.Sprintf("balance $%.2f below floor $%.2f", bal, floor), nil
		}
		return false, "", nil
	}
}
