package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/wxbot/internal/domain"
	"github.com/alejandrodnm/wxbot/internal/ports"
)

const (
	defaultPromotionInterval = 60 * time.Second
	defaultInstrumentRefresh = 10 * time.Minute
	defaultReadingRefresh    = 5 * time.Minute
	defaultPollMin           = 2 * time.Second
	defaultPollMax           = 5 * time.Second
	defaultSlippage          = 0.02
	defaultSizeDecimals      = 2
	defaultCostDecimals      = 2
	defaultHorizonDays       = 1
	defaultSweepSpec         = "@every 6h"
)

// AllocationPolicy decides how much capital one execution may use.
type AllocationPolicy string

const (
	// AllocEqualSplit divides capital evenly across the bets live at the
	// instant of execution.
	AllocEqualSplit AllocationPolicy = "equal_split"
	// AllocFixedFraction uses a fixed fraction of capital per bet.
	AllocFixedFraction AllocationPolicy = "fixed_fraction"
)

// Config holds configuration for the live engine.
type Config struct {
	PromotionInterval time.Duration
	InstrumentRefresh time.Duration
	ReadingRefresh    time.Duration
	PollMin           time.Duration
	PollMax           time.Duration
	SlippageTolerance float64 // relative, 0.02 = 2%
	Allocation        AllocationPolicy
	FixedFraction     float64
	MaxCapital        float64 // 0 = whole venue balance
	SizeDecimals      int32
	CostDecimals      int32
	HorizonDays       int // score instruments settling today..today+HorizonDays
	SweepSpec         string
	Score             domain.ScoreParams
	Locations         []domain.Location
}

func (c *Config) setDefaults() {
	if c.PromotionInterval <= 0 {
		c.PromotionInterval = defaultPromotionInterval
	}
	if c.InstrumentRefresh <= 0 {
		c.InstrumentRefresh = defaultInstrumentRefresh
	}
	if c.ReadingRefresh <= 0 {
		c.ReadingRefresh = defaultReadingRefresh
	}
	if c.PollMin <= 0 {
		c.PollMin = defaultPollMin
	}
	if c.PollMax < c.PollMin {
		c.PollMax = max(defaultPollMax, c.PollMin)
	}
	if c.SlippageTolerance < 0 {
		c.SlippageTolerance = defaultSlippage
	}
	if c.Allocation == "" {
		c.Allocation = AllocEqualSplit
	}
	if c.SizeDecimals <= 0 {
		c.SizeDecimals = defaultSizeDecimals
	}
	if c.CostDecimals <= 0 {
		c.CostDecimals = defaultCostDecimals
	}
	if c.HorizonDays < 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.SweepSpec == "" {
		c.SweepSpec = defaultSweepSpec
	}
	if c.Score == (domain.ScoreParams{}) {
		c.Score = domain.DefaultScoreParams()
	}
}

// Deps are the ports the engine drives.
type Deps struct {
	Store    ports.Storage
	Markets  ports.MarketProvider
	Weather  ports.WeatherSource
	Books    ports.BookProvider
	Quotes   ports.QuoteSource
	Venue    ports.OrderVenue
	Alerter  ports.Alerter
	Registry *Registry
	Metrics  *Metrics
}

// Engine detects safe bets and executes them competitively.
//
// A single coordinator goroutine owns the SafeBet set and the supervisor task
// pool. Promotion results, execution requests from tasks and operator
// commands all reach it over channels and are handled one at a time, so a bet
// can be executed at most once and stop/replace never interleave.
type Engine struct {
	cfg      Config
	store    ports.Storage
	markets  ports.MarketProvider
	weather  ports.WeatherSource
	books    ports.BookProvider
	quotes   ports.QuoteSource
	venue    ports.OrderVenue
	alerter  ports.Alerter
	registry *Registry
	metrics  *Metrics
	now      func() time.Time

	passCh chan passOutcome
	execCh chan execRequest
	cmdCh  chan command

	// published by the coordinator, read by anyone
	view    atomic.Pointer[map[domain.BetKey]domain.SafeBet]
	paused  atomic.Bool
	stopped atomic.Bool

	// coordinator-owned
	set map[domain.BetKey]domain.SafeBet
	sup *supervisor
	// unrecorded holds filled orders whose position write failed. Their keys
	// stay excluded from promotion until the position is stored.
	unrecorded map[domain.BetKey]domain.Position

	// scoring-loop-owned
	lastInstrumentRefresh time.Time
	lastReadingRefresh    time.Time
}

// New creates the engine. Registry and Metrics are created when nil.
func New(deps Deps, cfg Config) *Engine {
	cfg.setDefaults()
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry(deps.Store, deps.Alerter, deps.Metrics)
	}

	e := &Engine{
		cfg:      cfg,
		store:    deps.Store,
		markets:  deps.Markets,
		weather:  deps.Weather,
		books:    deps.Books,
		quotes:   deps.Quotes,
		venue:    deps.Venue,
		alerter:  deps.Alerter,
		registry: deps.Registry,
		metrics:  deps.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
		passCh:   make(chan passOutcome),
		execCh:   make(chan execRequest),
		cmdCh:    make(chan command),
		set:      make(map[domain.BetKey]domain.SafeBet),

		unrecorded: make(map[domain.BetKey]domain.Position),
	}
	e.sup = newSupervisor(e)
	e.publish()
	return e
}

// Registry exposes the breaker registry (status, restore).
func (e *Engine) Registry() *Registry { return e.registry }

// Metrics exposes the engine collectors.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Run starts the coordinator, the scoring loop and the day-rotation sweeper
// and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.registry.Restore(ctx); err != nil {
		slog.Warn("engine: breaker restore failed", "err", err)
	}

	sweeper := NewSweeper(e.store, e.cfg.SweepSpec, e.now)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("live.Run: %w", err)
	}
	defer sweeper.Stop()

	slog.Info("engine: started",
		"promotion_every", e.cfg.PromotionInterval,
		"poll", fmt.Sprintf("%s-%s", e.cfg.PollMin, e.cfg.PollMax),
		"allocation", e.cfg.Allocation,
		"locations", len(e.cfg.Locations),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.coordinate(gctx) })
	g.Go(func() error { return e.scoreLoop(gctx) })

	err := g.Wait()
	slog.Info("engine: stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// RunOnce runs one promotion pass synchronously and returns the qualifying
// bets without starting any task. Used by the CLI -once mode.
func (e *Engine) RunOnce(ctx context.Context) ([]domain.SafeBet, PassResult, error) {
	out, err := e.promote(ctx)
	if err != nil {
		return nil, out.result, err
	}
	bets := out.candidates
	sort.Slice(bets, func(i, j int) bool { return bets[i].Score > bets[j].Score })
	return bets, out.result, nil
}

// SafeBets returns a snapshot of the live set ordered by score.
func (e *Engine) SafeBets() []domain.SafeBet {
	m := *e.view.Load()
	out := make([]domain.SafeBet, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// Status returns the current operator view.
func (e *Engine) Status() domain.EngineStatus {
	return domain.EngineStatus{
		Paused:   e.paused.Load(),
		Stopped:  e.stopped.Load(),
		SafeBets: e.SafeBets(),
		Breakers: e.registry.Snapshot(),
	}
}

// publish copies the coordinator's set into the read-only view.
func (e *Engine) publish() {
	m := make(map[domain.BetKey]domain.SafeBet, len(e.set))
	for k, v := range e.set {
		m[k] = v
	}
	e.view.Store(&m)
	e.metrics.setSafeBets(len(m))
}

// liveBet returns the current entry for key from the published set.
func (e *Engine) liveBet(key domain.BetKey) (domain.SafeBet, bool) {
	b, ok := (*e.view.Load())[key]
	return b, ok
}

// coordinate is the single writer of the SafeBet set.
func (e *Engine) coordinate(ctx context.Context) error {
	defer e.sup.cancelAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case out := <-e.passCh:
			e.applyPass(ctx, out)
		case req := <-e.execCh:
			audit, err := e.execute(ctx, req)
			req.reply <- execResult{audit: audit, err: err}
		case cmd := <-e.cmdCh:
			cmd.reply <- e.handle(ctx, cmd.kind)
		}
	}
}

// applyPass replaces the set with the pass candidates, dropping any key that
// gained an OPEN position since it was scored or was filled without a stored
// position, then reconciles the tasks. Passes are ignored while stopped or
// paused.
func (e *Engine) applyPass(ctx context.Context, out passOutcome) {
	if e.stopped.Load() || e.paused.Load() {
		return
	}

	open, err := e.store.OpenPositions(ctx)
	if err != nil {
		// Without the exclusivity snapshot the old set stays in place.
		slog.Warn("engine: open positions snapshot failed, keeping set", "err", err)
		return
	}
	occupied := make(map[domain.BetKey]struct{}, len(open))
	for _, p := range open {
		occupied[p.Key()] = struct{}{}
	}
	e.recordUnrecorded(ctx, occupied)
	for k := range e.unrecorded {
		occupied[k] = struct{}{}
	}

	next := make(map[domain.BetKey]domain.SafeBet, len(out.candidates))
	for _, b := range out.candidates {
		if _, taken := occupied[b.Key()]; taken {
			continue
		}
		if prev, ok := e.set[b.Key()]; ok {
			b.PromotedAt = prev.PromotedAt
		}
		next[b.Key()] = b
	}

	added, removed := 0, 0
	for k := range next {
		if _, ok := e.set[k]; !ok {
			added++
		}
	}
	for k := range e.set {
		if _, ok := next[k]; !ok {
			removed++
		}
	}

	e.set = next
	e.publish()
	e.reconcile(ctx)

	slog.Info("engine: safe bets replaced",
		"live", len(next),
		"added", added,
		"removed", removed,
		"scored", out.result.Scored,
		"failed", out.result.Failed,
	)
}

// recordUnrecorded retries the position writes that failed after a fill.
// An entry is dropped once its position shows up in occupied or is stored.
func (e *Engine) recordUnrecorded(ctx context.Context, occupied map[domain.BetKey]struct{}) {
	for key, pos := range e.unrecorded {
		if _, ok := occupied[key]; ok {
			delete(e.unrecorded, key)
			continue
		}
		err := e.store.CreatePosition(ctx, pos)
		if err != nil && !errors.Is(err, domain.ErrDuplicatePosition) {
			slog.Error("engine: position still unrecorded", "bet", key.String(), "order", pos.OrderID, "err", err)
			continue
		}
		slog.Info("engine: filled position recorded", "bet", key.String(), "order", pos.OrderID)
		occupied[key] = struct{}{}
		delete(e.unrecorded, key)
	}
}

// reconcile makes the task pool match the set, or empties it while trading
// is blocked.
func (e *Engine) reconcile(ctx context.Context) {
	if e.stopped.Load() || e.paused.Load() || e.registry.AnyActive() {
		e.sup.reconcile(ctx, nil)
		return
	}
	e.sup.reconcile(ctx, e.set)
}
