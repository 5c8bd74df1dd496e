package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()

	assert.Equal(t, defaultPromotionInterval, cfg.PromotionInterval)
	assert.Equal(t, defaultPollMin, cfg.PollMin)
	assert.Equal(t, defaultPollMax, cfg.PollMax)
	assert.Equal(t, AllocEqualSplit, cfg.Allocation)
	assert.Equal(t, domain.DefaultScoreParams(), cfg.Score)
	assert.Equal(t, "@every 6h", cfg.SweepSpec)

	cfg = Config{PollMin: 10 * time.Second, PollMax: time.Second}
	cfg.setDefaults()
	assert.Equal(t, 10*time.Second, cfg.PollMax)
}

func TestJitterWithinBand(t *testing.T) {
	e := &Engine{cfg: Config{PollMin: 2 * time.Second, PollMax: 5 * time.Second}}
	for range 200 {
		d := e.jitter()
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
	e.cfg.PollMax = e.cfg.PollMin
	assert.Equal(t, 2*time.Second, e.jitter())
}

func TestApplyPass_ReplacesSetAndSkipsOpenPositions(t *testing.T) {
	te := newTestEngine(t, Config{})
	ctx := context.Background()

	kept := testBet("kept", domain.SideYes, 0.92)
	kept.PromotedAt = testNow.Add(-time.Hour)
	dropped := testBet("dropped", domain.SideNo, 0.95)
	te.seed(kept, dropped)

	require.NoError(t, te.store.CreatePosition(ctx, domain.Position{
		ID: "p1", InstrumentID: "taken", Side: domain.SideYes, Cost: 1, Size: 1,
		Status: domain.PositionOpen, OpenedAt: testNow,
	}))

	fresh := testBet("kept", domain.SideYes, 0.93)
	fresh.PromotedAt = testNow
	te.applyPass(ctx, passOutcome{candidates: []domain.SafeBet{
		fresh,
		testBet("taken", domain.SideYes, 0.9),
		testBet("new", domain.SideNo, 0.9),
	}})
	t.Cleanup(te.sup.cancelAll)

	bets := te.SafeBets()
	require.Len(t, bets, 2)
	keys := map[domain.BetKey]domain.SafeBet{}
	for _, b := range bets {
		keys[b.Key()] = b
	}
	assert.Contains(t, keys, kept.Key())
	assert.Contains(t, keys, domain.BetKey{InstrumentID: "new", Side: domain.SideNo})
	assert.NotContains(t, keys, dropped.Key())
	assert.NotContains(t, keys, domain.BetKey{InstrumentID: "taken", Side: domain.SideYes})

	// Re-promotion keeps the original promotion time but takes the new price.
	assert.Equal(t, kept.PromotedAt, keys[kept.Key()].PromotedAt)
	assert.InDelta(t, 0.93, keys[kept.Key()].Price, 1e-9)

	assert.Equal(t, 2, te.sup.size())
}

func TestReconcile_NoTasksWhileBreakerActive(t *testing.T) {
	te := newTestEngine(t, Config{})
	ctx := context.Background()
	te.seed(testBet("a", domain.SideYes, 0.92))
	t.Cleanup(te.sup.cancelAll)

	te.registry.Trip(ctx, domain.BreakerAPIHealth, "down")
	te.reconcile(ctx)
	assert.Equal(t, 0, te.sup.size())

	te.registry.Clear(ctx, domain.BreakerAPIHealth)
	te.reconcile(ctx)
	assert.Equal(t, 1, te.sup.size())
}

func TestWatch_ExecutesFavorableQuote(t *testing.T) {
	te := newTestEngine(t, Config{PollMin: time.Millisecond, PollMax: 2 * time.Millisecond})
	bet := testBet("a", domain.SideYes, 0.92)
	te.seed(bet)
	ctx := te.startCoordinator(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		te.watch(ctx, bet.Key())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not exit after executing")
	}
	assert.Len(t, te.venue.placed(), 1)
	assert.Empty(t, te.SafeBets())
}

func TestWatch_IgnoresQuoteOutsideSlippage(t *testing.T) {
	te := newTestEngine(t, Config{PollMin: time.Millisecond, PollMax: 2 * time.Millisecond, SlippageTolerance: 0.01})
	te.quotes.quote = domain.Quote{Bid: 0.94, Ask: 0.96, AskSize: 100}
	bet := testBet("a", domain.SideYes, 0.92)
	te.seed(bet)
	ctx := te.startCoordinator(t)

	wctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	te.watch(wctx, bet.Key())

	assert.Empty(t, te.venue.placed())
	assert.Len(t, te.SafeBets(), 1)
}

func TestWatch_FollowsRepromotedPrice(t *testing.T) {
	te := newTestEngine(t, Config{PollMin: time.Millisecond, PollMax: 2 * time.Millisecond, SlippageTolerance: 0.01})
	ctx := te.startCoordinator(t)

	// 0.92 is outside 1% of 0.90.
	te.applyAndSync(t, ctx, testBet("a", domain.SideYes, 0.90))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, te.venue.placed())

	// Same key at a new price keeps its task, which picks the price up.
	te.applyAndSync(t, ctx, testBet("a", domain.SideYes, 0.92))
	require.Eventually(t, func() bool { return len(te.venue.placed()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatch_ExitsWhenBreakerActive(t *testing.T) {
	te := newTestEngine(t, Config{PollMin: time.Millisecond, PollMax: time.Millisecond})
	bet := testBet("a", domain.SideYes, 0.92)
	te.seed(bet)
	te.registry.Trip(context.Background(), domain.BreakerManual, "halt")

	done := make(chan struct{})
	go func() {
		defer close(done)
		te.watch(context.Background(), bet.Key())
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch kept running under an active breaker")
	}
	assert.Empty(t, te.venue.placed())
}
