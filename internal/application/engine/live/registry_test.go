package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *recordingAlerter) {
	t.Helper()
	alerter := &recordingAlerter{}
	r := NewRegistry(newTestStore(t), alerter, NewMetrics())
	r.now = func() time.Time { return testNow }
	return r, alerter
}

func TestRegistry_TransitionsAlertOnce(t *testing.T) {
	r, alerter := newTestRegistry(t)
	ctx := context.Background()

	tripped := true
	r.Register(domain.BreakerLossLimit, func(context.Context) (bool, string, error) {
		return tripped, "down $60", nil
	})

	active := r.Evaluate(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, domain.BreakerLossLimit, active[0].Name)
	assert.Equal(t, "down $60", active[0].Reason)
	require.NotNil(t, active[0].TriggeredAt)

	r.Evaluate(ctx)
	assert.Equal(t, []string{"breaker tripped"}, alerter.titles())

	tripped = false
	assert.Empty(t, r.Evaluate(ctx))
	assert.Equal(t, []string{"breaker tripped", "breaker cleared"}, alerter.titles())
	assert.False(t, r.AnyActive())
}

func TestRegistry_AutomaticGateClearsWithoutOperator(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	stale := true
	r.Register(domain.BreakerDataFreshness, func(context.Context) (bool, string, error) {
		return stale, "nyc reading is 2h old", nil
	})
	require.Len(t, r.Evaluate(ctx), 1)
	require.True(t, r.AnyActive())

	stale = false
	assert.Empty(t, r.Evaluate(ctx))
	assert.False(t, r.AnyActive())

	saved, err := r.store.LoadBreakers(ctx)
	require.NoError(t, err)
	for _, b := range saved {
		if b.Name == domain.BreakerDataFreshness {
			assert.False(t, b.Active)
		}
	}
}

func TestRegistry_EvaluatorErrorFailsClosed(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Register(domain.BreakerAPIHealth, func(context.Context) (bool, string, error) {
		return false, "", errors.New("timeout")
	})

	active := r.Evaluate(context.Background())
	require.Len(t, active, 1)
	assert.Contains(t, active[0].Reason, "timeout")
}

func TestRegistry_ManualOnlyClearsExplicitly(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	r.Register(domain.BreakerManual, func(context.Context) (bool, string, error) {
		return false, "", nil
	})
	r.Trip(ctx, domain.BreakerManual, "operator")

	assert.Len(t, r.Evaluate(ctx), 1)
	r.Clear(ctx, domain.BreakerManual)
	assert.Empty(t, r.Evaluate(ctx))
}

func TestRegistry_RestoreSurvivesRestart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := NewRegistry(store, nil, nil)
	first.Trip(ctx, domain.BreakerManual, "emergency stop")

	second := NewRegistry(store, nil, nil)
	assert.False(t, second.AnyActive())
	require.NoError(t, second.Restore(ctx))
	active := second.Active()
	require.Len(t, active, 1)
	assert.Equal(t, domain.BreakerManual, active[0].Name)
	assert.Equal(t, "emergency stop", active[0].Reason)
}

func TestRegistry_SnapshotOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	snap := r.Snapshot()
	require.Len(t, snap, len(domain.BreakerNames))
	for i, b := range snap {
		assert.Equal(t, domain.BreakerNames[i], b.Name)
		assert.False(t, b.Active)
	}
}

func openPosition(id string, at time.Time) domain.Position {
	return domain.Position{
		ID: id, InstrumentID: id, Side: domain.SideYes, Size: 10, Cost: 9,
		Status: domain.PositionOpen, OpenedAt: at.Add(-time.Hour),
	}
}

func TestStandardEvaluators(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Two wins of $1 and three losses of $9: PnL -25, win rate 40%.
	for i, pnl := range []float64{1, 1, -9, -9, -9} {
		id := string(rune('a' + i))
		at := testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreatePosition(ctx, openPosition(id, at)))
		require.NoError(t, store.ResolvePosition(ctx, id, pnl, at))
	}

	t.Run("loss limit", func(t *testing.T) {
		tripped, reason, err := LossLimit(store, 20)(ctx)
		require.NoError(t, err)
		assert.True(t, tripped)
		assert.Contains(t, reason, "-25.00")

		tripped, _, err = LossLimit(store, 30)(ctx)
		require.NoError(t, err)
		assert.False(t, tripped)

		tripped, _, _ = LossLimit(store, 0)(ctx)
		assert.False(t, tripped)
	})

	t.Run("win rate", func(t *testing.T) {
		tripped, _, err := WinRate(store, 10, 5, 0.5)(ctx)
		require.NoError(t, err)
		assert.True(t, tripped)

		tripped, _, err = WinRate(store, 10, 6, 0.5)(ctx)
		require.NoError(t, err)
		assert.False(t, tripped, "not enough samples")

		// The two most recent are losses.
		tripped, _, err = WinRate(store, 2, 2, 0.5)(ctx)
		require.NoError(t, err)
		assert.True(t, tripped)
	})

	t.Run("data freshness", func(t *testing.T) {
		require.NoError(t, store.SaveReading(ctx, domain.Reading{
			Location: "new york", ObservedAt: testNow.Add(-10 * time.Minute), Valid: true,
		}))
		now := func() time.Time { return testNow }

		tripped, _, err := DataFreshness(store, []string{"new york"}, 30*time.Minute, now)(ctx)
		require.NoError(t, err)
		assert.False(t, tripped)

		tripped, reason, err := DataFreshness(store, []string{"new york", "chicago"}, 30*time.Minute, now)(ctx)
		require.NoError(t, err)
		assert.True(t, tripped)
		assert.Contains(t, reason, "chicago")

		tripped, _, err = DataFreshness(store, []string{"new york"}, 5*time.Minute, now)(ctx)
		require.NoError(t, err)
		assert.True(t, tripped)
	})

	t.Run("api health", func(t *testing.T) {
		tripped, _, err := APIHealth(&fakeQuotes{})(ctx)
		require.NoError(t, err)
		assert.False(t, tripped)

		tripped, _, err = APIHealth(&fakeQuotes{pingErr: errors.New("503")})(ctx)
		require.NoError(t, err)
		assert.True(t, tripped)
	})

	t.Run("balance floor", func(t *testing.T) {
		tripped, _, err := BalanceFloor(&fakeVenue{balance: 40}, 50)(ctx)
		require.NoError(t, err)
		assert.True(t, tripped)

		tripped, _, err = BalanceFloor(&fakeVenue{balance: 60}, 50)(ctx)
		require.NoError(t, err)
		assert.False(t, tripped)
	})
}
