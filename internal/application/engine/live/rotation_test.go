package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

func TestSweeper_DeactivatesExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	today := domain.StartOfDay(testNow)

	require.NoError(t, store.UpsertInstruments(ctx, []domain.Instrument{
		{ID: "old", Location: "new york", Threshold: 80, SettlementDate: today.AddDate(0, 0, -1),
			YesTokenID: "y1", NoTokenID: "n1", Active: true},
		{ID: "today", Location: "new york", Threshold: 82, SettlementDate: today,
			YesTokenID: "y2", NoTokenID: "n2", Active: true},
	}))

	s := NewSweeper(store, "@every 6h", func() time.Time { return testNow })
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	active, err := store.ActiveInstruments(ctx, today.AddDate(0, 0, -7), today)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "today", active[0].ID)

	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_StartRunsImmediately(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	today := domain.StartOfDay(testNow)
	require.NoError(t, store.UpsertInstruments(ctx, []domain.Instrument{
		{ID: "old", Location: "chicago", Threshold: 70, SettlementDate: today.AddDate(0, 0, -3),
			YesTokenID: "y", NoTokenID: "n", Active: true},
	}))

	s := NewSweeper(store, "@every 6h", func() time.Time { return testNow })
	require.NoError(t, s.Start(ctx))
	s.Stop()

	active, err := store.ActiveInstruments(ctx, today.AddDate(0, 0, -7), today)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSweeper_BadSpec(t *testing.T) {
	s := NewSweeper(newTestStore(t), "every now and then", nil)
	assert.Error(t, s.Start(context.Background()))
}
