package paper_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/wxbot/internal/adapters/paper"
	"github.com/alejandrodnm/wxbot/internal/domain"
)

func order(t *testing.T, size, price string) domain.NormalizedOrder {
	t.Helper()
	o, err := domain.NormalizeOrder(decimal.RequireFromString(size), decimal.RequireFromString(price),
		domain.PrecisionForTick(0.01, 2, 2))
	require.NoError(t, err)
	return o
}

func TestVenue_FillsAndDebits(t *testing.T) {
	ctx := context.Background()
	v := paper.NewVenue(100)

	placed, err := v.PlaceOrder(ctx, domain.PlaceOrderRequest{TokenID: "tok", Side: domain.SideYes, Order: order(t, "50", "0.90")})
	require.NoError(t, err)
	assert.NotEmpty(t, placed.OrderID)
	assert.InDelta(t, 50, placed.TakenAmount, 1e-9)
	assert.InDelta(t, 45, placed.MadeAmount, 1e-9)

	bal, err := v.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 55, bal, 1e-9)
	assert.Len(t, v.Fills(), 1)
}

func TestVenue_InsufficientBalance(t *testing.T) {
	v := paper.NewVenue(10)
	_, err := v.PlaceOrder(context.Background(), domain.PlaceOrderRequest{Order: order(t, "50", "0.90")})
	assert.Error(t, err)

	bal, _ := v.GetBalance(context.Background())
	assert.InDelta(t, 10, bal, 1e-9)
	assert.Empty(t, v.Fills())
}

func TestVenue_RejectsUnnormalized(t *testing.T) {
	_, err := paper.NewVenue(10).PlaceOrder(context.Background(), domain.PlaceOrderRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}
