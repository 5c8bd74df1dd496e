package ports

import (
	"context"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// OrderVenue places real orders. It only accepts normalized amounts.
type OrderVenue interface {
	// PlaceOrder signs and submits a BUY order built from a NormalizedOrder.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// GetBalance returns the available USDC balance.
	GetBalance(ctx context.Context) (float64, error)
}
