// Package paper implementa un venue simulado para dry-run: las órdenes se
// llenan completas al precio pedido contra un balance en memoria.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// Venue implementa ports.OrderVenue sin tocar el venue real.
type Venue struct {
	mu      sync.Mutex
	balance float64
	fills   []domain.PlaceOrderRequest
}

// NewVenue crea un venue simulado con el capital inicial dado.
func NewVenue(initialBalance float64) *Venue {
	return &Venue{balance: initialBalance}
}

// PlaceOrder llena la orden completa si hay balance suficiente.
func (v *Venue) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if req.Order.IsZero() {
		return domain.PlacedOrder{}, fmt.Errorf("paper: %w", domain.ErrInvalidOrder)
	}
	cost := req.Order.Cost().InexactFloat64()
	size := req.Order.Size().InexactFloat64()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cost > v.balance {
		return domain.PlacedOrder{}, fmt.Errorf("paper: insufficient balance $%.2f for $%.2f", v.balance, cost)
	}
	v.balance -= cost
	v.fills = append(v.fills, req)

	id := "paper-" + uuid.New().String()
	slog.Info("paper: order filled",
		"order", id,
		"token", req.TokenID,
		"side", req.Side,
		"order_detail", req.Order.String(),
		"balance", fmt.Sprintf("$%.2f", v.balance),
	)
	return domain.PlacedOrder{
		OrderID:     id,
		Status:      "matched",
		TakenAmount: size,
		MadeAmount:  cost,
	}, nil
}

// GetBalance devuelve el balance simulado.
func (v *Venue) GetBalance(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

// Fills devuelve una copia de las órdenes llenadas.
func (v *Venue) Fills() []domain.PlaceOrderRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.PlaceOrderRequest, len(v.fills))
	copy(out, v.fills)
	return out
}
