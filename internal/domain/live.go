package domain

import (
	"fmt"
	"time"
)

// PositionStatus represents the lifecycle of a filled bet.
type PositionStatus string

const (
	PositionOpen     PositionStatus = "OPEN"
	PositionResolved PositionStatus = "RESOLVED"
)

// Position is the record of a filled order on one side of an instrument.
// At most one OPEN position may exist per (instrument, side).
type Position struct {
	ID           string // UUID (local tracking)
	InstrumentID string
	Side         Side
	TokenID      string
	OrderID      string // venue order hash
	EntryPrice   float64
	Size         float64 // shares
	Cost         float64 // USDC
	Status       PositionStatus
	RealizedPnL  *float64
	OpenedAt     time.Time
	ResolvedAt   *time.Time
	Question     string
}

// Key returns the (instrument, side) the position occupies.
func (p Position) Key() BetKey {
	return BetKey{InstrumentID: p.InstrumentID, Side: p.Side}
}

// SettlePnL returns the realized PnL once the instrument resolved to winner.
// A winning share pays 1 USDC.
func (p Position) SettlePnL(winner Side) float64 {
	if p.Side == winner {
		return p.Size - p.Cost
	}
	return -p.Cost
}

// BreakerName identifies a risk gate.
type BreakerName string

const (
	BreakerLossLimit     BreakerName = "loss_limit"
	BreakerWinRate       BreakerName = "win_rate"
	BreakerDataFreshness BreakerName = "data_freshness"
	BreakerAPIHealth     BreakerName = "api_health"
	BreakerBalanceFloor  BreakerName = "balance_floor"
	BreakerManual        BreakerName = "manual"
)

// BreakerNames lists every gate in evaluation order.
var BreakerNames = []BreakerName{
	BreakerLossLimit,
	BreakerWinRate,
	BreakerDataFreshness,
	BreakerAPIHealth,
	BreakerBalanceFloor,
	BreakerManual,
}

// AutoClears reports whether the gate deactivates on its own once the
// condition clears. Only the manual gate needs an operator.
func (n BreakerName) AutoClears() bool {
	return n != BreakerManual
}

// Breaker is the persisted state of one risk gate.
type Breaker struct {
	Name        BreakerName `json:"name"`
	Active      bool        `json:"active"`
	TriggeredAt *time.Time  `json:"triggered_at,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (b Breaker) String() string {
	if !b.Active {
		return fmt.Sprintf("%s: ok", b.Name)
	}
	return fmt.Sprintf("%s: ACTIVE (%s)", b.Name, b.Reason)
}

// PlaceOrderRequest is sent to the order venue. Amounts come only from a
// NormalizedOrder.
type PlaceOrderRequest struct {
	InstrumentID string
	TokenID      string
	Side         Side
	Order        NormalizedOrder
	TickSize     float64
	NegRisk      bool
}

// PlacedOrder is the venue's response after accepting an order.
type PlacedOrder struct {
	OrderID     string
	Status      string
	TakenAmount float64 // immediately filled (shares)
	MadeAmount  float64 // USDC spent
}

// EngineStatus is the operator view of the live engine.
type EngineStatus struct {
	Paused   bool      `json:"paused"`
	Stopped  bool      `json:"stopped"`
	SafeBets []SafeBet `json:"safe_bets"`
	Breakers []Breaker `json:"breakers"`
}
