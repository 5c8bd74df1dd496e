package domain

import (
	"fmt"
	"time"
)

// BetKey identifies a SafeBet: at most one per instrument and side.
type BetKey struct {
	InstrumentID string
	Side         Side
}

func (k BetKey) String() string {
	id := k.InstrumentID
	if len(id) > 12 {
		id = id[:12]
	}
	return fmt.Sprintf("%s/%s", id, k.Side)
}

// SafeBet is an instrument side currently eligible for execution.
type SafeBet struct {
	InstrumentID   string         `json:"instrument_id"`
	Side           Side           `json:"side"`
	TokenID        string         `json:"token_id"`
	Question       string         `json:"question"`
	Price          float64        `json:"price"` // ask at promotion time
	Score          int            `json:"score"`
	ExpectedProfit float64        `json:"expected_profit_pct"`
	TickSize       float64        `json:"tick_size"`
	NegRisk        bool           `json:"neg_risk"`
	PromotedAt     time.Time      `json:"promoted_at"`
	LastChecked    time.Time      `json:"last_checked"`
	ScoreSnapshot  CertaintyScore `json:"-"`
}

// Key returns the bet's identity.
func (b SafeBet) Key() BetKey {
	return BetKey{InstrumentID: b.InstrumentID, Side: b.Side}
}

// WithinSlippage reports whether ask is no worse than the promoted price
// plus the relative tolerance.
func (b SafeBet) WithinSlippage(ask, tolerance float64) bool {
	if ask <= 0 {
		return false
	}
	return ask <= b.Price*(1+tolerance)
}

// NewSafeBet builds the bet for side from a qualifying score.
func NewSafeBet(inst Instrument, side Side, cs CertaintyScore) SafeBet {
	return SafeBet{
		InstrumentID:   inst.ID,
		Side:           side,
		TokenID:        inst.TokenID(side),
		Question:       inst.Question,
		Price:          cs.Price,
		Score:          cs.Aggregate,
		ExpectedProfit: cs.ExpectedProfitPct,
		TickSize:       inst.TickSize,
		NegRisk:        inst.NegRisk,
		PromotedAt:     cs.ScoredAt,
		ScoreSnapshot:  cs,
	}
}
