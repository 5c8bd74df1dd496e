package domain

import "time"

// AuditOutcome is the terminal state of one execution attempt.
type AuditOutcome string

const (
	AuditSuccess  AuditOutcome = "SUCCESS"
	AuditVeto     AuditOutcome = "VETO"     // a breaker blocked the order
	AuditFailure  AuditOutcome = "FAILURE"  // normalization or venue error
	AuditRejected AuditOutcome = "REJECTED" // bet no longer live
)

// ExecutionAudit records every attempt the execution engine makes.
type ExecutionAudit struct {
	ID           string
	InstrumentID string
	Side         Side
	Outcome      AuditOutcome
	Reason       string
	Score        int
	QuotePrice   float64
	Capital      float64
	LiveBets     int
	Allocation   float64
	Size         float64
	Price        float64
	Cost         float64
	OrderID      string
	At           time.Time
}

// Alert is a notable event for the operator.
type Alert struct {
	Level   string // info | warn | error
	Title   string
	Message string
	At      time.Time
}
