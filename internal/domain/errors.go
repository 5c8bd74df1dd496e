package domain

import "errors"

var (
	// ErrBetNotLive is returned when an execution targets a SafeBet that is
	// no longer in the live set.
	ErrBetNotLive = errors.New("safe bet is not live")
	// ErrDuplicatePosition is returned when an OPEN position already exists
	// for the instrument and side.
	ErrDuplicatePosition = errors.New("open position already exists")
	// ErrVetoed is returned when an active breaker blocks an execution.
	ErrVetoed = errors.New("execution vetoed by breaker")
	// ErrEngineStopped is returned for requests made after stop.
	ErrEngineStopped = errors.New("engine stopped")
	// ErrOutsideSlippage is returned when the quote handed to an execution
	// is worse than the live bet's price allows.
	ErrOutsideSlippage = errors.New("quote outside slippage")
	ErrInvalidOrder    = errors.New("invalid order")
	ErrStaleReading    = errors.New("stale reading")
	ErrNotFound        = errors.New("not found")
)
