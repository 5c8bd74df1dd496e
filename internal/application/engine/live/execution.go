package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/wxbot/internal/application/engine"
	"github.com/alejandrodnm/wxbot/internal/domain"
)

// execute runs one execution attempt on the coordinator goroutine. Every
// outcome is audited. On success the bet leaves the set and its task is
// cancelled; on failure the bet stays live for the next favorable tick.
func (e *Engine) execute(ctx context.Context, req execRequest) (domain.ExecutionAudit, error) {
	audit := domain.ExecutionAudit{
		ID:           uuid.New().String(),
		InstrumentID: req.key.InstrumentID,
		Side:         req.key.Side,
		QuotePrice:   req.quote.Ask,
		At:           e.now(),
	}

	if e.stopped.Load() {
		return e.finish(ctx, audit, domain.AuditRejected, "engine stopped", domain.ErrEngineStopped)
	}
	bet, ok := e.set[req.key]
	if !ok {
		return e.finish(ctx, audit, domain.AuditRejected, "bet no longer live", domain.ErrBetNotLive)
	}
	audit.Score = bet.Score

	// The task may have quoted against an older price than the current entry.
	if !bet.WithinSlippage(req.quote.Ask, e.cfg.SlippageTolerance) {
		return e.finish(ctx, audit, domain.AuditRejected,
			fmt.Sprintf("ask %.4f outside slippage of %.4f", req.quote.Ask, bet.Price), domain.ErrOutsideSlippage)
	}

	if e.paused.Load() {
		return e.finish(ctx, audit, domain.AuditVeto, "engine paused", domain.ErrVetoed)
	}
	if active := e.registry.Evaluate(ctx); len(active) > 0 {
		e.reconcile(ctx)
		return e.finish(ctx, audit, domain.AuditVeto, vetoReason(active), domain.ErrVetoed)
	}

	balance, err := e.venue.GetBalance(ctx)
	if err != nil {
		return e.finish(ctx, audit, domain.AuditFailure, "balance: "+err.Error(), err)
	}
	capital := balance
	if e.cfg.MaxCapital > 0 {
		capital = min(capital, e.cfg.MaxCapital)
	}
	audit.Capital = capital
	audit.LiveBets = len(e.set)
	audit.Allocation = e.allocate(capital, len(e.set))

	size := 0.0
	if req.quote.Ask > 0 {
		size = audit.Allocation / req.quote.Ask
	}
	if req.quote.AskSize > 0 {
		size = min(size, req.quote.AskSize)
	}

	order, err := domain.NormalizeOrder(
		decimal.NewFromFloat(size),
		decimal.NewFromFloat(req.quote.Ask),
		domain.PrecisionForTick(bet.TickSize, e.cfg.SizeDecimals, e.cfg.CostDecimals),
	)
	if err != nil {
		return e.finish(ctx, audit, domain.AuditFailure, "normalize: "+err.Error(), err)
	}
	audit.Size = order.Size().InexactFloat64()
	audit.Price = order.Price().InexactFloat64()
	audit.Cost = order.Cost().InexactFloat64()

	placed, err := e.venue.PlaceOrder(ctx, domain.PlaceOrderRequest{
		InstrumentID: bet.InstrumentID,
		TokenID:      bet.TokenID,
		Side:         bet.Side,
		Order:        order,
		TickSize:     bet.TickSize,
		NegRisk:      bet.NegRisk,
	})
	if err != nil {
		return e.finish(ctx, audit, domain.AuditFailure, "place order: "+err.Error(), err)
	}
	audit.OrderID = placed.OrderID

	// The order filled: from here on the bet must leave the set even if
	// recording the position fails.
	delete(e.set, req.key)
	e.publish()
	e.sup.cancel(req.key)

	pos := domain.Position{
		ID:           uuid.New().String(),
		InstrumentID: bet.InstrumentID,
		Side:         bet.Side,
		TokenID:      bet.TokenID,
		OrderID:      placed.OrderID,
		EntryPrice:   audit.Price,
		Size:         audit.Size,
		Cost:         audit.Cost,
		Status:       domain.PositionOpen,
		OpenedAt:     audit.At,
		Question:     bet.Question,
	}
	if placed.TakenAmount > 0 {
		pos.Size = placed.TakenAmount
	}
	if placed.MadeAmount > 0 {
		pos.Cost = placed.MadeAmount
	}
	if err := e.store.CreatePosition(ctx, pos); err != nil {
		e.unrecorded[req.key] = pos
		slog.Error("engine: INVARIANT VIOLATION filled order without position",
			"bet", req.key.String(), "order", placed.OrderID, "err", err)
		return e.finish(ctx, audit, domain.AuditFailure,
			fmt.Sprintf("order %s filled but position not recorded: %v", placed.OrderID, err), err)
	}

	slog.Info("engine: executed",
		"bet", req.key.String(),
		"order", placed.OrderID,
		"detail", order.String(),
		"capital", fmt.Sprintf("$%.2f", capital),
		"live_bets", audit.LiveBets,
	)
	e.notify(ctx, domain.Alert{
		Level:   "info",
		Title:   "bet executed",
		Message: fmt.Sprintf("%s %s %s", bet.Side, order.String(), engine.TruncateStr(bet.Question, 60)),
		At:      audit.At,
	})
	return e.finish(ctx, audit, domain.AuditSuccess, "", nil)
}

// allocate returns the capital one execution may spend.
func (e *Engine) allocate(capital float64, liveBets int) float64 {
	if capital <= 0 {
		return 0
	}
	switch e.cfg.Allocation {
	case AllocFixedFraction:
		return capital * min(max(e.cfg.FixedFraction, 0), 1)
	default:
		return capital / float64(max(liveBets, 1))
	}
}

// finish records the audit entry and metrics and returns err.
func (e *Engine) finish(ctx context.Context, a domain.ExecutionAudit, outcome domain.AuditOutcome, reason string, err error) (domain.ExecutionAudit, error) {
	a.Outcome = outcome
	a.Reason = reason
	if aerr := e.store.AppendAudit(ctx, a); aerr != nil {
		slog.Error("engine: audit append failed", "bet", a.InstrumentID, "outcome", outcome, "err", aerr)
	}
	e.metrics.observeExecution(outcome)

	switch outcome {
	case domain.AuditFailure:
		slog.Warn("engine: execution failed", "instrument", a.InstrumentID, "side", a.Side, "reason", reason)
		e.notify(ctx, domain.Alert{Level: "error", Title: "execution failed", Message: reason, At: a.At})
	case domain.AuditVeto, domain.AuditRejected:
		slog.Debug("engine: execution not attempted", "instrument", a.InstrumentID, "outcome", outcome, "reason", reason)
	}

	if err != nil {
		return a, fmt.Errorf("execute %s/%s: %w", engine.TruncateStr(a.InstrumentID, 12), a.Side, err)
	}
	return a, nil
}

func (e *Engine) notify(ctx context.Context, a domain.Alert) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Alert(ctx, a); err != nil {
		slog.Debug("engine: alert failed", "err", err)
	}
}

func vetoReason(active []domain.Breaker) string {
	names := make([]string, len(active))
	for i, b := range active {
		names[i] = string(b.Name)
	}
	return "breaker active: " + strings.Join(names, ",")
}
