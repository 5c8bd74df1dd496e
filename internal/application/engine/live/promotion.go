package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// ItemOutcome is what a promotion pass did with one instrument side.
type ItemOutcome string

const (
	ItemScored   ItemOutcome = "scored"   // scored, not promoted
	ItemPromoted ItemOutcome = "promoted" // qualified as a SafeBet
	ItemSkipped  ItemOutcome = "skipped"  // stale reading, no quote or OPEN position
	ItemFailed   ItemOutcome = "failed"   // storage or lookup error
)

// ItemResult is the per-instrument result of a pass.
type ItemResult struct {
	InstrumentID string
	Outcome      ItemOutcome
	Side         domain.Side
	Score        int
	Err          error
}

// PassResult aggregates one promotion pass.
type PassResult struct {
	Items    []ItemResult
	Scored   int
	Promoted int
	Skipped  int
	Failed   int
	Duration time.Duration
}

func (r *PassResult) add(it ItemResult) {
	r.Items = append(r.Items, it)
	switch it.Outcome {
	case ItemScored:
		r.Scored++
	case ItemPromoted:
		r.Promoted++
	case ItemSkipped:
		r.Skipped++
	case ItemFailed:
		r.Failed++
	}
}

type passOutcome struct {
	candidates []domain.SafeBet
	result     PassResult
}

// scoreLoop runs a promotion pass at start and every PromotionInterval and
// hands the candidates to the coordinator.
func (e *Engine) scoreLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PromotionInterval)
	defer ticker.Stop()

	for {
		e.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if e.stopped.Load() || e.paused.Load() {
		slog.Debug("engine: stopped or paused, skipping promotion pass")
		return
	}

	// Breakers are re-evaluated every pass so automatic gates clear on their
	// own and tasks get respawned on the next reconcile.
	e.registry.Evaluate(ctx)

	out, err := e.promote(ctx)
	if err != nil {
		slog.Warn("engine: promotion pass failed", "err", err)
		return
	}
	e.metrics.observePass(out.result)

	select {
	case e.passCh <- out:
	case <-ctx.Done():
	}
}

// promote refreshes instruments, readings and quotes as due and scores every
// active instrument settling within the horizon.
func (e *Engine) promote(ctx context.Context) (passOutcome, error) {
	start := e.now()
	var out passOutcome

	if start.Sub(e.lastInstrumentRefresh) >= e.cfg.InstrumentRefresh {
		if err := e.refreshInstruments(ctx); err != nil {
			slog.Warn("engine: instrument refresh failed", "err", err)
		} else {
			e.lastInstrumentRefresh = start
		}
	}
	if start.Sub(e.lastReadingRefresh) >= e.cfg.ReadingRefresh {
		e.refreshReadings(ctx)
		e.lastReadingRefresh = start
	}

	today := domain.StartOfDay(start)
	insts, err := e.store.ActiveInstruments(ctx, today, today.AddDate(0, 0, e.cfg.HorizonDays))
	if err != nil {
		return out, fmt.Errorf("live.promote: active instruments: %w", err)
	}

	insts = e.refreshQuotes(ctx, insts)

	readings := make(map[string]domain.Reading)
	for _, inst := range insts {
		if _, ok := readings[inst.Location]; ok {
			continue
		}
		r, err := e.store.LatestReading(ctx, inst.Location)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Debug("engine: reading lookup failed", "location", inst.Location, "err", err)
		}
		// A missing reading is the zero Reading, which scores as stale.
		readings[inst.Location] = r
	}

	for _, inst := range insts {
		bets, item := e.scoreInstrument(ctx, inst, readings[inst.Location], start)
		out.result.add(item)
		out.candidates = append(out.candidates, bets...)
	}

	out.result.Duration = e.now().Sub(start)
	slog.Debug("engine: promotion pass",
		"instruments", len(insts),
		"promoted", out.result.Promoted,
		"skipped", out.result.Skipped,
		"failed", out.result.Failed,
		"took", out.result.Duration,
	)
	return out, nil
}

// scoreInstrument scores one instrument, records the score and returns the
// side that qualifies, if any.
func (e *Engine) scoreInstrument(ctx context.Context, inst domain.Instrument, r domain.Reading, now time.Time) ([]domain.SafeBet, ItemResult) {
	item := ItemResult{InstrumentID: inst.ID}

	cs := domain.ScoreCertainty(domain.ScoreInput{Instrument: inst, Reading: r, Now: now}, e.cfg.Score)
	id, err := e.store.SaveScore(ctx, cs)
	if err != nil {
		item.Outcome, item.Err = ItemFailed, err
		return nil, item
	}
	cs.ID = id
	item.Score = cs.Aggregate

	if cs.Stale {
		item.Outcome, item.Err = ItemSkipped, domain.ErrStaleReading
		return nil, item
	}

	side, ok := cs.Recommendation.Side()
	if !ok {
		item.Outcome = ItemScored
		return nil, item
	}
	item.Side = side

	open, err := e.store.OpenPositionsFor(ctx, inst.ID)
	if err != nil {
		item.Outcome, item.Err = ItemFailed, err
		return nil, item
	}
	for _, p := range open {
		if p.Side == side {
			item.Outcome = ItemSkipped
			return nil, item
		}
	}

	bet := domain.NewSafeBet(inst, side, cs)
	bet.LastChecked = now
	item.Outcome = ItemPromoted
	return []domain.SafeBet{bet}, item
}

// refreshInstruments upserts the venue's weather markets and settles OPEN
// positions of instruments that resolved.
func (e *Engine) refreshInstruments(ctx context.Context) error {
	insts, err := e.markets.FetchWeatherMarkets(ctx)
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}
	if err := e.store.UpsertInstruments(ctx, insts); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	resolved := 0
	for _, inst := range insts {
		if !inst.Resolved || !inst.Winner.Valid() {
			continue
		}
		if err := e.store.MarkResolved(ctx, inst.ID, inst.Winner); err != nil {
			slog.Warn("engine: mark resolved failed", "instrument", inst.ID, "err", err)
			continue
		}
		n, err := e.settlePositions(ctx, inst)
		if err != nil {
			slog.Warn("engine: settle failed", "instrument", inst.ID, "err", err)
		}
		resolved += n
	}

	slog.Info("engine: instruments refreshed", "count", len(insts), "settled_positions", resolved)
	return nil
}

// settlePositions resolves the OPEN positions of a resolved instrument.
func (e *Engine) settlePositions(ctx context.Context, inst domain.Instrument) (int, error) {
	open, err := e.store.OpenPositionsFor(ctx, inst.ID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range open {
		pnl := p.SettlePnL(inst.Winner)
		if err := e.store.ResolvePosition(ctx, p.ID, pnl, e.now()); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
		slog.Info("engine: position settled",
			"instrument", inst.String(),
			"side", p.Side,
			"winner", inst.Winner,
			"pnl", fmt.Sprintf("$%.2f", pnl),
		)
	}
	return n, nil
}

// refreshReadings fetches one reading per configured location. Failures are
// transient: the previous reading stays and eventually goes stale.
func (e *Engine) refreshReadings(ctx context.Context) {
	ok := 0
	for _, loc := range e.cfg.Locations {
		r, err := e.weather.FetchReading(ctx, loc)
		if err != nil {
			slog.Warn("engine: reading fetch failed", "location", loc.Name, "err", err)
			continue
		}
		if err := e.store.SaveReading(ctx, r); err != nil {
			slog.Warn("engine: reading save failed", "location", loc.Name, "err", err)
			continue
		}
		ok++
	}
	slog.Debug("engine: readings refreshed", "ok", ok, "locations", len(e.cfg.Locations))
}

// refreshQuotes fetches both books of every instrument in one batched call
// and persists the best quotes. Instruments keep their stored quotes when the
// fetch fails.
func (e *Engine) refreshQuotes(ctx context.Context, insts []domain.Instrument) []domain.Instrument {
	if len(insts) == 0 {
		return insts
	}
	tokens := make([]string, 0, 2*len(insts))
	for _, inst := range insts {
		tokens = append(tokens, inst.YesTokenID, inst.NoTokenID)
	}

	books, err := e.books.FetchOrderBooks(ctx, tokens)
	if err != nil {
		slog.Warn("engine: order books fetch failed, using stored quotes", "err", err)
		return insts
	}

	at := e.now()
	for i := range insts {
		inst := &insts[i]
		yb, yok := books[inst.YesTokenID]
		nb, nok := books[inst.NoTokenID]
		if !yok && !nok {
			continue
		}
		if yok {
			inst.SetQuote(domain.SideYes, yb.Quote(at))
		}
		if nok {
			inst.SetQuote(domain.SideNo, nb.Quote(at))
		}
		if err := e.store.UpdateQuotes(ctx, inst.ID, inst.YesQuote, inst.NoQuote); err != nil {
			slog.Debug("engine: quote save failed", "instrument", inst.ID, "err", err)
		}
	}
	return insts
}
