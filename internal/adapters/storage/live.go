package storage

// live.go: SQLite persistence for real money trading.
//
// Tables:
//   positions : filled bets; at most one OPEN row per (instrument, side)
//   breakers  : one row per risk gate
//   audit_log : append-only record of every execution attempt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

const liveSchema = `
CREATE TABLE IF NOT EXISTS positions (
    id            TEXT PRIMARY KEY,   -- local UUID
    instrument_id TEXT NOT NULL,
    side          TEXT NOT NULL,      -- YES / NO
    token_id      TEXT NOT NULL,
    order_id      TEXT NOT NULL DEFAULT '',
    entry_price   REAL NOT NULL,
    size          REAL NOT NULL,
    cost          REAL NOT NULL,
    status        TEXT NOT NULL DEFAULT 'OPEN',
    realized_pnl  REAL,
    opened_at     DATETIME NOT NULL,
    resolved_at   DATETIME,
    question      TEXT
);

CREATE INDEX IF NOT EXISTS positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS positions_instrument ON positions(instrument_id);
CREATE UNIQUE INDEX IF NOT EXISTS positions_open_unique
    ON positions(instrument_id, side) WHERE status = 'OPEN';

CREATE TABLE IF NOT EXISTS breakers (
    name         TEXT PRIMARY KEY,
    active       INTEGER NOT NULL DEFAULT 0,
    triggered_at DATETIME,
    reason       TEXT NOT NULL DEFAULT '',
    updated_at   DATETIME
);

-- Ensure exactly one row per gate
INSERT OR IGNORE INTO breakers (name) VALUES
    ('loss_limit'), ('win_rate'), ('data_freshness'),
    ('api_health'), ('balance_floor'), ('manual');

CREATE TABLE IF NOT EXISTS audit_log (
    id            TEXT PRIMARY KEY,
    instrument_id TEXT NOT NULL,
    side          TEXT NOT NULL,
    outcome       TEXT NOT NULL,
    reason        TEXT NOT NULL DEFAULT '',
    score         INTEGER NOT NULL DEFAULT 0,
    quote_price   REAL NOT NULL DEFAULT 0,
    capital       REAL NOT NULL DEFAULT 0,
    live_bets     INTEGER NOT NULL DEFAULT 0,
    allocation    REAL NOT NULL DEFAULT 0,
    size          REAL NOT NULL DEFAULT 0,
    price         REAL NOT NULL DEFAULT 0,
    cost          REAL NOT NULL DEFAULT 0,
    order_id      TEXT NOT NULL DEFAULT '',
    at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_log_at ON audit_log(at DESC);
`

// ─── Positions ───────────────────────────────────────────────────────────────

// CreatePosition inserts a new OPEN position. The partial unique index turns
// a second OPEN row for the same (instrument, side) into ErrDuplicatePosition.
func (s *SQLiteStorage) CreatePosition(ctx context.Context, p domain.Position) error {
	status := p.Status
	if status == "" {
		status = domain.PositionOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
		  (id, instrument_id, side, token_id, order_id, entry_price, size, cost,
		   status, realized_pnl, opened_at, resolved_at, question)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.InstrumentID, string(p.Side), p.TokenID, p.OrderID, p.EntryPrice, p.Size, p.Cost,
		string(status), nullFloat(p.RealizedPnL), p.OpenedAt.UTC(), nullTime(p.ResolvedAt), p.Question,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage.CreatePosition %s: %w", p.Key(), domain.ErrDuplicatePosition)
		}
		return fmt.Errorf("storage.CreatePosition: %w", err)
	}
	return nil
}

// OpenPositions returns every OPEN position.
func (s *SQLiteStorage) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx, `WHERE status='OPEN' ORDER BY opened_at`)
}

// OpenPositionsFor returns the OPEN positions of one instrument.
func (s *SQLiteStorage) OpenPositionsFor(ctx context.Context, instrumentID string) ([]domain.Position, error) {
	return s.queryPositions(ctx, `WHERE status='OPEN' AND instrument_id=? ORDER BY opened_at`, instrumentID)
}

// RecentResolved returns the last n resolved positions, newest first.
func (s *SQLiteStorage) RecentResolved(ctx context.Context, n int) ([]domain.Position, error) {
	return s.queryPositions(ctx, `WHERE status='RESOLVED' ORDER BY resolved_at DESC LIMIT ?`, n)
}

// ResolvePosition closes an OPEN position with its realized PnL.
func (s *SQLiteStorage) ResolvePosition(ctx context.Context, id string, pnl float64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET status='RESOLVED', realized_pnl=?, resolved_at=? WHERE id=? AND status='OPEN'`,
		pnl, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("storage.ResolvePosition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.ResolvePosition %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// RealizedPnL sums the realized PnL of every resolved position.
func (s *SQLiteStorage) RealizedPnL(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(realized_pnl), 0) FROM positions WHERE status='RESOLVED'`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage.RealizedPnL: %w", err)
	}
	return total, nil
}

func (s *SQLiteStorage) queryPositions(ctx context.Context, where string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instrument_id, side, token_id, order_id, entry_price, size, cost,
		       status, realized_pnl, opened_at, resolved_at, question
		FROM positions `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var (
		p            domain.Position
		side, status string
		pnl          sql.NullFloat64
		resolvedAt   sql.NullTime
		question     sql.NullString
	)
	err := rows.Scan(&p.ID, &p.InstrumentID, &side, &p.TokenID, &p.OrderID, &p.EntryPrice,
		&p.Size, &p.Cost, &status, &pnl, &p.OpenedAt, &resolvedAt, &question)
	if err != nil {
		return p, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	p.Question = question.String
	if pnl.Valid {
		v := pnl.Float64
		p.RealizedPnL = &v
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	return p, nil
}

// ─── Breakers ────────────────────────────────────────────────────────────────

// SaveBreaker upserts the state of one gate.
func (s *SQLiteStorage) SaveBreaker(ctx context.Context, b domain.Breaker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breakers (name, active, triggered_at, reason, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
		  active=excluded.active, triggered_at=excluded.triggered_at,
		  reason=excluded.reason, updated_at=excluded.updated_at`,
		string(b.Name), boolToInt(b.Active), nullTime(b.TriggeredAt), b.Reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveBreaker: %w", err)
	}
	return nil
}

// LoadBreakers returns the persisted state of every gate.
func (s *SQLiteStorage) LoadBreakers(ctx context.Context) ([]domain.Breaker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, active, triggered_at, reason, updated_at FROM breakers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadBreakers: %w", err)
	}
	defer rows.Close()

	var out []domain.Breaker
	for rows.Next() {
		var (
			b           domain.Breaker
			name        string
			active      int
			triggeredAt sql.NullTime
			updatedAt   sql.NullTime
		)
		if err := rows.Scan(&name, &active, &triggeredAt, &b.Reason, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage.LoadBreakers: scan: %w", err)
		}
		b.Name = domain.BreakerName(name)
		b.Active = active == 1
		if triggeredAt.Valid {
			t := triggeredAt.Time
			b.TriggeredAt = &t
		}
		if updatedAt.Valid {
			b.UpdatedAt = updatedAt.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ─── Audit ───────────────────────────────────────────────────────────────────

// AppendAudit appends one execution attempt to the audit log.
func (s *SQLiteStorage) AppendAudit(ctx context.Context, a domain.ExecutionAudit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log
		  (id, instrument_id, side, outcome, reason, score, quote_price, capital, live_bets,
		   allocation, size, price, cost, order_id, at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.InstrumentID, string(a.Side), string(a.Outcome), a.Reason, a.Score, a.QuotePrice,
		a.Capital, a.LiveBets, a.Allocation, a.Size, a.Price, a.Cost, a.OrderID, a.At.UTC())
	if err != nil {
		return fmt.Errorf("storage.AppendAudit: %w", err)
	}
	return nil
}

// RecentAudits returns the last n audit entries, newest first.
func (s *SQLiteStorage) RecentAudits(ctx context.Context, n int) ([]domain.ExecutionAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instrument_id, side, outcome, reason, score, quote_price, capital, live_bets,
		       allocation, size, price, cost, order_id, at
		FROM audit_log ORDER BY at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentAudits: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionAudit
	for rows.Next() {
		var a domain.ExecutionAudit
		var side, outcome string
		if err := rows.Scan(&a.ID, &a.InstrumentID, &side, &outcome, &a.Reason, &a.Score,
			&a.QuotePrice, &a.Capital, &a.LiveBets, &a.Allocation, &a.Size, &a.Price, &a.Cost,
			&a.OrderID, &a.At); err != nil {
			return nil, fmt.Errorf("storage.RecentAudits: scan: %w", err)
		}
		a.Side = domain.Side(side)
		a.Outcome = domain.AuditOutcome(outcome)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullTimeVal(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
