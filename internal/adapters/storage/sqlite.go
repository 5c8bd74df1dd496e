package storage

// sqlite.go: instrumentos, lecturas y scores.
//
// Estrategia:
//   - `instruments`: una fila por mercado (UPSERT). Guarda también la última
//     cotización de cada lado. Una vez desactivado por el sweeper, un
//     instrumento no se reactiva aunque el venue lo siga listando.
//   - `readings`: histórico de lecturas meteorológicas por ubicación.
//   - `certainty_scores`: un registro inmutable por pasada de scoring.
//   - Prune automático al arrancar: scores y lecturas > 14d.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
    id                TEXT PRIMARY KEY,
    question          TEXT,
    slug              TEXT,
    location          TEXT    NOT NULL,
    threshold         REAL    NOT NULL,
    settlement_date   TEXT    NOT NULL,          -- YYYY-MM-DD
    resolution_source TEXT,
    yes_token_id      TEXT    NOT NULL,
    no_token_id       TEXT    NOT NULL,
    tick_size         REAL    NOT NULL DEFAULT 0.01,
    neg_risk          INTEGER NOT NULL DEFAULT 0,
    yes_bid           REAL    NOT NULL DEFAULT 0,
    yes_ask           REAL    NOT NULL DEFAULT 0,
    yes_bid_size      REAL    NOT NULL DEFAULT 0,
    yes_ask_size      REAL    NOT NULL DEFAULT 0,
    no_bid            REAL    NOT NULL DEFAULT 0,
    no_ask            REAL    NOT NULL DEFAULT 0,
    no_bid_size       REAL    NOT NULL DEFAULT 0,
    no_ask_size       REAL    NOT NULL DEFAULT 0,
    quotes_at         DATETIME,
    active            INTEGER NOT NULL DEFAULT 1,
    resolved          INTEGER NOT NULL DEFAULT 0,
    winner            TEXT    NOT NULL DEFAULT '',
    updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instr_active ON instruments(active, resolved, settlement_date);

CREATE TABLE IF NOT EXISTS readings (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    location         TEXT    NOT NULL,
    current          REAL    NOT NULL,
    observed_extreme REAL    NOT NULL,
    forecast_extreme REAL    NOT NULL,
    observed_at      DATETIME NOT NULL,
    utc_offset_s     INTEGER NOT NULL DEFAULT 0,
    source           TEXT,
    valid            INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_readings_loc ON readings(location, observed_at DESC);

CREATE TABLE IF NOT EXISTS certainty_scores (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    instrument_id     TEXT    NOT NULL,
    threshold         REAL    NOT NULL,
    outcome_certainty REAL    NOT NULL,
    market_signal     REAL    NOT NULL,
    data_stability    REAL    NOT NULL,
    aggregate         INTEGER NOT NULL,
    implied_side      TEXT    NOT NULL DEFAULT '',
    recommendation    TEXT    NOT NULL,
    price             REAL    NOT NULL DEFAULT 0,
    expected_profit   REAL    NOT NULL DEFAULT 0,
    stale             INTEGER NOT NULL DEFAULT 0,
    scored_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_instr ON certainty_scores(instrument_id, scored_at DESC);
`

const (
	retention  = 14 * 24 * time.Hour
	dateLayout = "2006-01-02"
)

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema completo y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	for _, ddl := range []string{schema, liveSchema} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
		}
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina scores y lecturas fuera de la ventana de retención.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retention)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM certainty_scores WHERE scored_at < ?`, cutoff)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM readings WHERE observed_at < ?`, cutoff)
}

// ─── Instruments ─────────────────────────────────────────────────────────────

// UpsertInstruments inserta o actualiza instrumentos. No toca las
// cotizaciones y nunca reactiva un instrumento desactivado.
func (s *SQLiteStorage) UpsertInstruments(ctx context.Context, instruments []domain.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.UpsertInstruments: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO instruments
		  (id, question, slug, location, threshold, settlement_date, resolution_source,
		   yes_token_id, no_token_id, tick_size, neg_risk, active, resolved, winner, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		  question          = excluded.question,
		  slug              = excluded.slug,
		  resolution_source = excluded.resolution_source,
		  tick_size         = excluded.tick_size,
		  neg_risk          = excluded.neg_risk,
		  active            = instruments.active AND excluded.active,
		  resolved          = MAX(instruments.resolved, excluded.resolved),
		  winner            = CASE WHEN excluded.winner != '' THEN excluded.winner ELSE instruments.winner END,
		  updated_at        = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("storage.UpsertInstruments: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, in := range instruments {
		if _, err := stmt.ExecContext(ctx,
			in.ID, in.Question, in.Slug, in.Location, in.Threshold,
			in.SettlementDate.UTC().Format(dateLayout), in.ResolutionSource,
			in.YesTokenID, in.NoTokenID, in.TickSize, boolToInt(in.NegRisk),
			boolToInt(in.Active), boolToInt(in.Resolved), string(in.Winner), now,
		); err != nil {
			return fmt.Errorf("storage.UpsertInstruments: upsert %s: %w", in.ID, err)
		}
	}
	return tx.Commit()
}

const instrumentColumns = `
	id, question, slug, location, threshold, settlement_date, resolution_source,
	yes_token_id, no_token_id, tick_size, neg_risk,
	yes_bid, yes_ask, yes_bid_size, yes_ask_size,
	no_bid, no_ask, no_bid_size, no_ask_size, quotes_at,
	active, resolved, winner, updated_at`

// ActiveInstruments devuelve los instrumentos activos, no resueltos, con
// liquidación entre from y to.
func (s *SQLiteStorage) ActiveInstruments(ctx context.Context, from, to time.Time) ([]domain.Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instrumentColumns+` FROM instruments
		 WHERE active = 1 AND resolved = 0 AND settlement_date BETWEEN ? AND ?
		 ORDER BY settlement_date, location, threshold`,
		from.UTC().Format(dateLayout), to.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("storage.ActiveInstruments: %w", err)
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		in, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ActiveInstruments: scan: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// GetInstrument devuelve un instrumento por ID.
func (s *SQLiteStorage) GetInstrument(ctx context.Context, id string) (domain.Instrument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE id = ?`, id)
	in, err := scanInstrument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Instrument{}, fmt.Errorf("storage.GetInstrument %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("storage.GetInstrument: %w", err)
	}
	return in, nil
}

// UpdateQuotes guarda la última cotización de ambos lados.
func (s *SQLiteStorage) UpdateQuotes(ctx context.Context, id string, yes, no domain.Quote) error {
	at := yes.FetchedAt
	if no.FetchedAt.After(at) {
		at = no.FetchedAt
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE instruments SET
		  yes_bid=?, yes_ask=?, yes_bid_size=?, yes_ask_size=?,
		  no_bid=?, no_ask=?, no_bid_size=?, no_ask_size=?, quotes_at=?
		WHERE id=?`,
		yes.Bid, yes.Ask, yes.BidSize, yes.AskSize,
		no.Bid, no.Ask, no.BidSize, no.AskSize, nullTimeVal(at), id)
	if err != nil {
		return fmt.Errorf("storage.UpdateQuotes: %w", err)
	}
	return nil
}

// MarkResolved marca el instrumento como resuelto a favor de winner.
func (s *SQLiteStorage) MarkResolved(ctx context.Context, id string, winner domain.Side) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE instruments SET resolved=1, active=0, winner=?, updated_at=? WHERE id=?`,
		string(winner), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("storage.MarkResolved: %w", err)
	}
	return nil
}

// DeactivateExpired desactiva los instrumentos con liquidación anterior a today.
func (s *SQLiteStorage) DeactivateExpired(ctx context.Context, today time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE instruments SET active=0, updated_at=? WHERE active=1 AND settlement_date < ?`,
		time.Now().UTC(), domain.StartOfDay(today).Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("storage.DeactivateExpired: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (domain.Instrument, error) {
	var (
		in                      domain.Instrument
		question, slug, source  sql.NullString
		settlement, winner      string
		negRisk, active, solved int
		quotesAt                sql.NullTime
	)
	err := row.Scan(
		&in.ID, &question, &slug, &in.Location, &in.Threshold, &settlement, &source,
		&in.YesTokenID, &in.NoTokenID, &in.TickSize, &negRisk,
		&in.YesQuote.Bid, &in.YesQuote.Ask, &in.YesQuote.BidSize, &in.YesQuote.AskSize,
		&in.NoQuote.Bid, &in.NoQuote.Ask, &in.NoQuote.BidSize, &in.NoQuote.AskSize, &quotesAt,
		&active, &solved, &winner, &in.UpdatedAt,
	)
	if err != nil {
		return in, err
	}
	in.Question = question.String
	in.Slug = slug.String
	in.ResolutionSource = source.String
	in.NegRisk = negRisk == 1
	in.Active = active == 1
	in.Resolved = solved == 1
	in.Winner = domain.Side(winner)
	if d, err := time.Parse(dateLayout, settlement); err == nil {
		in.SettlementDate = d
	}
	if quotesAt.Valid {
		in.YesQuote.FetchedAt = quotesAt.Time
		in.NoQuote.FetchedAt = quotesAt.Time
	}
	return in, nil
}

// ─── Readings ────────────────────────────────────────────────────────────────

// SaveReading agrega una lectura al histórico.
func (s *SQLiteStorage) SaveReading(ctx context.Context, r domain.Reading) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings
		  (location, current, observed_extreme, forecast_extreme, observed_at, utc_offset_s, source, valid)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.Location, r.Current, r.ObservedExtreme, r.ForecastExtreme,
		r.ObservedAt.UTC().Truncate(time.Second), int64(r.UTCOffset/time.Second), r.Source, boolToInt(r.Valid))
	if err != nil {
		return fmt.Errorf("storage.SaveReading: %w", err)
	}
	return nil
}

// LatestReading devuelve la lectura más reciente de la ubicación.
func (s *SQLiteStorage) LatestReading(ctx context.Context, location string) (domain.Reading, error) {
	var (
		r      = domain.Reading{Location: location}
		offset int64
		source sql.NullString
		valid  int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT current, observed_extreme, forecast_extreme, observed_at, utc_offset_s, source, valid
		FROM readings WHERE location = ? ORDER BY observed_at DESC, id DESC LIMIT 1`, location,
	).Scan(&r.Current, &r.ObservedExtreme, &r.ForecastExtreme, &r.ObservedAt, &offset, &source, &valid)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("storage.LatestReading %s: %w", location, domain.ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("storage.LatestReading: %w", err)
	}
	r.UTCOffset = time.Duration(offset) * time.Second
	r.Source = source.String
	r.Valid = valid == 1
	return r, nil
}

// LatestReadingTimes devuelve la hora de la última lectura por ubicación.
func (s *SQLiteStorage) LatestReadingTimes(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.location, r.observed_at FROM readings r
		WHERE r.observed_at = (SELECT MAX(observed_at) FROM readings WHERE location = r.location)`)
	if err != nil {
		return nil, fmt.Errorf("storage.LatestReadingTimes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var loc string
		var at time.Time
		if err := rows.Scan(&loc, &at); err != nil {
			return nil, fmt.Errorf("storage.LatestReadingTimes: scan: %w", err)
		}
		out[loc] = at
	}
	return out, rows.Err()
}

// ─── Scores ──────────────────────────────────────────────────────────────────

// SaveScore persiste un CertaintyScore y devuelve su ID.
func (s *SQLiteStorage) SaveScore(ctx context.Context, cs domain.CertaintyScore) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO certainty_scores
		  (instrument_id, threshold, outcome_certainty, market_signal, data_stability, aggregate,
		   implied_side, recommendation, price, expected_profit, stale, scored_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		cs.InstrumentID, cs.Threshold, cs.OutcomeCertainty, cs.MarketSignal, cs.DataStability,
		cs.Aggregate, string(cs.ImpliedSide), string(cs.Recommendation), cs.Price,
		cs.ExpectedProfitPct, boolToInt(cs.Stale), cs.ScoredAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage.SaveScore: %w", err)
	}
	return res.LastInsertId()
}

// ScoresFor devuelve los últimos n scores del instrumento, más recientes primero.
func (s *SQLiteStorage) ScoresFor(ctx context.Context, instrumentID string, n int) ([]domain.CertaintyScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instrument_id, threshold, outcome_certainty, market_signal, data_stability,
		       aggregate, implied_side, recommendation, price, expected_profit, stale, scored_at
		FROM certainty_scores WHERE instrument_id = ? ORDER BY scored_at DESC, id DESC LIMIT ?`,
		instrumentID, n)
	if err != nil {
		return nil, fmt.Errorf("storage.ScoresFor: %w", err)
	}
	defer rows.Close()

	var out []domain.CertaintyScore
	for rows.Next() {
		var cs domain.CertaintyScore
		var implied, rec string
		var stale int
		if err := rows.Scan(&cs.ID, &cs.InstrumentID, &cs.Threshold, &cs.OutcomeCertainty,
			&cs.MarketSignal, &cs.DataStability, &cs.Aggregate, &implied, &rec, &cs.Price,
			&cs.ExpectedProfitPct, &stale, &cs.ScoredAt); err != nil {
			return nil, fmt.Errorf("storage.ScoresFor: scan: %w", err)
		}
		cs.ImpliedSide = domain.Side(implied)
		cs.Recommendation = domain.Recommendation(rec)
		cs.Stale = stale == 1
		out = append(out, cs)
	}
	return out, rows.Err()
}
