package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// InstrumentStore persiste el universo de instrumentos.
type InstrumentStore interface {
	UpsertInstruments(ctx context.Context, instruments []domain.Instrument) error
	// ActiveInstruments devuelve los activos y no resueltos con liquidación
	// entre from y to (inclusive, por día).
	ActiveInstruments(ctx context.Context, from, to time.Time) ([]domain.Instrument, error)
	GetInstrument(ctx context.Context, id string) (domain.Instrument, error)
	UpdateQuotes(ctx context.Context, id string, yes, no domain.Quote) error
	MarkResolved(ctx context.Context, id string, winner domain.Side) error
	// DeactivateExpired desactiva los instrumentos con liquidación anterior a today.
	DeactivateExpired(ctx context.Context, today time.Time) (int64, error)
}

// ReadingStore persiste las lecturas meteorológicas.
type ReadingStore interface {
	SaveReading(ctx context.Context, r domain.Reading) error
	LatestReading(ctx context.Context, location string) (domain.Reading, error)
	// LatestReadingTimes devuelve la hora de la última lectura por ubicación.
	LatestReadingTimes(ctx context.Context) (map[string]time.Time, error)
}

// ScoreStore guarda cada CertaintyScore como registro inmutable.
type ScoreStore interface {
	SaveScore(ctx context.Context, cs domain.CertaintyScore) (int64, error)
}

// PositionStore persiste las posiciones abiertas y resueltas.
type PositionStore interface {
	// CreatePosition falla con domain.ErrDuplicatePosition si ya hay una
	// posición OPEN para el mismo instrumento y lado.
	CreatePosition(ctx context.Context, p domain.Position) error
	OpenPositions(ctx context.Context) ([]domain.Position, error)
	OpenPositionsFor(ctx context.Context, instrumentID string) ([]domain.Position, error)
	ResolvePosition(ctx context.Context, id string, pnl float64, at time.Time) error
	// RecentResolved devuelve las últimas n posiciones resueltas, más recientes primero.
	RecentResolved(ctx context.Context, n int) ([]domain.Position, error)
	RealizedPnL(ctx context.Context) (float64, error)
}

// BreakerStore persiste el estado de los breakers.
type BreakerStore interface {
	SaveBreaker(ctx context.Context, b domain.Breaker) error
	LoadBreakers(ctx context.Context) ([]domain.Breaker, error)
}

// AuditStore es el log append-only de intentos de ejecución.
type AuditStore interface {
	AppendAudit(ctx context.Context, a domain.ExecutionAudit) error
	RecentAudits(ctx context.Context, n int) ([]domain.ExecutionAudit, error)
}

// Storage agrupa toda la persistencia del engine.
type Storage interface {
	InstrumentStore
	ReadingStore
	ScoreStore
	PositionStore
	BreakerStore
	AuditStore
}
