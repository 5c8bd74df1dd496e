package domain

import (
	"fmt"
	"time"
)

// Side es el lado de un instrumento binario.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Sides enumera ambos lados en orden estable.
var Sides = [2]Side{SideYes, SideNo}

// Valid indica si el lado es YES o NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite devuelve el otro lado.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Instrument es un mercado binario diario sobre un umbral meteorológico:
// "¿superará la máxima en <Location> los <Threshold> el <SettlementDate>?".
type Instrument struct {
	ID               string // condition ID del venue
	Question         string
	Slug             string
	Location         string
	Threshold        float64
	SettlementDate   time.Time // día de liquidación (00:00 UTC)
	ResolutionSource string
	YesTokenID       string
	NoTokenID        string
	TickSize         float64
	NegRisk          bool
	YesQuote         Quote
	NoQuote          Quote
	Active           bool
	Resolved         bool
	Winner           Side // solo si Resolved
	UpdatedAt        time.Time
}

// TokenID devuelve el token del lado dado.
func (i Instrument) TokenID(side Side) string {
	if side == SideNo {
		return i.NoTokenID
	}
	return i.YesTokenID
}

// Quote devuelve la última cotización conocida del lado dado.
func (i Instrument) Quote(side Side) Quote {
	if side == SideNo {
		return i.NoQuote
	}
	return i.YesQuote
}

// SetQuote actualiza la cotización del lado dado.
func (i *Instrument) SetQuote(side Side, q Quote) {
	if side == SideNo {
		i.NoQuote = q
		return
	}
	i.YesQuote = q
}

// Expired indica si la fecha de liquidación es anterior al día de today.
func (i Instrument) Expired(today time.Time) bool {
	return i.SettlementDate.Before(StartOfDay(today))
}

// String identifica el instrumento en logs.
func (i Instrument) String() string {
	return fmt.Sprintf("%s %.0f %s", i.Location, i.Threshold, i.SettlementDate.Format("2006-01-02"))
}

// StartOfDay trunca t a medianoche UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Quote es el mejor bid/ask de un token con tamaño disponible.
type Quote struct {
	Bid       float64
	Ask       float64
	BidSize   float64
	AskSize   float64
	FetchedAt time.Time
}

// Empty indica que no hay ask cotizado.
func (q Quote) Empty() bool {
	return q.Ask <= 0
}

// Spread devuelve ask - bid, o 0 si falta alguno de los dos.
func (q Quote) Spread() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return q.Ask - q.Bid
}

// Mid devuelve el punto medio, o el ask si no hay bid.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 {
		return q.Ask
	}
	if q.Ask <= 0 {
		return q.Bid
	}
	return (q.Bid + q.Ask) / 2
}
