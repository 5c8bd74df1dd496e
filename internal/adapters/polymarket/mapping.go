package polymarket

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

const defaultTickSize = 0.01

// questionRe reconoce las preguntas diarias de temperatura de Gamma, p.ej.
// "Will the highest temperature in New York be 80°F or higher on October 17?".
var questionRe = regexp.MustCompile(
	`(?i)(?:highest|high|max(?:imum)?) temperature in (.+?) (?:be|reach|exceed|hit)\s+(?:above\s+|at least\s+)?(-?\d+(?:\.\d+)?)\s*°?\s*[FC]?`,
)

// parseQuestion extrae ubicación y umbral de la pregunta del mercado.
func parseQuestion(q string) (location string, threshold float64, ok bool) {
	m := questionRe.FindStringSubmatch(q)
	if m == nil {
		return "", 0, false
	}
	th, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0, false
	}
	return strings.ToLower(strings.TrimSpace(m[1])), th, true
}

// mapGammaMarket convierte un gammaMarket a domain.Instrument.
// Devuelve false si el mercado no es una pregunta de temperatura reconocible
// o le faltan tokens.
func mapGammaMarket(gm gammaMarket, now time.Time) (domain.Instrument, bool) {
	loc, th, ok := parseQuestion(gm.Question)
	if !ok {
		return domain.Instrument{}, false
	}

	tokens := parseStringList(gm.ClobTokenIDs)
	if len(tokens) < 2 || tokens[0] == "" || tokens[1] == "" {
		return domain.Instrument{}, false
	}

	settle, err := parseDate(gm.EndDateISO)
	if err != nil {
		return domain.Instrument{}, false
	}

	tick := defaultTickSize
	if v, err := gm.TickSize.Float64(); err == nil && v > 0 {
		tick = v
	}

	inst := domain.Instrument{
		ID:               gm.ConditionID,
		Question:         gm.Question,
		Slug:             gm.Slug,
		Location:         loc,
		Threshold:        th,
		SettlementDate:   settle,
		ResolutionSource: gm.ResolutionSource,
		YesTokenID:       tokens[0],
		NoTokenID:        tokens[1],
		TickSize:         tick,
		NegRisk:          gm.NegRisk,
		Active:           gm.Active && !gm.Closed,
		UpdatedAt:        now,
	}

	if winner, ok := resolvedWinner(gm); ok {
		inst.Resolved = true
		inst.Winner = winner
		inst.Active = false
	}
	return inst, true
}

// resolvedWinner determina el lado ganador de un mercado cerrado a partir de
// outcomePrices: el outcome liquidado cotiza a 1.
func resolvedWinner(gm gammaMarket) (domain.Side, bool) {
	if !gm.Closed {
		return "", false
	}
	if gm.UMAStatus != "" && !strings.EqualFold(gm.UMAStatus, "resolved") {
		return "", false
	}
	prices := parseStringList(gm.OutcomePrices)
	if len(prices) < 2 {
		return "", false
	}
	yes, err1 := strconv.ParseFloat(prices[0], 64)
	no, err2 := strconv.ParseFloat(prices[1], 64)
	if err1 != nil || err2 != nil {
		return "", false
	}
	switch {
	case yes >= 0.99 && no <= 0.01:
		return domain.SideYes, true
	case no >= 0.99 && yes <= 0.01:
		return domain.SideNo, true
	}
	return "", false
}

// parseStringList decodifica las listas que Gamma serializa como string JSON.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// parseDate normaliza endDateIso al día de liquidación (00:00 UTC).
func parseDate(s string) (time.Time, error) {
	// Polymarket usa varios formatos; intentamos los más comunes
	for _, layout := range []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.StartOfDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = mapOrderBook(r)
	}
	return result
}

func mapOrderBook(r orderBookResponse) domain.OrderBook {
	return domain.OrderBook{
		TokenID: r.AssetID,
		Bids:    mapBookEntries(r.Bids, false),
		Asks:    mapBookEntries(r.Asks, true),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
