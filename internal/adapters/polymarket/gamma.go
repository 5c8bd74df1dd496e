package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

const (
	gammaEventsPath = "/events"
	gammaPageSize   = 100
	gammaMaxPages   = 20
	// Ventana de eventos cerrados que se consultan para liquidar posiciones.
	closedLookback = 3 * 24 * time.Hour
)

// FetchWeatherMarkets devuelve los instrumentos meteorológicos abiertos y los
// cerrados en los últimos días (estos últimos con Winner si ya resolvieron).
// Los mercados cuya pregunta no se reconoce se descartan.
func (c *Client) FetchWeatherMarkets(ctx context.Context) ([]domain.Instrument, error) {
	now := time.Now().UTC()

	open, err := c.fetchEvents(ctx, url.Values{"closed": {"false"}})
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchWeatherMarkets: open: %w", err)
	}

	closed, err := c.fetchEvents(ctx, url.Values{
		"closed":       {"true"},
		"end_date_min": {now.Add(-closedLookback).Format("2006-01-02")},
		"order":        {"endDate"},
		"ascending":    {"false"},
	})
	if err != nil {
		// Sin cerrados solo se retrasa la liquidación; los abiertos siguen siendo útiles.
		slog.Warn("gamma closed events failed", "err", err)
	}

	seen := make(map[string]struct{})
	var (
		out     []domain.Instrument
		skipped int
	)
	for _, ev := range append(open, closed...) {
		for _, gm := range ev.Markets {
			if _, dup := seen[gm.ConditionID]; dup || gm.ConditionID == "" {
				continue
			}
			inst, ok := mapGammaMarket(gm, now)
			if !ok {
				skipped++
				continue
			}
			seen[gm.ConditionID] = struct{}{}
			out = append(out, inst)
		}
	}

	slog.Debug("gamma weather markets fetched",
		"events", len(open)+len(closed),
		"instruments", len(out),
		"skipped", skipped,
	)
	return out, nil
}

// fetchEvents pagina GET /events con el tag meteorológico.
func (c *Client) fetchEvents(ctx context.Context, params url.Values) ([]gammaEvent, error) {
	params.Set("tag_slug", c.weatherTag)
	params.Set("limit", fmt.Sprint(gammaPageSize))

	var all []gammaEvent
	for page := 0; page < gammaMaxPages; page++ {
		params.Set("offset", fmt.Sprint(page*gammaPageSize))
		u := c.gammaBase + gammaEventsPath + "?" + params.Encode()

		var resp []gammaEvent
		if err := c.http.GetJSON(ctx, c.gammaLimiter, u, &resp); err != nil {
			return all, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, resp...)
		if len(resp) < gammaPageSize {
			break
		}
	}
	return all, nil
}
