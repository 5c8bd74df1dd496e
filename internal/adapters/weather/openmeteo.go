// Package weather obtiene lecturas meteorológicas de Open-Meteo.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/wxbot/internal/adapters/httpx"
	"github.com/alejandrodnm/wxbot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultBase  = "https://api.open-meteo.com"
	forecastPath = "/v1/forecast"
	sourceName   = "open-meteo"
	localLayout  = "2006-01-02T15:04"

	// Open-Meteo free tier: 600/min → 60% → 6/s
	ratePerSec = 6
)

// Unit es la unidad de temperatura pedida a la API.
type Unit string

const (
	Fahrenheit Unit = "fahrenheit"
	Celsius    Unit = "celsius"
)

// OpenMeteo implementa ports.WeatherSource.
type OpenMeteo struct {
	http    *httpx.Client
	base    string
	unit    Unit
	limiter *rate.Limiter
}

// NewOpenMeteo crea el cliente. base vacío usa la API pública.
func NewOpenMeteo(base string, unit Unit) *OpenMeteo {
	if base == "" {
		base = defaultBase
	}
	if unit == "" {
		unit = Fahrenheit
	}
	return &OpenMeteo{
		http:    httpx.New("open-meteo"),
		base:    base,
		unit:    unit,
		limiter: rate.NewLimiter(ratePerSec, 3),
	}
}

type forecastResponse struct {
	UTCOffsetSeconds int    `json:"utc_offset_seconds"`
	Timezone         string `json:"timezone"`
	Current          struct {
		Time        string   `json:"time"`
		Temperature *float64 `json:"temperature_2m"`
	} `json:"current"`
	Hourly struct {
		Time        []string   `json:"time"`
		Temperature []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
	Daily struct {
		Time []string   `json:"time"`
		Max  []*float64 `json:"temperature_2m_max"`
	} `json:"daily"`
}

// FetchReading devuelve la temperatura actual, la máxima observada hasta
// ahora en el día local y la máxima pronosticada del día.
func (o *OpenMeteo) FetchReading(ctx context.Context, loc domain.Location) (domain.Reading, error) {
	tz := loc.Timezone
	if tz == "" {
		tz = "auto"
	}
	q := url.Values{
		"latitude":         {strconv.FormatFloat(loc.Lat, 'f', 4, 64)},
		"longitude":        {strconv.FormatFloat(loc.Lon, 'f', 4, 64)},
		"current":          {"temperature_2m"},
		"hourly":           {"temperature_2m"},
		"daily":            {"temperature_2m_max"},
		"timezone":         {tz},
		"temperature_unit": {string(o.unit)},
		"forecast_days":    {"1"},
	}

	var resp forecastResponse
	if err := o.http.GetJSON(ctx, o.limiter, o.base+forecastPath+"?"+q.Encode(), &resp); err != nil {
		return domain.Reading{}, fmt.Errorf("weather.FetchReading %s: %w", loc.Name, err)
	}

	r, err := toReading(loc.Name, resp)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("weather.FetchReading %s: %w", loc.Name, err)
	}
	slog.Debug("weather reading",
		"location", loc.Name,
		"current", r.Current,
		"observed_max", r.ObservedExtreme,
		"forecast_max", r.ForecastExtreme,
	)
	return r, nil
}

// toReading convierte la respuesta. Los tiempos de Open-Meteo vienen en hora
// local de la ubicación sin offset.
func toReading(name string, resp forecastResponse) (domain.Reading, error) {
	if resp.Current.Temperature == nil {
		return domain.Reading{}, fmt.Errorf("missing current temperature")
	}
	offset := time.Duration(resp.UTCOffsetSeconds) * time.Second

	nowLocal, err := time.Parse(localLayout, resp.Current.Time)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("parse current time %q: %w", resp.Current.Time, err)
	}

	current := *resp.Current.Temperature
	observed := current
	for i, ts := range resp.Hourly.Time {
		if i >= len(resp.Hourly.Temperature) || resp.Hourly.Temperature[i] == nil {
			continue
		}
		t, err := time.Parse(localLayout, ts)
		if err != nil || t.After(nowLocal) || !sameDay(t, nowLocal) {
			continue
		}
		observed = max(observed, *resp.Hourly.Temperature[i])
	}

	forecast := observed
	if len(resp.Daily.Max) > 0 && resp.Daily.Max[0] != nil {
		forecast = *resp.Daily.Max[0]
	}

	return domain.Reading{
		Location:        name,
		Current:         current,
		ObservedExtreme: observed,
		ForecastExtreme: forecast,
		ObservedAt:      nowLocal.Add(-offset).UTC(),
		UTCOffset:       offset,
		Source:          sourceName,
		Valid:           true,
	}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
