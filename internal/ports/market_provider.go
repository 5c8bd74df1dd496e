package ports

import (
	"context"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// MarketProvider descubre los instrumentos meteorológicos del venue.
type MarketProvider interface {
	// FetchWeatherMarkets devuelve los instrumentos abiertos y los resueltos
	// recientemente (con Winner), ya parseados a ubicación y umbral.
	FetchWeatherMarkets(ctx context.Context) ([]domain.Instrument, error)
}

// WeatherSource obtiene lecturas meteorológicas para una ubicación.
type WeatherSource interface {
	FetchReading(ctx context.Context, loc domain.Location) (domain.Reading, error)
}
