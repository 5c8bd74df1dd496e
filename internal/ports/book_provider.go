package ports

import (
	"context"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

// BookProvider obtiene orderbooks del CLOB usando el endpoint batch.
type BookProvider interface {
	// FetchOrderBooks devuelve los orderbooks para los token_ids dados.
	// Internamente agrupa los IDs en batches de máx 20 para minimizar requests.
	FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error)
}

// QuoteSource devuelve el top of book de un token individual.
type QuoteSource interface {
	FetchQuote(ctx context.Context, tokenID string) (domain.Quote, error)
	// Ping falla si la API de cotizaciones no responde.
	Ping(ctx context.Context) error
}
