package polymarket

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/wxbot/internal/adapters/httpx"
	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// CLOB /books y /book: 500/10s → 300/10s → 30/s
	booksRatePerSec = 30
	// Gamma /events: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// CLOB general (time, order, etc.): 9000/10s → 5400/10s → 540/s
	generalRatePerSec = 540
)

// Client es el cliente de Polymarket para datos públicos: orderbooks,
// cotizaciones y descubrimiento de mercados meteorológicos.
type Client struct {
	http         *httpx.Client
	clobBase     string
	gammaBase    string
	weatherTag   string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	booksLimiter *rate.Limiter
}

// NewClient crea un Client con los base URLs dados.
// Si clobBase o gammaBase están vacíos, usa los URLs de producción.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:         httpx.New("polymarket"),
		clobBase:     clobBase,
		gammaBase:    gammaBase,
		weatherTag:   "weather",
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
	}
}

// WithWeatherTag cambia el tag de Gamma usado para descubrir mercados.
func (c *Client) WithWeatherTag(tag string) *Client {
	if tag != "" {
		c.weatherTag = tag
	}
	return c
}

// Ping comprueba que el CLOB responde (GET /time).
func (c *Client) Ping(ctx context.Context) error {
	var ts any
	if err := c.http.GetJSON(ctx, c.clobLimiter, c.clobBase+"/time", &ts); err != nil {
		return fmt.Errorf("polymarket.Ping: %w", err)
	}
	return nil
}
