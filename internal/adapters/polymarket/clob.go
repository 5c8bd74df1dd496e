package polymarket

// clob.go: Polymarket CLOB API adapter.
//
// FetchOrderBooks usa goroutines concurrentes para disparar múltiples batch requests
// en paralelo. El rate limiter (token bucket) controla el ritmo automáticamente:
// las goroutines se autolimitan sin semáforo explícito.

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/alejandrodnm/wxbot/internal/domain"
)

const (
	booksPath = "/books"
	bookPath  = "/book"
	batchSize = 20 // máx token_ids por request a /books
)

// FetchQuote devuelve el top of book de un token (GET /book).
func (c *Client) FetchQuote(ctx context.Context, tokenID string) (domain.Quote, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, bookPath, url.QueryEscape(tokenID))

	var resp orderBookResponse
	if err := c.http.GetJSON(ctx, c.booksLimiter, u, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("clob.FetchQuote %s: %w", tokenID, err)
	}
	if resp.AssetID == "" {
		resp.AssetID = tokenID
	}
	return mapOrderBook(resp).Quote(time.Now().UTC()), nil
}

// FetchOrderBooks obtiene los orderbooks para los token_ids dados usando el endpoint batch.
// Lanza un goroutine por batch (máx batchSize tokens cada uno) y los ejecuta
// concurrentemente.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)

	type batchResult struct {
		books map[string]domain.OrderBook
		err   error
		idx   int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			books, err := c.fetchBooksBatch(ctx, batch)
			resultCh <- batchResult{books: books, err: err, idx: i}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	var firstErr error

	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchOrderBooks batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.books {
			result[k] = v
		}
	}

	// Un batch fallido no invalida los demás: devolvemos lo obtenido si hay algo.
	if firstErr != nil && len(result) == 0 {
		return nil, firstErr
	}
	if firstErr != nil {
		slog.Warn("some order book batches failed", "err", firstErr, "books", len(result))
	}

	slog.Debug("order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// splitBatches divide tokenIDs en slices de tamaño máximo size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := min(i+size, len(tokenIDs))
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.http.PostJSON(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapOrderBooks(resp), nil
}
