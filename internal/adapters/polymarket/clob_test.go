package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/alejandrodnm/wxbot/internal/adapters/polymarket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(clobSrv, gammaSrv *httptest.Server) *polymarket.Client {
	clobURL := ""
	gammaURL := ""
	if clobSrv != nil {
		clobURL = clobSrv.URL
	}
	if gammaSrv != nil {
		gammaURL = gammaSrv.URL
	}
	return polymarket.NewClient(clobURL, gammaURL)
}

func TestFetchOrderBooks_Batch(t *testing.T) {
	data, err := os.ReadFile("../../../testdata/fixtures/clob_orderbooks_batch.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	books, err := client.FetchOrderBooks(context.Background(), []string{"tok_yes_nyc80", "tok_no_nyc80"})

	require.NoError(t, err)
	require.Len(t, books, 2)

	yesBook, ok := books["tok_yes_nyc80"]
	require.True(t, ok)
	assert.Equal(t, "tok_yes_nyc80", yesBook.TokenID)
	assert.InDelta(t, 0.91, yesBook.BestBid(), 0.001)
	assert.InDelta(t, 0.92, yesBook.BestAsk(), 0.001)

	noBook, ok := books["tok_no_nyc80"]
	require.True(t, ok)
	assert.InDelta(t, 0.06, noBook.BestBid(), 0.001)
	assert.InDelta(t, 0.09, noBook.BestAsk(), 0.001)
	assert.Len(t, noBook.Asks, 1, "zero-price levels are dropped")
}

func TestFetchOrderBooks_BatchSplitting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)

	// 25 token_ids → 2 requests (batch de 20 + batch de 5)
	tokenIDs := make([]string, 25)
	for i := range tokenIDs {
		tokenIDs[i] = "token_" + string(rune('a'+i))
	}

	_, err := client.FetchOrderBooks(context.Background(), tokenIDs)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchOrderBooks_Empty(t *testing.T) {
	client := newTestClient(nil, nil)
	books, err := client.FetchOrderBooks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestFetchQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok_yes_nyc80", r.URL.Query().Get("token_id"))
		w.Write([]byte(`{
			"asset_id": "tok_yes_nyc80",
			"bids": [{"price": "0.90", "size": "40"}],
			"asks": [{"price": "0.95", "size": "10"}, {"price": "0.93", "size": "75"}]
		}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv, nil).FetchQuote(context.Background(), "tok_yes_nyc80")
	require.NoError(t, err)
	assert.InDelta(t, 0.90, q.Bid, 1e-9)
	assert.InDelta(t, 0.93, q.Ask, 1e-9)
	assert.InDelta(t, 75, q.AskSize, 1e-9)
	assert.InDelta(t, 40, q.BidSize, 1e-9)
	assert.False(t, q.FetchedAt.IsZero())
}

func TestFetchQuote_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).FetchQuote(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time", r.URL.Path)
		w.Write([]byte(`1760700000`))
	}))
	defer srv.Close()

	assert.NoError(t, newTestClient(srv, nil).Ping(context.Background()))
}
