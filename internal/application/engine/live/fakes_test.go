package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/wxbot/internal/adapters/storage"
	"github.com/alejandrodnm/wxbot/internal/domain"
)

var testNow = time.Date(2026, 7, 1, 20, 0, 0, 0, time.UTC)

type fakeVenue struct {
	mu      sync.Mutex
	balance float64
	err     error
	orders  []domain.PlaceOrderRequest
}

func (v *fakeVenue) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return domain.PlacedOrder{}, v.err
	}
	v.orders = append(v.orders, req)
	return domain.PlacedOrder{OrderID: "0xorder", Status: "matched"}, nil
}

func (v *fakeVenue) GetBalance(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

func (v *fakeVenue) placed() []domain.PlaceOrderRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.PlaceOrderRequest(nil), v.orders...)
}

type fakeQuotes struct {
	quote   domain.Quote
	pingErr error
}

func (q *fakeQuotes) FetchQuote(context.Context, string) (domain.Quote, error) {
	return q.quote, nil
}

func (q *fakeQuotes) Ping(context.Context) error { return q.pingErr }

type fakeBooks struct {
	books map[string]domain.OrderBook
}

func (b *fakeBooks) FetchOrderBooks(_ context.Context, ids []string) (map[string]domain.OrderBook, error) {
	out := make(map[string]domain.OrderBook)
	for _, id := range ids {
		if ob, ok := b.books[id]; ok {
			out[id] = ob
		}
	}
	return out, nil
}

type fakeMarkets struct {
	instruments []domain.Instrument
}

func (m *fakeMarkets) FetchWeatherMarkets(context.Context) ([]domain.Instrument, error) {
	return m.instruments, nil
}

type fakeWeather struct {
	readings map[string]domain.Reading
}

func (w *fakeWeather) FetchReading(_ context.Context, loc domain.Location) (domain.Reading, error) {
	r, ok := w.readings[loc.Name]
	if !ok {
		return domain.Reading{}, errors.New("station offline")
	}
	return r, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (a *recordingAlerter) Alert(_ context.Context, al domain.Alert) error {
	a.mu.Lock()
	a.alerts = append(a.alerts, al)
	a.mu.Unlock()
	return nil
}

func (a *recordingAlerter) titles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.alerts))
	for i, al := range a.alerts {
		out[i] = al.Title
	}
	return out
}

// flakyPositions fails the next `failures` CreatePosition calls.
type flakyPositions struct {
	*storage.SQLiteStorage
	mu       sync.Mutex
	failures int
}

func (s *flakyPositions) CreatePosition(ctx context.Context, p domain.Position) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("disk full")
	}
	s.mu.Unlock()
	return s.SQLiteStorage.CreatePosition(ctx, p)
}

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type testEngine struct {
	*Engine
	store   *storage.SQLiteStorage
	venue   *fakeVenue
	quotes  *fakeQuotes
	alerter *recordingAlerter
}

// newTestEngine builds an engine whose tasks sleep for an hour, so tests
// drive executions explicitly.
func newTestEngine(t *testing.T, cfg Config) *testEngine {
	t.Helper()
	store := newTestStore(t)
	venue := &fakeVenue{balance: 100}
	quotes := &fakeQuotes{quote: domain.Quote{Bid: 0.91, Ask: 0.92, AskSize: 500}}
	alerter := &recordingAlerter{}

	if cfg.PollMin == 0 {
		cfg.PollMin, cfg.PollMax = time.Hour, time.Hour
	}
	e := New(Deps{
		Store:   store,
		Markets: &fakeMarkets{},
		Weather: &fakeWeather{},
		Books:   &fakeBooks{},
		Quotes:  quotes,
		Venue:   venue,
		Alerter: alerter,
	}, cfg)
	e.now = func() time.Time { return testNow }
	e.registry.now = e.now

	return &testEngine{Engine: e, store: store, venue: venue, quotes: quotes, alerter: alerter}
}

// startCoordinator runs the coordinator until the test ends.
func (te *testEngine) startCoordinator(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = te.coordinate(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func testBet(id string, side domain.Side, price float64) domain.SafeBet {
	return domain.SafeBet{
		InstrumentID: id,
		Side:         side,
		TokenID:      "tok_" + id + "_" + string(side),
		Question:     "Will the highest temperature in New York be 80°F or higher?",
		Price:        price,
		Score:        84,
		TickSize:     0.01,
		PromotedAt:   testNow.Add(-time.Minute),
	}
}

// seed puts bets in the live set. Only valid before the coordinator starts.
func (te *testEngine) seed(bets ...domain.SafeBet) {
	for _, b := range bets {
		te.set[b.Key()] = b
	}
	te.publish()
}
