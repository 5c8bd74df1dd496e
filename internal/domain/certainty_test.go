package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoreNow = time.Date(2026, 7, 14, 21, 30, 0, 0, time.UTC)

// localOffset pone la hora local de la lectura en 16:30.
const localOffset = -5 * time.Hour

func makeInstrument(threshold, yesAsk, noAsk float64) Instrument {
	return Instrument{
		ID:             "0xinst",
		Location:       "nyc",
		Threshold:      threshold,
		SettlementDate: StartOfDay(scoreNow),
		YesTokenID:     "tok_yes",
		NoTokenID:      "tok_no",
		TickSize:       0.01,
		YesQuote:       Quote{Bid: yesAsk - 0.01, Ask: yesAsk, BidSize: 300, AskSize: 300},
		NoQuote:        Quote{Bid: noAsk - 0.01, Ask: noAsk, BidSize: 300, AskSize: 300},
		Active:         true,
	}
}

func makeReading(current, observed, forecast float64) Reading {
	return Reading{
		Location:        "nyc",
		Current:         current,
		ObservedExtreme: observed,
		ForecastExtreme: forecast,
		ObservedAt:      scoreNow.Add(-10 * time.Minute),
		UTCOffset:       localOffset,
		Valid:           true,
	}
}

func TestScoreCertainty_PeakedAboveThreshold(t *testing.T) {
	in := ScoreInput{
		Instrument: makeInstrument(80, 0.92, 0.09),
		Reading:    makeReading(83, 85, 85),
		Now:        scoreNow,
	}
	p := DefaultScoreParams()

	cs := ScoreCertainty(in, p)

	assert.Equal(t, 100.0, cs.OutcomeCertainty)
	assert.Equal(t, 80.0, cs.MarketSignal)
	assert.Equal(t, 100.0, cs.DataStability)
	assert.Equal(t, 84, cs.Aggregate)
	assert.GreaterOrEqual(t, cs.Aggregate, p.PromotionThreshold)
	assert.InDelta(t, 8.6957, cs.ExpectedProfitPct, 0.001)
	assert.Equal(t, SideYes, cs.ImpliedSide)
	assert.Equal(t, RecommendYes, cs.Recommendation)
	assert.False(t, cs.Stale)
}

func TestScoreCertainty_FeeReducesProfit(t *testing.T) {
	in := ScoreInput{
		Instrument: makeInstrument(80, 0.92, 0.09),
		Reading:    makeReading(83, 85, 85),
		Now:        scoreNow,
	}
	p := DefaultScoreParams()
	p.FeePct = 2

	cs := ScoreCertainty(in, p)
	assert.InDelta(t, 6.6957, cs.ExpectedProfitPct, 0.001)
}

func TestScoreCertainty_NearThresholdUsesLowestBucket(t *testing.T) {
	r := makeReading(79.5, 79.8, 80.2)
	local := r.LocalTime(scoreNow)

	got := OutcomeCertainty(r, 80, local)
	// distance bucket 10, time bucket 80 (16:30 local)
	assert.InDelta(t, 0.6*10+0.4*80, got, 1e-9)

	cs := ScoreCertainty(ScoreInput{
		Instrument: makeInstrument(80, 0.92, 0.09),
		Reading:    r,
		Now:        scoreNow,
	}, DefaultScoreParams())
	assert.Less(t, cs.Aggregate, 70)
	assert.Equal(t, RecommendNone, cs.Recommendation)
}

func TestScoreCertainty_StaleReadingIsNoAction(t *testing.T) {
	r := makeReading(83, 85, 85)
	r.ObservedAt = scoreNow.Add(-6 * time.Hour)

	cs := ScoreCertainty(ScoreInput{
		Instrument: makeInstrument(80, 0.92, 0.09),
		Reading:    r,
		Now:        scoreNow,
	}, DefaultScoreParams())

	assert.True(t, cs.Stale)
	assert.Equal(t, RecommendNone, cs.Recommendation)
	assert.Equal(t, "0xinst", cs.InstrumentID)
}

func TestScoreCertainty_MissingReadingIsNoAction(t *testing.T) {
	cs := ScoreCertainty(ScoreInput{
		Instrument: makeInstrument(80, 0.92, 0.09),
		Now:        scoreNow,
	}, DefaultScoreParams())

	assert.True(t, cs.Stale)
	assert.Equal(t, RecommendNone, cs.Recommendation)
}

func TestScoreCertainty_FavorsNoWhenFarBelow(t *testing.T) {
	in := ScoreInput{
		Instrument: makeInstrument(90, 0.04, 0.95),
		Reading:    makeReading(78, 80, 81),
		Now:        scoreNow,
	}

	cs := ScoreCertainty(in, DefaultScoreParams())

	assert.Equal(t, SideNo, cs.ImpliedSide)
	assert.Equal(t, 90.0, cs.OutcomeCertainty)
	assert.InDelta(t, 0.95, cs.Price, 1e-9)
	assert.Equal(t, RecommendNo, cs.Recommendation)
}

func TestScoreCertainty_InsufficientMargin(t *testing.T) {
	in := ScoreInput{
		Instrument: makeInstrument(80, 0.99, 0.02),
		Reading:    makeReading(83, 85, 85),
		Now:        scoreNow,
	}
	p := DefaultScoreParams()

	cs := ScoreCertainty(in, p)

	assert.GreaterOrEqual(t, cs.Aggregate, p.PromotionThreshold)
	assert.Less(t, cs.ExpectedProfitPct, p.MinProfitPct)
	assert.Equal(t, RecommendNone, cs.Recommendation)
}

func TestScoreCertainty_Deterministic(t *testing.T) {
	in := ScoreInput{
		Instrument: makeInstrument(80, 0.85, 0.16),
		Reading:    makeReading(79, 81, 84),
		Now:        scoreNow,
	}
	p := DefaultScoreParams()
	first := ScoreCertainty(in, p)
	for range 10 {
		assert.Equal(t, first, ScoreCertainty(in, p))
	}
}

func TestOutcomeCertainty_ExceededWithCurrentAbove(t *testing.T) {
	morning := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	r := Reading{Current: 86, ObservedExtreme: 86, ForecastExtreme: 90, Valid: true}
	assert.Equal(t, 100.0, OutcomeCertainty(r, 80, morning))

	r.Current = 79
	assert.Equal(t, 95.0, OutcomeCertainty(r, 80, morning))
}

func TestOutcomeCertainty_AnyExceedanceWithCurrentAboveIsDecided(t *testing.T) {
	morning := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	for _, over := range []float64{0.01, 0.1, 0.5, 0.99, 1, 1.01, 1.5, 3, 10} {
		for _, below := range []float64{0, 0.005, 0.5} {
			extreme := 80 + over
			current := max(extreme-below, 80.001)
			r := Reading{Current: current, ObservedExtreme: extreme, ForecastExtreme: extreme, Valid: true}
			assert.Equal(t, 100.0, OutcomeCertainty(r, 80, morning), "extreme %.3f current %.3f", extreme, current)
		}
	}
}

func TestOutcomeCertainty_NearExceedanceWithCurrentBackBelow(t *testing.T) {
	morning := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	r := Reading{Current: 79.5, ObservedExtreme: 80.5, ForecastExtreme: 80.5, Valid: true}
	// distance bucket 10, time bucket 20
	assert.InDelta(t, 0.6*10+0.4*20, OutcomeCertainty(r, 80, morning), 1e-9)
}

func TestScoreCertainty_ExpectedProfitScenario(t *testing.T) {
	in := ScoreInput{
		Instrument: makeInstrument(80, 0.92, 0.09),
		Reading:    makeReading(83, 85, 85),
		Now:        scoreNow,
	}
	p := DefaultScoreParams()
	p.FeePct = 0.5

	cs := ScoreCertainty(in, p)

	assert.InDelta(t, 7.696, cs.ExpectedProfitPct, 0.001)
	assert.Equal(t, RecommendYes, cs.Recommendation)
	assert.GreaterOrEqual(t, cs.Aggregate, p.PromotionThreshold)
}

func TestScoreCertainty_RecommendsOnlyImpliedSide(t *testing.T) {
	p := DefaultScoreParams()
	readings := []Reading{
		makeReading(83, 85, 85),
		makeReading(70, 72, 73),
		makeReading(79, 81, 84),
		makeReading(60, 62, 64),
	}
	for _, r := range readings {
		cs := ScoreCertainty(ScoreInput{
			Instrument: makeInstrument(80, 0.92, 0.92),
			Reading:    r,
			Now:        scoreNow,
		}, p)
		side, ok := cs.Recommendation.Side()
		if !ok {
			continue
		}
		assert.Equal(t, cs.ImpliedSide, side)
	}
}

func TestOutcomeCertainty_TimeOfDayMonotonic(t *testing.T) {
	r := Reading{Current: 75, ObservedExtreme: 76, ForecastExtreme: 83, Valid: true}
	prev := -1.0
	for hour := range 24 {
		local := time.Date(2026, 7, 14, hour, 0, 0, 0, time.UTC)
		got := OutcomeCertainty(r, 80, local)
		assert.GreaterOrEqual(t, got, prev, "hour %d", hour)
		prev = got
	}
}

func TestMarketSignal(t *testing.T) {
	tests := []struct {
		name string
		q    Quote
		want float64
	}{
		{"missing quote is neutral", Quote{}, 50},
		{"extreme price tight book", Quote{Bid: 0.94, Ask: 0.95, AskSize: 500}, 80},
		{"strong price", Quote{Bid: 0.83, Ask: 0.84, AskSize: 500}, 65},
		{"mid price", Quote{Bid: 0.49, Ask: 0.50, AskSize: 500}, 50},
		{"wide spread", Quote{Bid: 0.80, Ask: 0.92, AskSize: 500}, 55},
		{"moderate spread", Quote{Bid: 0.85, Ask: 0.92, AskSize: 500}, 65},
		{"thin depth", Quote{Bid: 0.94, Ask: 0.95, AskSize: 10}, 70},
		{"everything bad", Quote{Bid: 0.20, Ask: 0.50, AskSize: 1}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MarketSignal(tt.q, 50), 1e-9)
		})
	}
}

func TestDataStability(t *testing.T) {
	afternoon := time.Date(2026, 7, 14, 16, 0, 0, 0, time.UTC)
	morning := time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 100.0, DataStability(Reading{Current: 85, ObservedExtreme: 85, ForecastExtreme: 85}, afternoon))
	assert.Equal(t, 80.0, DataStability(Reading{Current: 85, ObservedExtreme: 85, ForecastExtreme: 85}, morning))
	assert.Equal(t, 5.0, DataStability(Reading{Current: 70, ObservedExtreme: 70, ForecastExtreme: 85}, morning))
	// ya pasó el pico aunque sea temprano
	assert.Equal(t, 65.0, DataStability(Reading{Current: 80, ObservedExtreme: 83, ForecastExtreme: 86}, morning))
}

func TestExpectedProfitPct(t *testing.T) {
	assert.InDelta(t, 8.6957, ExpectedProfitPct(0.92, 0), 0.001)
	assert.InDelta(t, 100.0, ExpectedProfitPct(0.5, 0), 1e-9)
	assert.Equal(t, 0.0, ExpectedProfitPct(0.99, 5))
	assert.Equal(t, 0.0, ExpectedProfitPct(0, 0))
	assert.Equal(t, 0.0, ExpectedProfitPct(1, 0))
}

func TestAggregate_Bounds(t *testing.T) {
	assert.Equal(t, 0, Aggregate(0, 0, 0))
	assert.Equal(t, 90, Aggregate(100, 100, 100))
	assert.Equal(t, 47, Aggregate(50, 50, 60))
}

func TestRecommendation_Side(t *testing.T) {
	s, ok := RecommendYes.Side()
	require.True(t, ok)
	assert.Equal(t, SideYes, s)

	s, ok = RecommendNo.Side()
	require.True(t, ok)
	assert.Equal(t, SideNo, s)

	_, ok = RecommendNone.Side()
	assert.False(t, ok)
}
