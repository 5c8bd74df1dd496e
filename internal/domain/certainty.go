package domain

import (
	"math"
	"time"
)

// Component weights of the aggregate score. They sum to 0.9, so the
// aggregate tops out at 90.
const (
	WeightOutcome   = 0.4
	WeightMarket    = 0.3
	WeightStability = 0.2

	distanceWeight = 0.6
	timeWeight     = 0.4

	// nearBand is the distance (in reading units) under which the outcome
	// is treated as a coin flip whatever the time of day.
	nearBand = 1.0
	// failMargin is how far below the threshold both observed and forecast
	// extremes must sit for a NO outcome to count as decided.
	failMargin = 5.0

	neutralMarket = 50.0
)

// Recommendation is the scorer's verdict for an instrument.
type Recommendation string

const (
	RecommendYes  Recommendation = "FAVOR_YES"
	RecommendNo   Recommendation = "FAVOR_NO"
	RecommendNone Recommendation = "NO_ACTION"
)

// Side maps a recommendation to the side it favors.
func (r Recommendation) Side() (Side, bool) {
	switch r {
	case RecommendYes:
		return SideYes, true
	case RecommendNo:
		return SideNo, true
	}
	return "", false
}

// ScoreParams are the tunables the scorer needs.
type ScoreParams struct {
	FeePct             float64       // venue fee, percent (2.0 = 2%)
	PromotionThreshold int           // minimum aggregate to recommend a side
	MinProfitPct       float64       // minimum expected profit, percent
	MaxReadingAge      time.Duration // readings older than this are stale
	MinDepth           float64       // ask size (shares) below which the book counts as thin
}

// DefaultScoreParams returns production defaults.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		FeePct:             0,
		PromotionThreshold: 70,
		MinProfitPct:       2,
		MaxReadingAge:      90 * time.Minute,
		MinDepth:           50,
	}
}

// ScoreInput bundles everything a single scoring call looks at.
type ScoreInput struct {
	Instrument Instrument
	Reading    Reading
	Now        time.Time
}

// CertaintyScore is the immutable result of one scoring pass over one instrument.
type CertaintyScore struct {
	ID                int64
	InstrumentID      string
	Threshold         float64
	OutcomeCertainty  float64
	MarketSignal      float64
	DataStability     float64
	Aggregate         int
	ImpliedSide       Side
	Recommendation    Recommendation
	Price             float64 // ask of the implied side
	ExpectedProfitPct float64
	Stale             bool
	ScoredAt          time.Time
}

// ScoreCertainty scores an instrument from its latest reading and quotes.
// It is pure: the same input always produces the same score.
func ScoreCertainty(in ScoreInput, p ScoreParams) CertaintyScore {
	inst, r := in.Instrument, in.Reading
	cs := CertaintyScore{
		InstrumentID:   inst.ID,
		Threshold:      inst.Threshold,
		Recommendation: RecommendNone,
		ScoredAt:       in.Now,
	}

	if r.Stale(in.Now, p.MaxReadingAge) {
		cs.Stale = true
		return cs
	}

	implied := SideNo
	if r.ProjectedExtreme() >= inst.Threshold {
		implied = SideYes
	}
	q := inst.Quote(implied)
	local := r.LocalTime(in.Now)

	cs.ImpliedSide = implied
	cs.OutcomeCertainty = OutcomeCertainty(r, inst.Threshold, local)
	cs.MarketSignal = MarketSignal(q, p.MinDepth)
	cs.DataStability = DataStability(r, local)
	cs.Aggregate = Aggregate(cs.OutcomeCertainty, cs.MarketSignal, cs.DataStability)
	cs.Price = q.Ask
	cs.ExpectedProfitPct = ExpectedProfitPct(q.Ask, p.FeePct)

	if q.Empty() || cs.Aggregate < p.PromotionThreshold || cs.ExpectedProfitPct < p.MinProfitPct {
		return cs
	}
	if implied == SideYes {
		cs.Recommendation = RecommendYes
	} else {
		cs.Recommendation = RecommendNo
	}
	return cs
}

// Aggregate combines the three components into the integer score.
func Aggregate(outcome, market, stability float64) int {
	return int(math.Round(WeightOutcome*outcome + WeightMarket*market + WeightStability*stability))
}

// OutcomeCertainty estimates how settled the day's outcome is.
//
// An extreme already past the threshold with the current value still above
// it is decided at 100, whatever the margin. An extreme past it by more than
// the near band with the current value back below scores 95, and a day whose
// observed and forecast extremes both sit well below it scores 90.
// Everything else blends a distance bucket with a time-of-day bucket.
func OutcomeCertainty(r Reading, threshold float64, local time.Time) float64 {
	if r.ObservedExtreme > threshold {
		if r.Current > threshold {
			return 100
		}
		if r.ObservedExtreme-threshold > nearBand {
			return 95
		}
	}
	if threshold-r.ObservedExtreme >= failMargin && threshold-r.ForecastExtreme >= failMargin {
		return 90
	}
	dist := math.Abs(r.ProjectedExtreme() - threshold)
	return distanceWeight*distanceBucket(dist) + timeWeight*timeOfDayBucket(local.Hour())
}

func distanceBucket(dist float64) float64 {
	switch {
	case dist <= nearBand:
		return 10
	case dist <= 2:
		return 30
	case dist <= 3:
		return 50
	case dist <= 5:
		return 70
	default:
		return 90
	}
}

// timeOfDayBucket grows through the day; daily maxima usually land mid afternoon.
func timeOfDayBucket(hour int) float64 {
	switch {
	case hour < 9:
		return 20
	case hour < 12:
		return 40
	case hour < 15:
		return 60
	case hour < 17:
		return 80
	default:
		return 100
	}
}

// MarketSignal reads the quote of the implied side. Prices near 0 or 1 push
// the signal up; a wide spread or a thin book pull it down. A missing quote
// is neutral.
func MarketSignal(q Quote, minDepth float64) float64 {
	if q.Empty() {
		return neutralMarket
	}
	s := neutralMarket
	price := q.Ask
	switch {
	case price >= 0.90 || price <= 0.10:
		s += 30
	case price >= 0.80 || price <= 0.20:
		s += 15
	}
	switch spread := q.Spread(); {
	case spread > 0.10:
		s -= 25
	case spread > 0.05:
		s -= 15
	}
	if q.AskSize < minDepth {
		s -= 10
	}
	return clamp(s, 0, 100)
}

// DataStability rewards forecasts that agree with observations and days
// whose peak has already passed.
func DataStability(r Reading, local time.Time) float64 {
	dev := math.Abs(r.ForecastExtreme - r.ObservedExtreme)
	var s float64
	switch {
	case dev <= 1:
		s = 90
	case dev <= 2:
		s = 75
	case dev <= 4:
		s = 55
	case dev <= 7:
		s = 35
	default:
		s = 15
	}
	switch {
	case r.Peaked() || local.Hour() >= 16:
		s += 10
	case local.Hour() < 12:
		s -= 10
	}
	return clamp(s, 0, 100)
}

// ExpectedProfitPct is the percent return of buying at price and receiving
// 1 at settlement, net of the fee, floored at zero.
func ExpectedProfitPct(price, feePct float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return math.Max((1-price)/price*100-feePct, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
