package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision describes the venue's price grid and the decimal places it
// accepts for prices, sizes (shares) and costs (USDC).
type Precision struct {
	TickSize      decimal.Decimal
	PriceDecimals int32
	SizeDecimals  int32
	CostDecimals  int32
}

// PrecisionForTick builds a Precision whose price decimals follow the tick.
func PrecisionForTick(tick float64, sizeDecimals, costDecimals int32) Precision {
	t := decimal.NewFromFloat(tick)
	priceDec := -t.Exponent()
	if priceDec < 0 {
		priceDec = 0
	}
	return Precision{
		TickSize:      t,
		PriceDecimals: priceDec,
		SizeDecimals:  sizeDecimals,
		CostDecimals:  costDecimals,
	}
}

// NormalizedOrder is an order quantized to the venue grid. It can only be
// produced by NormalizeOrder.
type NormalizedOrder struct {
	size  decimal.Decimal
	price decimal.Decimal
	cost  decimal.Decimal
}

func (o NormalizedOrder) Size() decimal.Decimal  { return o.size }
func (o NormalizedOrder) Price() decimal.Decimal { return o.price }
func (o NormalizedOrder) Cost() decimal.Decimal  { return o.cost }

// IsZero reports whether o was never normalized.
func (o NormalizedOrder) IsZero() bool {
	return o.size.IsZero() && o.price.IsZero()
}

// MakerAmount is the USDC paid for a BUY, in 6-decimal base units.
func (o NormalizedOrder) MakerAmount() int64 {
	return o.cost.Shift(6).IntPart()
}

// TakerAmount is the shares received for a BUY, in 6-decimal base units.
func (o NormalizedOrder) TakerAmount() int64 {
	return o.size.Shift(6).IntPart()
}

func (o NormalizedOrder) String() string {
	return fmt.Sprintf("%s @ %s = %s", o.size, o.price, o.cost)
}

// NormalizeOrder quantizes a raw (size, price) pair to p.
//
// The price is snapped down to the tick grid and clamped into
// [tick, 1-tick]. Size and cost are truncated, the cost capped at the
// authorized notional size×price (clamping can raise the price), then size is
// solved back from the truncated cost so both sides of the order agree. Finally size is
// stepped down until size×price is exactly representable at CostDecimals.
// Nothing is ever rounded up, so the result never costs more than requested.
func NormalizeOrder(size, price decimal.Decimal, p Precision) (NormalizedOrder, error) {
	tick := p.TickSize
	if !size.IsPositive() || !price.IsPositive() {
		return NormalizedOrder{}, fmt.Errorf("%w: size=%s price=%s", ErrInvalidOrder, size, price)
	}
	if !tick.IsPositive() || tick.GreaterThanOrEqual(decimal.NewFromFloat(0.5)) {
		return NormalizedOrder{}, fmt.Errorf("%w: tick=%s", ErrInvalidOrder, tick)
	}

	px := price.Div(tick).Floor().Mul(tick)
	upper := decimal.NewFromInt(1).Sub(tick)
	switch {
	case px.LessThan(tick):
		px = tick
	case px.GreaterThan(upper):
		px = upper
	}
	px = px.Truncate(p.PriceDecimals)

	sz := size.Truncate(p.SizeDecimals)
	cost := decimal.Min(sz.Mul(px), size.Mul(price)).Truncate(p.CostDecimals)
	sz, _ = cost.QuoRem(px, p.SizeDecimals)
	sz = alignSize(sz, px, p)
	cost = sz.Mul(px)

	if !sz.IsPositive() || !cost.IsPositive() {
		return NormalizedOrder{}, fmt.Errorf("%w: size %s at %s rounds to zero", ErrInvalidOrder, size, price)
	}
	return NormalizedOrder{size: sz, price: px, cost: cost}, nil
}

// alignSize steps size down to a multiple of the smallest size increment for
// which size×price has no digits beyond CostDecimals.
func alignSize(size, price decimal.Decimal, p Precision) decimal.Decimal {
	exp := p.PriceDecimals + p.SizeDecimals - p.CostDecimals
	if exp <= 0 {
		return size
	}
	priceUnits := price.Shift(p.PriceDecimals).BigInt()
	sizeUnits := size.Shift(p.SizeDecimals).BigInt()
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)

	g := new(big.Int).GCD(nil, nil, priceUnits, denom)
	step := new(big.Int).Quo(denom, g)

	steps := new(big.Int).Quo(sizeUnits, step)
	aligned := new(big.Int).Mul(steps, step)
	return decimal.NewFromBigInt(aligned, -p.SizeDecimals)
}
