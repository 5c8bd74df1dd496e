package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPrecisionForTick(t *testing.T) {
	p := PrecisionForTick(0.001, 2, 2)
	assert.Equal(t, int32(3), p.PriceDecimals)
	assert.True(t, p.TickSize.Equal(dec("0.001")))

	p = PrecisionForTick(0.01, 2, 4)
	assert.Equal(t, int32(2), p.PriceDecimals)
	assert.Equal(t, int32(4), p.CostDecimals)
}

func TestNormalizeOrder_SnapsPriceToTick(t *testing.T) {
	p := PrecisionForTick(0.001, 2, 2)

	o, err := NormalizeOrder(dec("10000"), dec("0.015667"), p)
	require.NoError(t, err)

	assert.Equal(t, "0.015", o.Price().String())
	assert.Equal(t, "10000", o.Size().String())
	assert.True(t, o.Cost().Equal(dec("150")), "cost %s", o.Cost())
}

func TestNormalizeOrder_BackSolvesSizeFromCost(t *testing.T) {
	p := PrecisionForTick(0.001, 2, 2)

	o, err := NormalizeOrder(dec("10000.123"), dec("0.015667"), p)
	require.NoError(t, err)

	naive := dec("10000.123").Truncate(p.SizeDecimals)
	assert.Equal(t, "10000.12", naive.String())
	assert.True(t, o.Size().Equal(dec("10000")), "size %s", o.Size())
	assert.True(t, o.Cost().Equal(dec("150")), "cost %s", o.Cost())
}

func TestNormalizeOrder_ClampsIntoRange(t *testing.T) {
	p := PrecisionForTick(0.01, 2, 4)

	o, err := NormalizeOrder(dec("10"), dec("0.999"), p)
	require.NoError(t, err)
	assert.True(t, o.Price().Equal(dec("0.99")), "price %s", o.Price())

	// clamping raises the price; the order still costs no more than 10×0.004
	o, err = NormalizeOrder(dec("10"), dec("0.004"), p)
	require.NoError(t, err)
	assert.True(t, o.Price().Equal(dec("0.01")), "price %s", o.Price())
	assert.True(t, o.Cost().Equal(dec("0.04")), "cost %s", o.Cost())
	assert.True(t, o.Size().Equal(dec("4")), "size %s", o.Size())
}

func TestNormalizeOrder_RejectsInvalidInput(t *testing.T) {
	p := PrecisionForTick(0.01, 2, 2)

	_, err := NormalizeOrder(decimal.Zero, dec("0.5"), p)
	assert.True(t, errors.Is(err, ErrInvalidOrder))

	_, err = NormalizeOrder(dec("10"), dec("-0.5"), p)
	assert.True(t, errors.Is(err, ErrInvalidOrder))

	// 0.5 shares at 0.37 cost 0.185 → 0.18, which back-solves to 0.48 shares;
	// the exact-cost step at this price is 1 share, so nothing is left.
	_, err = NormalizeOrder(dec("0.5"), dec("0.37"), p)
	assert.True(t, errors.Is(err, ErrInvalidOrder))
}

func TestNormalizeOrder_Properties(t *testing.T) {
	ticks := []float64{0.01, 0.001}
	sizes := []string{"1", "7.77", "33.333", "125.5", "999.99", "10000.123", "48213.4"}
	prices := []string{"0.004", "0.0005", "0.015667", "0.37", "0.5", "0.915", "0.9731", "0.123456"}

	for _, tick := range ticks {
		p := PrecisionForTick(tick, 2, 2)
		for _, s := range sizes {
			for _, px := range prices {
				size, price := dec(s), dec(px)
				o, err := NormalizeOrder(size, price, p)
				if err != nil {
					require.ErrorIs(t, err, ErrInvalidOrder)
					continue
				}

				// precio sobre la grilla y dentro de rango
				assert.True(t, o.Price().Mod(p.TickSize).IsZero(), "price %s off grid", o.Price())
				assert.True(t, o.Price().GreaterThanOrEqual(p.TickSize))
				assert.True(t, o.Price().LessThanOrEqual(decimal.NewFromInt(1).Sub(p.TickSize)))

				// nunca se redondea hacia arriba
				assert.True(t, o.Size().LessThanOrEqual(size), "size %s > %s", o.Size(), size)
				assert.True(t, o.Cost().LessThanOrEqual(size.Mul(price)), "cost %s", o.Cost())

				// el coste es exacto en CostDecimals
				assert.True(t, o.Cost().Equal(o.Cost().Truncate(p.CostDecimals)), "cost %s not exact", o.Cost())
				assert.True(t, o.Cost().Equal(o.Size().Mul(o.Price())))

				// idempotente
				again, err := NormalizeOrder(o.Size(), o.Price(), p)
				require.NoError(t, err)
				assert.True(t, again.Size().Equal(o.Size()))
				assert.True(t, again.Price().Equal(o.Price()))
			}
		}
	}
}

func TestNormalizedOrder_Amounts(t *testing.T) {
	p := PrecisionForTick(0.01, 2, 4)
	o, err := NormalizeOrder(dec("12.5"), dec("0.8"), p)
	require.NoError(t, err)

	assert.Equal(t, int64(10_000_000), o.MakerAmount())
	assert.Equal(t, int64(12_500_000), o.TakerAmount())
	assert.False(t, o.IsZero())
	assert.True(t, NormalizedOrder{}.IsZero())
}
