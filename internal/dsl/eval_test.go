package dsl

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedPrices serves canned price vectors keyed by market name and day.
type fixedPrices struct {
	prices map[string][]float64
}

func (f *fixedPrices) Price(_ context.Context, _ uuid.UUID, marketName string, t time.Time) ([]float64, error) {
	key := marketName + "/" + t.UTC().Format("2006-01-02")
	p, ok := f.prices[key]
	if !ok {
		return nil, fmt.Errorf("no price for %s", key)
	}
	return p, nil
}

func evalContext(prices map[string][]float64) EvalContext {
	return EvalContext{
		Prices:          &fixedPrices{prices: prices},
		SimulationID:    uuid.New(),
		InterestRate:    0.05,
		PresentTime:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FirstMarketName: "GAS",
	}
}

func TestEvaluateConstantExpression(t *testing.T) {
	v, err := Evaluate(context.Background(), mustParseExpr(t, "1 + 2"), evalContext(nil))
	require.NoError(t, err)
	assert.Equal(t, Number(3), v)
}

func TestEvaluateMarket(t *testing.T) {
	ec := evalContext(map[string][]float64{
		"GAS/2026-01-01": {10, 11, 12},
	})
	v, err := Evaluate(context.Background(), mustParseExpr(t, `market("GAS") - 9`), ec)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v.Vec)
}

func TestEvaluateMarketDefaultsToFirstMarket(t *testing.T) {
	ec := evalContext(map[string][]float64{
		"GAS/2026-01-01": {10},
	})
	v, err := Evaluate(context.Background(), mustParseExpr(t, `market("")`), ec)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, v.Vec)
}

func TestEvaluateWaitDiscountsAndShiftsTime(t *testing.T) {
	ec := evalContext(map[string][]float64{
		"GAS/2026-01-31": {10},
	})
	v, err := Evaluate(context.Background(), mustParseExpr(t, `wait(date("2026-01-31"), market("GAS"))`), ec)
	require.NoError(t, err)
	df := DiscountFactor(0.05, ec.PresentTime, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))
	require.Len(t, v.Vec, 1)
	assert.InDelta(t, 10*df, v.Vec[0], 1e-12)
}

func TestEvaluateFixingShiftsTimeWithoutDiscounting(t *testing.T) {
	ec := evalContext(map[string][]float64{
		"GAS/2026-01-31": {10},
	})
	v, err := Evaluate(context.Background(), mustParseExpr(t, `fixing(date("2026-01-31"), market("GAS"))`), ec)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, v.Vec)
}

func TestEvaluateSettlementDiscountsWithoutShiftingTime(t *testing.T) {
	// The body observes the market at the outer present time; only the
	// discount applies.
	ec := evalContext(map[string][]float64{
		"GAS/2026-01-01": {10},
	})
	v, err := Evaluate(context.Background(), mustParseExpr(t, `settlement(date("2026-01-31"), market("GAS"))`), ec)
	require.NoError(t, err)
	df := DiscountFactor(0.05, ec.PresentTime, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))
	require.Len(t, v.Vec, 1)
	assert.InDelta(t, 10*df, v.Vec[0], 1e-12)
}

func TestEvaluateChoiceTakesPerPathMaximum(t *testing.T) {
	ec := evalContext(map[string][]float64{
		"GAS/2026-01-01": {8, 12},
	})
	v, err := Evaluate(context.Background(), mustParseExpr(t, `choice(market("GAS") - 9, 0)`), ec)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3}, v.Vec)
}

func TestEvaluateNestedTimeShifts(t *testing.T) {
	// The inner fixing observes relative to the shifted present time.
	ec := evalContext(map[string][]float64{
		"GAS/2026-02-15": {20},
	})
	v, err := Evaluate(context.Background(),
		mustParseExpr(t, `fixing(date("2026-01-31"), fixing(date("2026-02-15"), market("GAS")))`), ec)
	require.NoError(t, err)
	assert.Equal(t, []float64{20}, v.Vec)
}

func TestEvaluateRejectsResidualNodes(t *testing.T) {
	for _, src := range []string{"x", `stub("abc")`, "f(1)"} {
		t.Run(src, func(t *testing.T) {
			_, err := Evaluate(context.Background(), mustParseExpr(t, src), evalContext(nil))
			var rerr *ReductionError
			assert.ErrorAs(t, err, &rerr)
		})
	}
}

func TestEvaluateMissingPriceSurfacesError(t *testing.T) {
	_, err := Evaluate(context.Background(), mustParseExpr(t, `market("GAS")`), evalContext(nil))
	assert.ErrorContains(t, err, "no price for GAS/2026-01-01")
}
