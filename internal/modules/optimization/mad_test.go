package optimization

import (
	"context"
	"math"
	"testing"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/statistics"
	testingpkg "github.com/aristath/madfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dollarTolerance = 1e-3

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func testParams() AllocationParams {
	params := DefaultAllocationParams()
	params.MaxPositionPercent = 40
	return params
}

// madUsage is Σ_p |Σ_i (periodicMean_{p,i} − meanReturn_i)·dollars_i|.
func madUsage(t *testing.T, prices domain.PriceSeries, dollars map[string]float64) float64 {
	t.Helper()
	s, err := statistics.NewEngine(statistics.MonthOfYear, testLogger()).Compute(prices)
	require.NoError(t, err)
	total := 0.0
	for p := range s.Periods {
		dev := 0.0
		for i, sym := range s.Symbols {
			dev += (s.PeriodicMeans[p][i] - s.MeanReturns[i]) * dollars[sym]
		}
		total += math.Abs(dev)
	}
	return total
}

func TestAllocate_Invariants(t *testing.T) {
	prices := testingpkg.Portfolio4()
	params := testParams()
	opt := NewMADOptimizer(DefaultConfig(), testLogger())

	alloc, err := opt.Allocate(context.Background(), prices, params)
	require.NoError(t, err)
	require.True(t, alloc.Optimal(), "status: %s", alloc.Status)

	total, etf, bond := 0.0, 0.0, 0.0
	for sym, v := range alloc.Holdings {
		total += v
		assert.LessOrEqual(t, v, params.MaxPositionPercent/100*params.Amount+dollarTolerance, sym)
		assert.GreaterOrEqual(t, v, 0.0, sym)
		switch domain.CategoryFromSymbol(sym) {
		case domain.ETF:
			etf += v
		case domain.Bond:
			bond += v
		}
	}
	assert.InDelta(t, params.Amount, total, 1e-6*params.Amount)
	assert.LessOrEqual(t, etf, ETFCap*params.Amount+dollarTolerance)
	assert.GreaterOrEqual(t, bond, BondFloor*params.Amount-dollarTolerance)
	assert.LessOrEqual(t, madUsage(t, prices, alloc.Holdings), params.RiskPercent*madScale*params.Amount+dollarTolerance)

	weightSum := 0.0
	for _, p := range alloc.Long {
		weightSum += p.Weight
	}
	assert.InDelta(t, 1.0, weightSum, 1e-9)
	assert.Empty(t, alloc.Short)

	require.Len(t, alloc.Series, prices.Len())
	assert.Equal(t, "2016-01-01", alloc.Series[0].Date)
	assert.InDelta(t, 1.0, alloc.Series[0].Value, 1e-9)
	assert.LessOrEqual(t, alloc.Min, alloc.Max)
	assert.Greater(t, alloc.Volatility, 0.0)
	assert.Greater(t, alloc.Objective, 0.0)
}

func TestAllocate_DefaultParametersOnWideUniverse(t *testing.T) {
	prices := testingpkg.Universe30()
	params := DefaultAllocationParams()

	alloc, err := NewMADOptimizer(DefaultConfig(), testLogger()).Allocate(context.Background(), prices, params)
	require.NoError(t, err)
	require.True(t, alloc.Optimal(), "status: %s", alloc.Status)

	limit := params.MaxPositionPercent / 100 * params.Amount
	total, etf, bond, held := 0.0, 0.0, 0.0, 0
	for sym, v := range alloc.Holdings {
		total += v
		assert.LessOrEqual(t, v, limit+dollarTolerance, sym)
		assert.GreaterOrEqual(t, v, 0.0, sym)
		if v > 0 {
			held++
		}
		switch domain.CategoryFromSymbol(sym) {
		case domain.ETF:
			etf += v
		case domain.Bond:
			bond += v
		}
	}
	assert.InDelta(t, params.Amount, total, 1e-6*params.Amount)
	assert.LessOrEqual(t, etf, ETFCap*params.Amount+dollarTolerance)
	assert.GreaterOrEqual(t, bond, BondFloor*params.Amount-dollarTolerance)
	assert.LessOrEqual(t, madUsage(t, prices, alloc.Holdings), params.RiskPercent*madScale*params.Amount+dollarTolerance)
	assert.GreaterOrEqual(t, held, 20, "a 5% cap needs at least twenty positions")
}

func TestAllocate_NoBondInstrumentIsInfeasible(t *testing.T) {
	// Two instruments, three months, identical uncorrelated oscillations.
	prices := testingpkg.NewPriceSeries(75, []string{"AAA", "BBB"}, func(t, j int) float64 {
		if j == 0 {
			return 100 * (1 + 0.01*math.Sin(float64(t)))
		}
		return 100 * (1 + 0.01*math.Cos(float64(t)))
	})
	opt := NewMADOptimizer(DefaultConfig(), testLogger())

	alloc, err := opt.Allocate(context.Background(), prices, DefaultAllocationParams())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInfeasible, alloc.Status)
	assert.False(t, alloc.Optimal())
	assert.Empty(t, alloc.Long)
	assert.Empty(t, alloc.Holdings)
}

func TestAllocate_AllETFIsInfeasible(t *testing.T) {
	prices := testingpkg.SyntheticPrices(60, "ETF1", "ETF2", "ETF3")
	opt := NewMADOptimizer(DefaultConfig(), testLogger())

	params := DefaultAllocationParams()
	params.MaxPositionPercent = 100
	alloc, err := opt.Allocate(context.Background(), prices, params)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInfeasible, alloc.Status)
	assert.Empty(t, alloc.Long)
}

func TestAllocate_Deterministic(t *testing.T) {
	prices := testingpkg.Portfolio4()
	opt := NewMADOptimizer(DefaultConfig(), testLogger())

	first, err := opt.Allocate(context.Background(), prices, testParams())
	require.NoError(t, err)
	second, err := opt.Allocate(context.Background(), prices, testParams())
	require.NoError(t, err)

	assert.Equal(t, first.Long, second.Long)
	assert.InDelta(t, first.Objective, second.Objective, 1e-9)
}

func TestAllocate_UnusedSymbolsListedFirst(t *testing.T) {
	opt := NewMADOptimizer(DefaultConfig(), testLogger())
	params := testParams()
	params.Unused = []string{"XYZ", "STK1", "XYZ"}

	alloc, err := opt.Allocate(context.Background(), testingpkg.Portfolio4(), params)
	require.NoError(t, err)
	require.True(t, alloc.Optimal())

	require.Len(t, alloc.Long, 5)
	assert.Equal(t, domain.Position{Symbol: "XYZ", Weight: 0}, alloc.Long[0])
	count := 0
	for _, p := range alloc.Long {
		if p.Symbol == "STK1" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAllocate_FlatInstrument(t *testing.T) {
	prices := testingpkg.NewPriceSeries(120, []string{"STK1", "STK2", "BND1"}, func(t, j int) float64 {
		if j == 2 {
			return 50
		}
		return 100 * (1 + 0.0005*float64(j+1)*float64(t)) * (1 + 0.01*math.Sin(0.4*float64(t)+float64(j)))
	})
	opt := NewMADOptimizer(DefaultConfig(), testLogger())

	params := DefaultAllocationParams()
	params.MaxPositionPercent = 60
	alloc, err := opt.Allocate(context.Background(), prices, params)
	require.NoError(t, err)
	require.True(t, alloc.Optimal(), "status: %s", alloc.Status)
	assert.GreaterOrEqual(t, alloc.Holdings["BND1"], BondFloor*params.Amount-dollarTolerance)
}

func TestAllocate_OneSidedDeviationIsLooser(t *testing.T) {
	prices := testingpkg.Portfolio4()
	params := testParams()
	params.RiskPercent = 2

	symmetric, err := NewMADOptimizer(DefaultConfig(), testLogger()).Allocate(context.Background(), prices, params)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Deviation = OneSided
	oneSided, err := NewMADOptimizer(cfg, testLogger()).Allocate(context.Background(), prices, params)
	require.NoError(t, err)

	require.True(t, oneSided.Optimal())
	if symmetric.Optimal() {
		assert.GreaterOrEqual(t, oneSided.Objective, symmetric.Objective-1e-6)
	}
}

func TestAllocate_DataErrors(t *testing.T) {
	opt := NewMADOptimizer(DefaultConfig(), testLogger())
	prices := testingpkg.Portfolio4()

	tests := []struct {
		name   string
		prices domain.PriceSeries
		params func(p *AllocationParams)
	}{
		{"zero amount", prices, func(p *AllocationParams) { p.Amount = 0 }},
		{"negative risk", prices, func(p *AllocationParams) { p.RiskPercent = -1 }},
		{"zero max position", prices, func(p *AllocationParams) { p.MaxPositionPercent = 0 }},
		{"single row", prices.Slice(testingpkg.FixtureStart, testingpkg.FixtureStart), func(p *AllocationParams) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			tt.params(&params)
			alloc, err := opt.Allocate(context.Background(), tt.prices, params)
			require.Error(t, err)
			assert.Nil(t, alloc)
			assert.True(t, domain.IsDataError(err))
		})
	}
}
