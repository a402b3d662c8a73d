package valuation

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	testingpkg "github.com/aristath/madfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(0, 0, zerolog.New(nil).Level(zerolog.Disabled))
}

// stepPrices: A gains 10% a day, B never moves.
func stepPrices() domain.PriceSeries {
	table := [][]float64{{100, 50}, {110, 50}, {121, 50}}
	return testingpkg.NewPriceSeries(len(table), []string{"A", "B"}, func(t, j int) float64 {
		return table[t][j]
	})
}

func TestPeriodicRebalance_FlatPricesStayAtOne(t *testing.T) {
	prices := testingpkg.FlatPrices(90, "STK1", "BND1", "ETF1")

	for _, freq := range []Frequency{Daily, Weekly, Monthly, Quarterly, Yearly} {
		t.Run(freq.String(), func(t *testing.T) {
			result, err := newTestEngine().PeriodicRebalance(prices, freq, map[string]float64{
				"STK1": 0.5, "BND1": 0.3, "ETF1": 0.2,
			})
			require.NoError(t, err)
			require.Len(t, result.Series, 90)

			for _, p := range result.Series {
				assert.InDelta(t, 1.0, p.Value, 1e-12)
			}
			assert.InDelta(t, 1.0, result.Min, 1e-12)
			assert.InDelta(t, 1.0, result.Max, 1e-12)
			assert.InDelta(t, 0.0, result.Return, 1e-9)
			assert.InDelta(t, 0.0, result.Volatility, 1e-9)
			for _, p := range result.RollingVolatility {
				assert.InDelta(t, 0.0, p.Value, 1e-9)
			}
		})
	}
}

func TestPeriodicRebalance_DailyResetsWeights(t *testing.T) {
	result, err := newTestEngine().PeriodicRebalance(stepPrices(), Daily, map[string]float64{"A": 1, "B": 1})
	require.NoError(t, err)

	require.Len(t, result.Series, 3)
	assert.InDelta(t, 1.0, result.Series[0].Value, 1e-12)
	assert.InDelta(t, 1.05, result.Series[1].Value, 1e-12)
	assert.InDelta(t, 1.1025, result.Series[2].Value, 1e-12)
	assert.Equal(t, "2016-01-03", result.Series[2].Date)
}

func TestPeriodicRebalance_YearlyIsBuyAndHold(t *testing.T) {
	result, err := newTestEngine().PeriodicRebalance(stepPrices(), Yearly, map[string]float64{"A": 0.5, "B": 0.5})
	require.NoError(t, err)

	assert.InDelta(t, 1.105, result.Series[2].Value, 1e-12)
	assert.InDelta(t, 1.0, result.Min, 1e-12)
	assert.InDelta(t, 1.105, result.Max, 1e-12)
}

func TestPeriodicRebalance_SummaryFormulas(t *testing.T) {
	prices := testingpkg.SyntheticPrices(200, "STK1", "STK2", "BND1")
	result, err := newTestEngine().PeriodicRebalance(prices, Monthly, map[string]float64{"STK1": 1, "STK2": 1, "BND1": 2})
	require.NoError(t, err)

	last := result.Series[len(result.Series)-1].Value
	expectedRet := (math.Pow(last, 365.0/200) - 1) * 100
	assert.InDelta(t, expectedRet, result.Return, 1e-9)
	assert.Greater(t, result.Volatility, 0.0)

	// 199 ratios with a 21-wide window
	require.Len(t, result.RollingVolatility, 199-21+1)
	assert.Equal(t, result.Series[21].Date, result.RollingVolatility[0].Date)
	assert.Equal(t, result.Series[199].Date, result.RollingVolatility[len(result.RollingVolatility)-1].Date)
}

func TestPeriodicRebalance_Errors(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]float64
	}{
		{"unknown symbol", map[string]float64{"XXX": 1}},
		{"zero weights", map[string]float64{"A": 0, "B": 0}},
		{"empty weights", map[string]float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine().PeriodicRebalance(stepPrices(), Monthly, tt.weights)
			require.Error(t, err)
			assert.True(t, domain.IsDataError(err))
		})
	}
}

func TestValueAtEnd(t *testing.T) {
	prices := stepPrices()
	engine := newTestEngine()
	holdings := map[string]float64{"A": 1000, "B": 500}

	value, err := engine.ValueAtEnd(prices, holdings, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 1710.0, value, 1e-9)

	// only the return dated on the last day is inside the range
	value, err = engine.ValueAtEnd(prices, holdings, prices.Dates[2], time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 1600.0, value, 1e-9)

	_, err = engine.ValueAtEnd(prices, map[string]float64{"XXX": 1}, time.Time{}, time.Time{})
	assert.True(t, domain.IsDataError(err))

	_, err = engine.ValueAtEnd(prices, holdings, prices.Dates[0], prices.Dates[0])
	assert.True(t, domain.IsDataError(err))
}

func TestInstrumentSeries(t *testing.T) {
	prices := stepPrices()
	engine := newTestEngine()

	result, err := engine.InstrumentSeries(prices, "A", prices.Dates[1], time.Time{})
	require.NoError(t, err)
	require.Len(t, result.Series, 2)
	assert.InDelta(t, 1.0, result.Series[0].Value, 1e-12)
	assert.InDelta(t, 1.1, result.Series[1].Value, 1e-12)

	_, err = engine.InstrumentSeries(prices, "XXX", time.Time{}, time.Time{})
	assert.True(t, domain.IsDataError(err))
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in       string
		expected Frequency
		wantErr  bool
	}{
		{"", Monthly, false},
		{"monthly", Monthly, false},
		{"MS", Monthly, false},
		{"d", Daily, false},
		{"W", Weekly, false},
		{"QS", Quarterly, false},
		{"A", Yearly, false},
		{"yearly", Yearly, false},
		{"fortnightly", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseFrequency(tt.in)
			if tt.wantErr {
				assert.True(t, domain.IsDataError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestFrequencyPeriod(t *testing.T) {
	sunday := time.Date(2016, time.January, 3, 0, 0, 0, 0, time.UTC)
	monday := sunday.AddDate(0, 0, 1)

	assert.NotEqual(t, Weekly.period(sunday), Weekly.period(monday))
	assert.Equal(t, Monthly.period(sunday), Monthly.period(monday))
	assert.Equal(t, "2016-Q1", Quarterly.period(monday))
	assert.Equal(t, "2016-Q4", Quarterly.period(time.Date(2016, time.December, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2016", Yearly.period(monday))
}
