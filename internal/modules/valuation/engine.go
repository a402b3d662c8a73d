// Package valuation turns weight vectors into historical performance series.
// Nothing here solves a model.
package valuation

import (
	"math"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/statistics"
	"github.com/aristath/madfolio/pkg/formulas"
	"github.com/rs/zerolog"
)

// DefaultRollingWindow is the number of period ratios in each rolling volatility point.
const DefaultRollingWindow = 21

// Engine values portfolios over price history.
type Engine struct {
	periodsPerYear float64
	rollingWindow  int
	log            zerolog.Logger
}

// NewEngine creates a valuation engine. Non-positive arguments select the defaults.
func NewEngine(periodsPerYear float64, rollingWindow int, log zerolog.Logger) *Engine {
	if periodsPerYear <= 0 {
		periodsPerYear = statistics.DefaultPeriodsPerYear
	}
	if rollingWindow < 2 {
		rollingWindow = DefaultRollingWindow
	}
	return &Engine{
		periodsPerYear: periodsPerYear,
		rollingWindow:  rollingWindow,
		log:            log.With().Str("component", "valuation").Logger(),
	}
}

// ValueAtEnd is the dollar value at the end of [from, to] of holdings bought
// just before the range and never rebalanced: the cumulative product of
// (1 + period return) over the returns dated inside the range, dotted with the
// dollar holdings.
func (e *Engine) ValueAtEnd(prices domain.PriceSeries, holdings map[string]float64, from, to time.Time) (float64, error) {
	if err := prices.Validate(); err != nil {
		return 0, err
	}
	cols := make(map[int]float64, len(holdings))
	for sym, v := range holdings {
		j := prices.Index(sym)
		if j < 0 {
			return 0, domain.NewDataError("holdings", "unknown symbol %s", sym)
		}
		cols[j] = v
	}

	growth := make([]float64, prices.Width())
	for j := range growth {
		growth[j] = 1
	}
	rows := 0
	for t, r := range statistics.Returns(prices) {
		date := prices.Dates[t+1]
		if (!from.IsZero() && date.Before(from)) || (!to.IsZero() && date.After(to)) {
			continue
		}
		for j, ret := range r {
			growth[j] *= 1 + ret
		}
		rows++
	}
	if rows == 0 {
		return 0, domain.NewDataError("range", "no returns between %s and %s", formatDate(from), formatDate(to))
	}

	value := 0.0
	for j, v := range cols {
		value += growth[j] * v
	}
	return value, nil
}

// PeriodicRebalance backtests target weights reset at the first row of every
// period. The portfolio starts at 1.0; within a period units are fixed and the
// value drifts with prices, then units are recomputed as weight·value/price.
func (e *Engine) PeriodicRebalance(prices domain.PriceSeries, freq Frequency, weights map[string]float64) (*domain.PerformanceResult, error) {
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	target, err := normalizeWeights(prices, weights)
	if err != nil {
		return nil, err
	}

	units := make([]float64, prices.Width())
	values := make([]float64, prices.Len())
	value, current, rebalances := 1.0, "", 0
	for t, row := range prices.Prices {
		if key := freq.period(prices.Dates[t]); key != current {
			current = key
			if t > 0 {
				value = dot(row, units)
			}
			for j, w := range target {
				units[j] = w * value / row[j]
			}
			rebalances++
		}
		values[t] = dot(row, units)
	}

	result := e.summarize(prices.Dates, values)
	e.log.Debug().
		Str("frequency", freq.String()).
		Int("rows", prices.Len()).
		Int("rebalances", rebalances).
		Float64("ret", result.Return).
		Msg("Backtest complete")
	return result, nil
}

// InstrumentSeries is a single instrument's price over [from, to], scaled to start at 1.0.
func (e *Engine) InstrumentSeries(prices domain.PriceSeries, symbol string, from, to time.Time) (*domain.PerformanceResult, error) {
	j := prices.Index(symbol)
	if j < 0 {
		return nil, domain.NewDataError("symbol", "unknown symbol %s", symbol)
	}
	sliced := prices.Slice(from, to)
	if err := sliced.Validate(); err != nil {
		return nil, err
	}

	col := sliced.Column(j)
	values := make([]float64, len(col))
	for t, p := range col {
		values[t] = p / col[0]
	}
	return e.summarize(sliced.Dates, values), nil
}

// summarize computes min, max, annualized return and volatility of a value
// series: ret = (last^(ppy/N) − 1)·100, vol = popstd(ratios)·sqrt(ppy)·100.
func (e *Engine) summarize(dates []time.Time, values []float64) *domain.PerformanceResult {
	series := make([]domain.PerformancePoint, len(values))
	for t, v := range values {
		series[t] = domain.PerformancePoint{Date: dates[t].Format(domain.DateLayout), Value: v}
	}
	ratios := formulas.CalculateRatios(values)
	lo, hi := formulas.MinMax(values)

	result := &domain.PerformanceResult{
		Series:     series,
		Min:        lo,
		Max:        hi,
		Return:     formulas.AnnualizedGrowth(values[len(values)-1], len(values), e.periodsPerYear),
		Volatility: formulas.AnnualizedVolatility(ratios, e.periodsPerYear),
	}

	rolling := formulas.RollingStdDev(ratios, e.rollingWindow)
	scale := math.Sqrt(e.periodsPerYear) * 100
	for i, sd := range rolling {
		// ratios[k] ends on dates[k+1]; window i ends on ratio i+window-1
		result.RollingVolatility = append(result.RollingVolatility, domain.PerformancePoint{
			Date:  dates[i+e.rollingWindow].Format(domain.DateLayout),
			Value: sd * scale,
		})
	}
	return result
}

func normalizeWeights(prices domain.PriceSeries, weights map[string]float64) ([]float64, error) {
	out := make([]float64, prices.Width())
	total := 0.0
	for sym, w := range weights {
		j := prices.Index(sym)
		if j < 0 {
			return nil, domain.NewDataError("weights", "unknown symbol %s", sym)
		}
		out[j] = w
		total += w
	}
	if total <= 0 {
		return nil, domain.NewDataError("weights", "weights must sum to a positive value")
	}
	for j := range out {
		out[j] /= total
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format(domain.DateLayout)
}
