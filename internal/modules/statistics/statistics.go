// Package statistics derives returns, periodic means and covariances from a
// price table. Everything here is a pure function of the input prices.
package statistics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultPeriodsPerYear is the calendar-day convention used for annualization.
const DefaultPeriodsPerYear = 365.0

// Grouping selects the calendar bucket used for periodic means.
type Grouping int

const (
	// MonthOfYear pools every January together, every February together, and so on.
	MonthOfYear Grouping = iota
	// YearMonth keeps each calendar month of each year separate.
	YearMonth
)

// ParseGrouping maps a config value to a Grouping. Unknown values fall back to MonthOfYear.
func ParseGrouping(name string) Grouping {
	if name == "year_month" || name == "year-month" {
		return YearMonth
	}
	return MonthOfYear
}

func (g Grouping) key(t time.Time) string {
	if g == YearMonth {
		return t.Format("2006-01")
	}
	return fmt.Sprintf("%02d", int(t.Month()))
}

// Statistics bundles everything the optimizers need from one price table.
type Statistics struct {
	Symbols     []string
	Instruments []domain.Instrument
	Rows        int // T, the number of price rows

	Returns       [][]float64 // [T-1][k] simple period returns
	Periods       []string    // period keys, ascending
	PeriodicMeans [][]float64 // [len(Periods)][k]
	MeanReturns   []float64   // [k] mean period return
	TotalReturns  []float64   // [k] last price / first price
	StdDevs       []float64   // [k] sample stdev of period returns

	Covariance       *mat.SymDense // covariance of price ratios scaled by T
	ReturnCovariance *mat.SymDense // unscaled covariance of period returns
}

// Engine computes Statistics.
type Engine struct {
	grouping Grouping
	log      zerolog.Logger
}

// NewEngine creates a statistics engine.
func NewEngine(grouping Grouping, log zerolog.Logger) *Engine {
	return &Engine{
		grouping: grouping,
		log:      log.With().Str("component", "statistics").Logger(),
	}
}

// Compute validates prices and derives all statistics from them.
func (e *Engine) Compute(prices domain.PriceSeries) (*Statistics, error) {
	if err := prices.Validate(); err != nil {
		return nil, err
	}

	returns := Returns(prices)
	periods, means := PeriodicMeans(prices.Dates[1:], returns, e.grouping)
	retCov := ReturnCovariance(returns, prices.Width())
	cov := mat.NewSymDense(prices.Width(), nil)
	cov.ScaleSym(float64(prices.Len()), retCov)

	s := &Statistics{
		Symbols:          prices.Symbols(),
		Instruments:      prices.Instruments,
		Rows:             prices.Len(),
		Returns:          returns,
		Periods:          periods,
		PeriodicMeans:    means,
		MeanReturns:      MeanReturns(returns, prices.Width()),
		TotalReturns:     TotalReturns(prices),
		StdDevs:          StdDevs(returns, prices.Width()),
		Covariance:       cov,
		ReturnCovariance: retCov,
	}

	e.log.Debug().
		Int("rows", s.Rows).
		Int("instruments", len(s.Symbols)).
		Int("periods", len(s.Periods)).
		Msg("Computed statistics")

	return s, nil
}

// Returns computes simple period returns row by row; the first row is dropped.
func Returns(prices domain.PriceSeries) [][]float64 {
	if prices.Len() < 2 {
		return nil
	}
	out := make([][]float64, prices.Len()-1)
	for t := 1; t < prices.Len(); t++ {
		prev, cur := prices.Prices[t-1], prices.Prices[t]
		row := make([]float64, len(cur))
		for j := range cur {
			row[j] = cur[j]/prev[j] - 1
		}
		out[t-1] = row
	}
	return out
}

// PeriodicMeans averages returns per calendar period. dates[t] is the date of
// returns[t]. Periods come back in ascending key order.
func PeriodicMeans(dates []time.Time, returns [][]float64, grouping Grouping) ([]string, [][]float64) {
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for t, row := range returns {
		key := grouping.key(dates[t])
		acc, ok := sums[key]
		if !ok {
			acc = make([]float64, len(row))
			sums[key] = acc
		}
		for j, r := range row {
			acc[j] += r
		}
		counts[key]++
	}

	periods := make([]string, 0, len(sums))
	for key := range sums {
		periods = append(periods, key)
	}
	sort.Strings(periods)

	means := make([][]float64, len(periods))
	for p, key := range periods {
		row := sums[key]
		n := float64(counts[key])
		for j := range row {
			row[j] /= n
		}
		means[p] = row
	}
	return periods, means
}

// MeanReturns is the mean period return per instrument.
func MeanReturns(returns [][]float64, width int) []float64 {
	out := make([]float64, width)
	for j := 0; j < width; j++ {
		out[j] = formulas.Mean(column(returns, j))
	}
	return out
}

// StdDevs is the sample standard deviation of period returns per instrument.
func StdDevs(returns [][]float64, width int) []float64 {
	out := make([]float64, width)
	for j := 0; j < width; j++ {
		out[j] = formulas.StdDev(column(returns, j))
	}
	return out
}

// TotalReturns is last price / first price per instrument.
func TotalReturns(prices domain.PriceSeries) []float64 {
	out := make([]float64, prices.Width())
	if prices.Len() == 0 {
		return out
	}
	first, last := prices.Prices[0], prices.Last()
	for j := range out {
		out[j] = last[j] / first[j]
	}
	return out
}

// ReturnCovariance is the sample covariance of period returns. With fewer than
// two return rows the covariance is undefined and reported as zero. Flat
// instruments get an all-zero row and column.
func ReturnCovariance(returns [][]float64, width int) *mat.SymDense {
	cov := mat.NewSymDense(width, nil)
	if len(returns) < 2 {
		return cov
	}
	data := make([]float64, 0, len(returns)*width)
	for _, row := range returns {
		data = append(data, row...)
	}
	stat.CovarianceMatrix(cov, mat.NewDense(len(returns), width, data), nil)
	return cov
}

// Normalize divides every column by its first price, so each instrument starts at 1.0.
func Normalize(prices domain.PriceSeries) domain.PriceSeries {
	out := domain.PriceSeries{
		Dates:       prices.Dates,
		Instruments: prices.Instruments,
		Prices:      make([][]float64, prices.Len()),
	}
	if prices.Len() == 0 {
		return out
	}
	first := prices.Prices[0]
	for t, row := range prices.Prices {
		norm := make([]float64, len(row))
		for j, p := range row {
			norm[j] = p / first[j]
		}
		out.Prices[t] = norm
	}
	return out
}

// PortfolioSeries values a weight vector on every row: Σ_j prices[t][j]·w_j.
func PortfolioSeries(prices domain.PriceSeries, weights []float64) []domain.PerformancePoint {
	out := make([]domain.PerformancePoint, prices.Len())
	for t, row := range prices.Prices {
		v := 0.0
		for j, p := range row {
			v += p * weights[j]
		}
		out[t] = domain.PerformancePoint{Date: prices.Dates[t].Format(domain.DateLayout), Value: v}
	}
	return out
}

// Annualize converts relative weights into annualized return and volatility, both in percent:
//
//	ret = ((TotalReturns·w)^(ppy/T) − 1)·100
//	vol = sqrt(wᵀΣw)·sqrt(ppy/T)·100
func Annualize(s *Statistics, weights []float64, periodsPerYear float64) (ret, vol float64) {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	growth := 0.0
	for j, w := range weights {
		growth += s.TotalReturns[j] * w
	}
	ret = formulas.AnnualizedGrowth(growth, s.Rows, periodsPerYear)

	w := mat.NewVecDense(len(weights), weights)
	variance := mat.Inner(w, s.Covariance, w)
	vol = math.Sqrt(math.Max(variance, 0)) * math.Sqrt(periodsPerYear/float64(s.Rows)) * 100
	return ret, vol
}

func column(rows [][]float64, j int) []float64 {
	col := make([]float64, len(rows))
	for t, row := range rows {
		col[t] = row[j]
	}
	return col
}
