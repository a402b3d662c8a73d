// Package pricedata loads the immutable price history and client-submitted
// datasets, and serves them as domain.PriceSeries.
package pricedata

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/madfolio/internal/domain"
)

// column is one instrument's observations before alignment. Dates need not be
// sorted or shared with other columns; NaN marks a missing observation.
type column struct {
	instrument domain.Instrument
	dates      []time.Time
	values     []float64
}

// align puts columns on the union of their dates. Gaps are forward filled and
// leading gaps back filled, so every cell of the result holds a price unless
// a column has no observation at all.
func align(columns []column) domain.PriceSeries {
	seen := make(map[time.Time]struct{})
	for _, c := range columns {
		for _, d := range c.dates {
			seen[d] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	row := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		row[d] = i
	}

	ps := domain.PriceSeries{
		Dates:       dates,
		Instruments: make([]domain.Instrument, len(columns)),
		Prices:      make([][]float64, len(dates)),
	}
	for t := range ps.Prices {
		r := make([]float64, len(columns))
		for j := range r {
			r[j] = math.NaN()
		}
		ps.Prices[t] = r
	}

	for j, c := range columns {
		ps.Instruments[j] = c.instrument
		for k, d := range c.dates {
			if v := c.values[k]; !math.IsNaN(v) {
				ps.Prices[row[d]][j] = v
			}
		}
		fill(ps.Prices, j)
	}
	return ps
}

// fill replaces NaN cells of column j: forward first, then backward.
func fill(prices [][]float64, j int) {
	last := math.NaN()
	for t := range prices {
		if math.IsNaN(prices[t][j]) {
			prices[t][j] = last
		} else {
			last = prices[t][j]
		}
	}
	next := math.NaN()
	for t := len(prices) - 1; t >= 0; t-- {
		if math.IsNaN(prices[t][j]) {
			prices[t][j] = next
		} else {
			next = prices[t][j]
		}
	}
}

// merge joins already-aligned tables side by side on the union of their dates.
func merge(tables ...domain.PriceSeries) domain.PriceSeries {
	var columns []column
	for _, ps := range tables {
		for j, inst := range ps.Instruments {
			columns = append(columns, column{instrument: inst, dates: ps.Dates, values: ps.Column(j)})
		}
	}
	return align(columns)
}

func parseDate(s string) (time.Time, error) {
	// timestamps such as 2016-01-04T00:00:00.000Z keep only their date part
	if len(s) > len(domain.DateLayout) {
		s = s[:len(domain.DateLayout)]
	}
	return time.Parse(domain.DateLayout, s)
}
