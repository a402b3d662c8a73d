// Package testing provides price fixtures and database helpers for package tests.
package testing

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/madfolio/internal/domain"
)

// FixtureStart is the first date of every generated price table.
var FixtureStart = time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewPriceSeries builds a daily price table starting at FixtureStart.
// price(t, j) is called for every row t and column j.
func NewPriceSeries(days int, symbols []string, price func(t, j int) float64) domain.PriceSeries {
	ps := domain.PriceSeries{
		Dates:       make([]time.Time, days),
		Instruments: make([]domain.Instrument, len(symbols)),
		Prices:      make([][]float64, days),
	}
	for j, s := range symbols {
		ps.Instruments[j] = domain.NewInstrument(s)
	}
	for t := 0; t < days; t++ {
		ps.Dates[t] = FixtureStart.AddDate(0, 0, t)
		row := make([]float64, len(symbols))
		for j := range symbols {
			row[j] = price(t, j)
		}
		ps.Prices[t] = row
	}
	return ps
}

// SyntheticPrices builds a deterministic table where every instrument has its
// own upward drift and oscillation, so no two columns are collinear.
func SyntheticPrices(days int, symbols ...string) domain.PriceSeries {
	return NewPriceSeries(days, symbols, func(t, j int) float64 {
		drift := 0.0002 * float64(j+1)
		amp := 0.01 * float64(j%3+1)
		freq := 0.3 + 0.17*float64(j)
		return 100 * (1 + drift*float64(t)) * (1 + amp*math.Sin(freq*float64(t)+float64(j)))
	})
}

// FlatPrices builds a table whose prices never move.
func FlatPrices(days int, symbols ...string) domain.PriceSeries {
	return NewPriceSeries(days, symbols, func(t, j int) float64 {
		return 10 * float64(j+1)
	})
}

// Portfolio4 is a small universe that satisfies the ETF cap and bond floor
// with a 40% per-position limit.
func Portfolio4() domain.PriceSeries {
	return SyntheticPrices(120, "STK1", "STK2", "BND1", "ETF1")
}

// Universe30 is a 24-stock, 4-bond, 2-ETF universe over a trading year. It is
// large enough for the default 5% position cap.
func Universe30() domain.PriceSeries {
	symbols := make([]string, 0, 30)
	for i := 1; i <= 24; i++ {
		symbols = append(symbols, fmt.Sprintf("STK%02d", i))
	}
	for i := 1; i <= 4; i++ {
		symbols = append(symbols, fmt.Sprintf("BND%d", i))
	}
	symbols = append(symbols, "ETF1", "ETF2")
	return SyntheticPrices(250, symbols...)
}
