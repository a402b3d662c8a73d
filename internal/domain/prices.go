package domain

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the wire format for dates.
const DateLayout = "2006-01-02"

// PriceSeries is a chronological price table: one row per date, one column per instrument.
type PriceSeries struct {
	Dates       []time.Time
	Instruments []Instrument
	Prices      [][]float64
}

// Len returns the number of rows.
func (ps PriceSeries) Len() int { return len(ps.Dates) }

// Width returns the number of instruments.
func (ps PriceSeries) Width() int { return len(ps.Instruments) }

// Symbols returns the instrument symbols in column order.
func (ps PriceSeries) Symbols() []string {
	out := make([]string, len(ps.Instruments))
	for i, inst := range ps.Instruments {
		out[i] = inst.Symbol
	}
	return out
}

// Index returns the column of symbol, or -1.
func (ps PriceSeries) Index(symbol string) int {
	for i, inst := range ps.Instruments {
		if inst.Symbol == symbol {
			return i
		}
	}
	return -1
}

// Column copies the prices of one instrument.
func (ps PriceSeries) Column(j int) []float64 {
	col := make([]float64, len(ps.Prices))
	for t, row := range ps.Prices {
		col[t] = row[j]
	}
	return col
}

// Last returns the final row.
func (ps PriceSeries) Last() []float64 {
	if len(ps.Prices) == 0 {
		return nil
	}
	return ps.Prices[len(ps.Prices)-1]
}

// Validate checks the shape and values of the table.
func (ps PriceSeries) Validate() error {
	if len(ps.Instruments) == 0 {
		return NewDataError("instruments", "no instruments")
	}
	if len(ps.Dates) < 2 {
		return NewDataError("dates", "need at least 2 rows, got %d", len(ps.Dates))
	}
	if len(ps.Prices) != len(ps.Dates) {
		return NewDataError("prices", "%d rows for %d dates", len(ps.Prices), len(ps.Dates))
	}
	seen := make(map[string]bool, len(ps.Instruments))
	for _, inst := range ps.Instruments {
		if inst.Symbol == "" {
			return NewDataError("instruments", "empty symbol")
		}
		if seen[inst.Symbol] {
			return NewDataError("instruments", "duplicate symbol %s", inst.Symbol)
		}
		seen[inst.Symbol] = true
	}
	for t, row := range ps.Prices {
		if len(row) != len(ps.Instruments) {
			return NewDataError("prices", "row %d has %d values, expected %d", t, len(row), len(ps.Instruments))
		}
		if t > 0 && !ps.Dates[t].After(ps.Dates[t-1]) {
			return NewDataError("dates", "dates not ascending at row %d", t)
		}
		for j, p := range row {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return NewDataError("prices", "%s has invalid price %v on %s", ps.Instruments[j].Symbol, p, ps.Dates[t].Format(DateLayout))
			}
		}
	}
	return nil
}

// Slice returns the rows with from <= date <= to. Zero times leave that side open.
// The returned series shares row storage with ps.
func (ps PriceSeries) Slice(from, to time.Time) PriceSeries {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(ps.Dates), func(i int) bool { return !ps.Dates[i].Before(from) })
	}
	hi := len(ps.Dates)
	if !to.IsZero() {
		hi = sort.Search(len(ps.Dates), func(i int) bool { return ps.Dates[i].After(to) })
	}
	if hi < lo {
		hi = lo
	}
	return PriceSeries{
		Dates:       ps.Dates[lo:hi],
		Instruments: ps.Instruments,
		Prices:      ps.Prices[lo:hi],
	}
}

// Select keeps only the given symbols, in the given order.
func (ps PriceSeries) Select(symbols []string) (PriceSeries, error) {
	cols := make([]int, len(symbols))
	insts := make([]Instrument, len(symbols))
	for i, s := range symbols {
		j := ps.Index(s)
		if j < 0 {
			return PriceSeries{}, NewDataError("symbols", "unknown symbol %s", s)
		}
		cols[i] = j
		insts[i] = ps.Instruments[j]
	}
	prices := make([][]float64, len(ps.Prices))
	for t, row := range ps.Prices {
		out := make([]float64, len(cols))
		for i, j := range cols {
			out[i] = row[j]
		}
		prices[t] = out
	}
	return PriceSeries{Dates: ps.Dates, Instruments: insts, Prices: prices}, nil
}
