package pricedata

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/aristath/madfolio/internal/domain"
)

// observation is one point of a submitted series.
type observation struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// ParseSubmission parses a client-submitted dataset:
//
//	{"AAPL": [{"date": "2016-01-04", "value": 105.35}, ...], "BND1": [...]}
//
// Columns keep their document order. Series are aligned on the union of their
// dates with forward then backward fill; null values count as missing.
func ParseSubmission(data []byte) (domain.PriceSeries, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return domain.PriceSeries{}, domain.NewDataError("data", "expected an object of symbol series")
	}

	var columns []column
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return domain.PriceSeries{}, domain.NewDataError("data", "malformed json: %v", err)
		}
		symbol := tok.(string)
		if seen[symbol] {
			return domain.PriceSeries{}, domain.NewDataError("data", "duplicate symbol %s", symbol)
		}
		seen[symbol] = true

		var points []observation
		if err := dec.Decode(&points); err != nil {
			return domain.PriceSeries{}, domain.NewDataError(symbol, "malformed series: %v", err)
		}
		col, err := toColumn(symbol, points)
		if err != nil {
			return domain.PriceSeries{}, err
		}
		columns = append(columns, col)
	}
	if _, err := dec.Token(); err != nil {
		return domain.PriceSeries{}, domain.NewDataError("data", "malformed json: %v", err)
	}

	if len(columns) == 0 {
		return domain.PriceSeries{}, domain.NewDataError("data", "no series submitted")
	}
	ps := align(columns)
	if err := ps.Validate(); err != nil {
		return domain.PriceSeries{}, err
	}
	return ps, nil
}

func toColumn(symbol string, points []observation) (column, error) {
	if len(points) == 0 {
		return column{}, domain.NewDataError(symbol, "empty series")
	}
	col := column{
		instrument: domain.NewInstrument(symbol),
		dates:      make([]time.Time, len(points)),
		values:     make([]float64, len(points)),
	}
	for i, p := range points {
		d, err := parseDate(p.Date)
		if err != nil {
			return column{}, domain.NewDataError(symbol, "invalid date %q", p.Date)
		}
		col.dates[i] = d
		col.values[i] = math.NaN()
		if p.Value != nil {
			col.values[i] = *p.Value
		}
	}
	return col, nil
}

// summary describes a dataset without its prices.
func summary(id string, ps domain.PriceSeries) DatasetInfo {
	return DatasetInfo{
		ID:      id,
		Symbols: ps.Symbols(),
		Rows:    ps.Len(),
		From:    ps.Dates[0].Format(domain.DateLayout),
		To:      ps.Dates[ps.Len()-1].Format(domain.DateLayout),
	}
}

// DatasetInfo is the public description of a stored dataset.
type DatasetInfo struct {
	ID      string   `json:"id"`
	Symbols []string `json:"symbols"`
	Rows    int      `json:"rows"`
	From    string   `json:"from"`
	To      string   `json:"to"`
}
