package pricedata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/madfolio/internal/domain"
)

// ReadCSV parses a price file: a header row "date,SYM1,SYM2,..." followed by
// one row per date. Empty cells are missing observations and get filled.
// categorize assigns each symbol its category; nil applies the symbol prefix convention.
func ReadCSV(r io.Reader, categorize func(symbol string) domain.Category) (domain.PriceSeries, error) {
	if categorize == nil {
		categorize = domain.CategoryFromSymbol
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.PriceSeries{}, domain.NewDataError("csv", "empty file")
		}
		return domain.PriceSeries{}, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) < 2 {
		return domain.PriceSeries{}, domain.NewDataError("csv", "header needs a date column and at least one symbol")
	}

	columns := make([]column, len(header)-1)
	for j, sym := range header[1:] {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			return domain.PriceSeries{}, domain.NewDataError("csv", "empty symbol in column %d", j+2)
		}
		columns[j].instrument = domain.Instrument{Symbol: sym, Category: categorize(sym)}
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.PriceSeries{}, domain.NewDataError("csv", "line %d: %v", line, err)
		}
		date, err := parseDate(strings.TrimSpace(record[0]))
		if err != nil {
			return domain.PriceSeries{}, domain.NewDataError("csv", "line %d: invalid date %q", line, record[0])
		}
		for j, cell := range record[1:] {
			v := math.NaN()
			if cell = strings.TrimSpace(cell); cell != "" {
				if v, err = strconv.ParseFloat(cell, 64); err != nil {
					return domain.PriceSeries{}, domain.NewDataError("csv", "line %d: invalid price %q", line, cell)
				}
			}
			columns[j].dates = append(columns[j].dates, date)
			columns[j].values = append(columns[j].values, v)
		}
	}

	return align(columns), nil
}
