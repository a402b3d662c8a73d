// Package domain holds the types shared by the statistics, optimization and valuation modules.
package domain

import "strings"

// Category classifies an instrument for the allocation constraints.
type Category int

const (
	Equity Category = iota
	ETF
	Bond
)

func (c Category) String() string {
	switch c {
	case ETF:
		return "etf"
	case Bond:
		return "bond"
	default:
		return "equity"
	}
}

// MarshalText lets categories travel as strings in JSON and msgpack.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a category name; unknown names become Equity.
func (c *Category) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "etf":
		*c = ETF
	case "bond":
		*c = Bond
	default:
		*c = Equity
	}
	return nil
}

// CategoryFromSymbol applies the symbol prefix convention ("ETF…", "BND…").
// It is meant to be called once at ingestion.
func CategoryFromSymbol(symbol string) Category {
	switch {
	case strings.HasPrefix(symbol, "ETF"):
		return ETF
	case strings.HasPrefix(symbol, "BND"):
		return Bond
	default:
		return Equity
	}
}

// Instrument is a tradable symbol with its category.
type Instrument struct {
	Symbol   string   `json:"symbol" msgpack:"symbol"`
	Category Category `json:"category" msgpack:"category"`
}

// NewInstrument creates an instrument whose category is inferred from the symbol.
func NewInstrument(symbol string) Instrument {
	return Instrument{Symbol: symbol, Category: CategoryFromSymbol(symbol)}
}
