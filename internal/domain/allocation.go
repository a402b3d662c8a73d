package domain

import "github.com/shopspring/decimal"

// Status is the outcome of an optimization as reported to callers.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusUnknown    Status = "unknown"
)

// Position is one instrument's relative weight.
type Position struct {
	Symbol string  `json:"symbol" msgpack:"symbol"`
	Weight float64 `json:"p" msgpack:"p"`
}

// PerformancePoint is one value of a performance series.
type PerformancePoint struct {
	Date  string  `json:"date" msgpack:"date"`
	Value float64 `json:"value" msgpack:"value"`
}

// TradeAction is what a rebalance does with one instrument.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
	ActionHold TradeAction = "hold"
)

// Trade is one line of a rebalance ledger.
type Trade struct {
	Symbol   string          `json:"symbol"`
	Action   TradeAction     `json:"action"`
	Before   decimal.Decimal `json:"before"`
	After    decimal.Decimal `json:"after"`
	Units    decimal.Decimal `json:"units"`
	Fee      decimal.Decimal `json:"fee"`
	Price    float64         `json:"price"`
	Category Category        `json:"category"`
}

// Allocation is the result of an allocation or rebalance.
// Only Optimal allocations carry weights; other statuses leave them empty.
type Allocation struct {
	Long            []Position         `json:"L"`
	Short           []Position         `json:"S"`
	Holdings        map[string]float64 `json:"holdings,omitempty"`
	Min             float64            `json:"min"`
	Max             float64            `json:"max"`
	Series          []PerformancePoint `json:"series"`
	Return          float64            `json:"ret"`
	Volatility      float64            `json:"vol"`
	Status          Status             `json:"status"`
	Objective       float64            `json:"objective,omitempty"`
	TransactionCost *float64           `json:"transaction_cost,omitempty"`
	Trades          []Trade            `json:"trades,omitempty"`
}

// Optimal reports whether the allocation can be used.
func (a *Allocation) Optimal() bool {
	return a != nil && a.Status == StatusOptimal
}

// Weights returns the relative weights of all positions keyed by symbol.
func (a *Allocation) Weights() map[string]float64 {
	out := make(map[string]float64, len(a.Long)+len(a.Short))
	for _, p := range a.Long {
		out[p.Symbol] += p.Weight
	}
	for _, p := range a.Short {
		out[p.Symbol] += p.Weight
	}
	return out
}

// PerformanceResult summarizes a valued weight vector over time.
type PerformanceResult struct {
	Series            []PerformancePoint `json:"series"`
	Min               float64            `json:"min"`
	Max               float64            `json:"max"`
	Return            float64            `json:"ret"`
	Volatility        float64            `json:"vol"`
	RollingVolatility []PerformancePoint `json:"rolling_vol,omitempty"`
}
