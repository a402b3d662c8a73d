package optimization

import (
	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/statistics"
	"github.com/aristath/madfolio/internal/solver"
)

// Category limits shared by the allocation and rebalance models, as fractions of the amount.
const (
	ETFCap    = 0.05
	BondFloor = 0.10

	// madScale turns a risk percent into the MAD budget: risk·amount·0.01/2.
	madScale = 0.005

	// snapTolerance is the dollar amount below which a holding is treated as zero.
	snapTolerance = 1e-3
)

// Defaults for the public entry points.
const (
	DefaultAmount             = 1_000_000.0
	DefaultRiskPercent        = 13.0
	DefaultMaxPositionPercent = 5.0
	DefaultFlatFeePerUnit     = 7.0
	DefaultGridPoints         = 100
	DefaultMaxShortWeight     = 1.0
)

// DeviationMode selects how the MAD linking constraints bound each period's deviation.
type DeviationMode int

const (
	// Symmetric bounds |deviation| and is true mean absolute deviation.
	Symmetric DeviationMode = iota
	// OneSided only bounds the positive deviation, as the legacy model did.
	OneSided
)

// Config tunes the optimizers.
type Config struct {
	Solver         solver.Options
	Grouping       statistics.Grouping
	Deviation      DeviationMode
	PeriodsPerYear float64
	GridPoints     int
	MaxShortWeight float64
	FlatFeePerUnit float64
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Solver:         solver.DefaultOptions(),
		Grouping:       statistics.MonthOfYear,
		Deviation:      Symmetric,
		PeriodsPerYear: statistics.DefaultPeriodsPerYear,
		GridPoints:     DefaultGridPoints,
		MaxShortWeight: DefaultMaxShortWeight,
		FlatFeePerUnit: DefaultFlatFeePerUnit,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = def.PeriodsPerYear
	}
	if c.GridPoints < 2 {
		c.GridPoints = def.GridPoints
	}
	if c.MaxShortWeight <= 0 {
		c.MaxShortWeight = def.MaxShortWeight
	}
	if c.FlatFeePerUnit < 0 {
		c.FlatFeePerUnit = def.FlatFeePerUnit
	}
	return c
}

// AllocationParams are the inputs of a MAD allocation.
type AllocationParams struct {
	Amount             float64
	RiskPercent        float64
	MaxPositionPercent float64
	// Unused symbols are reported in the long list with a zero weight.
	Unused []string
}

// DefaultAllocationParams returns the legacy defaults: $1m, 13% risk, 5% per position.
func DefaultAllocationParams() AllocationParams {
	return AllocationParams{
		Amount:             DefaultAmount,
		RiskPercent:        DefaultRiskPercent,
		MaxPositionPercent: DefaultMaxPositionPercent,
	}
}

func (p AllocationParams) validate() error {
	return validateSizing(p.Amount, p.RiskPercent, p.MaxPositionPercent)
}

// RebalanceParams are the inputs of a rebalance.
type RebalanceParams struct {
	Amount             float64
	RiskPercent        float64
	ExpectedReturn     float64 // floor on Σ meanReturn·dollars
	MaxPositionPercent float64
}

// DefaultRebalanceParams returns the legacy defaults for everything but the amount.
func DefaultRebalanceParams(amount float64) RebalanceParams {
	return RebalanceParams{
		Amount:             amount,
		RiskPercent:        DefaultRiskPercent,
		MaxPositionPercent: DefaultMaxPositionPercent,
	}
}

func (p RebalanceParams) validate() error {
	return validateSizing(p.Amount, p.RiskPercent, p.MaxPositionPercent)
}

func validateSizing(amount, risk, maxP float64) error {
	switch {
	case amount <= 0:
		return domain.NewDataError("amount", "must be positive, got %v", amount)
	case risk < 0:
		return domain.NewDataError("risk", "must not be negative, got %v", risk)
	case maxP <= 0:
		return domain.NewDataError("max_position", "must be positive, got %v", maxP)
	}
	return nil
}
