package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/statistics"
	"github.com/aristath/madfolio/internal/solver"
	"github.com/rs/zerolog"
)

// MADOptimizer builds single-period allocations under a mean-absolute-deviation
// risk budget and efficient-frontier sweeps.
type MADOptimizer struct {
	engine *statistics.Engine
	cfg    Config
	log    zerolog.Logger
}

// NewMADOptimizer creates a new MAD optimizer.
func NewMADOptimizer(cfg Config, log zerolog.Logger) *MADOptimizer {
	cfg = cfg.withDefaults()
	return &MADOptimizer{
		engine: statistics.NewEngine(cfg.Grouping, log),
		cfg:    cfg,
		log:    log.With().Str("component", "mad_optimizer").Logger(),
	}
}

// Allocate solves the MAD allocation LP:
//
//	maximize   Σ meanReturn_i·w_i
//	subject to Σ w_i = amount
//	           Σ_{ETF} w_i ≤ 5%·amount, Σ_{Bond} w_i ≥ 10%·amount
//	           d_p ≥ ±Σ_i (periodicMean_{p,i} − meanReturn_i)·w_i
//	           Σ_p d_p ≤ risk·amount·0.005
//	           0 ≤ w_i ≤ maxP%·amount
//
// Infeasible, unbounded and unknown outcomes come back as an allocation that
// only carries the status. The error is reserved for bad input and solver faults.
func (o *MADOptimizer) Allocate(ctx context.Context, prices domain.PriceSeries, params AllocationParams) (*domain.Allocation, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	stats, err := o.engine.Compute(prices)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m := solver.NewModel("portfolio", o.cfg.Solver)
	k := len(stats.Symbols)
	capacity := params.MaxPositionPercent / 100

	w := make([]*solver.Var, k)
	final := make([]solver.Expr, k)
	for i, sym := range stats.Symbols {
		w[i] = m.AddVar(sym, 0, solver.Inf, solver.Continuous)
		final[i] = solver.Sum(w[i])
	}

	m.SetObjective(solver.Dot(stats.MeanReturns, w), solver.Maximize)
	m.AddConstr("budget", solver.Sum(w...), solver.Equal, 1)
	addCategoryConstraints(m, stats.Instruments, final)
	addMADConstraints(m, stats, final, params.RiskPercent, o.cfg.Deviation)
	for i, sym := range stats.Symbols {
		m.AddConstr("cap_"+sym, final[i], solver.LessEqual, capacity)
	}

	status, err := m.Solve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to solve allocation: %w", err)
	}

	o.log.Info().
		Int("instruments", k).
		Int("periods", len(stats.Periods)).
		Int("variables", m.NumVars()).
		Int("constraints", m.NumConstrs()).
		Str("status", status.String()).
		Dur("duration", time.Since(start)).
		Msg("Allocation solved")

	if status != solver.Optimal {
		return &domain.Allocation{Status: toDomainStatus(status)}, nil
	}

	dollars := make([]float64, k)
	for i, v := range w {
		dollars[i] = m.Value(v) * params.Amount
	}
	alloc := buildAllocation(stats, prices, dollars, params.Unused, o.cfg.PeriodsPerYear)
	alloc.Objective = m.ObjectiveValue() * params.Amount
	return alloc, nil
}
