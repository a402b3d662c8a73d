package optimization

import (
	"math"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/statistics"
	"github.com/aristath/madfolio/internal/solver"
	"github.com/aristath/madfolio/pkg/formulas"
)

// All models are solved in units of the requested amount: a variable value of
// 0.05 means 5% of the amount. Results are scaled back to dollars.

// addCategoryConstraints caps ETFs and floors bonds. An empty category still
// gets its row, so a universe without bonds is infeasible rather than ignored.
func addCategoryConstraints(m *solver.Model, instruments []domain.Instrument, final []solver.Expr) {
	var etf, bond solver.Expr
	for i, inst := range instruments {
		switch inst.Category {
		case domain.ETF:
			etf.AddExpr(1, final[i])
		case domain.Bond:
			bond.AddExpr(1, final[i])
		}
	}
	m.AddConstr("etf_cap", etf, solver.LessEqual, ETFCap)
	m.AddConstr("bond_floor", bond, solver.GreaterEqual, BondFloor)
}

// addMADConstraints adds one deviation variable per period, the linking rows
// d_p ≥ Σ_i (periodicMean_{p,i} − meanReturn_i)·final_i (and its mirror when
// symmetric) and the budget Σ_p d_p ≤ risk·0.005.
func addMADConstraints(m *solver.Model, s *statistics.Statistics, final []solver.Expr, riskPercent float64, mode DeviationMode) []*solver.Var {
	devs := make([]*solver.Var, len(s.Periods))
	for p, period := range s.Periods {
		devs[p] = m.AddVar("d_"+period, 0, solver.Inf, solver.Continuous)

		var deviation solver.Expr
		for i, pm := range s.PeriodicMeans[p] {
			deviation.AddExpr(pm-s.MeanReturns[i], final[i])
		}

		upper := solver.Sum(devs[p])
		upper.AddExpr(-1, deviation)
		m.AddConstr("mad_upper_"+period, upper, solver.GreaterEqual, 0)

		if mode == Symmetric {
			lower := solver.Sum(devs[p])
			lower.AddExpr(1, deviation)
			m.AddConstr("mad_lower_"+period, lower, solver.GreaterEqual, 0)
		}
	}
	m.AddConstr("mad_budget", solver.Sum(devs...), solver.LessEqual, riskPercent*madScale)
	return devs
}

func toDomainStatus(s solver.Status) domain.Status {
	switch s {
	case solver.Optimal:
		return domain.StatusOptimal
	case solver.Infeasible:
		return domain.StatusInfeasible
	case solver.Unbounded:
		return domain.StatusUnbounded
	default:
		return domain.StatusUnknown
	}
}

// buildAllocation turns solved dollar holdings into the reported allocation:
// near-zero holdings are snapped to zero, the rest normalized to weights and
// split into long and short lists, then valued over the price history.
func buildAllocation(
	s *statistics.Statistics,
	prices domain.PriceSeries,
	dollars []float64,
	unused []string,
	periodsPerYear float64,
) *domain.Allocation {
	total := 0.0
	for i, v := range dollars {
		if math.Abs(v) <= snapTolerance {
			dollars[i] = 0
		}
		total += dollars[i]
	}

	weights := make([]float64, len(dollars))
	if total != 0 {
		for i, v := range dollars {
			weights[i] = v / total
		}
	}

	alloc := &domain.Allocation{
		Long:     make([]domain.Position, 0, len(unused)+len(dollars)),
		Short:    []domain.Position{},
		Holdings: make(map[string]float64, len(dollars)),
		Status:   domain.StatusOptimal,
	}

	seen := make(map[string]bool, len(s.Symbols))
	for _, sym := range s.Symbols {
		seen[sym] = true
	}
	for _, sym := range unused {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		alloc.Long = append(alloc.Long, domain.Position{Symbol: sym, Weight: 0})
	}

	for i, sym := range s.Symbols {
		alloc.Holdings[sym] = dollars[i]
		pos := domain.Position{Symbol: sym, Weight: weights[i]}
		if weights[i] < 0 {
			alloc.Short = append(alloc.Short, pos)
		} else {
			alloc.Long = append(alloc.Long, pos)
		}
	}

	alloc.Series = statistics.PortfolioSeries(statistics.Normalize(prices), weights)
	values := make([]float64, len(alloc.Series))
	for t, pt := range alloc.Series {
		values[t] = pt.Value
	}
	alloc.Min, alloc.Max = formulas.MinMax(values)
	alloc.Return, alloc.Volatility = statistics.Annualize(s, weights, periodsPerYear)
	return alloc
}
