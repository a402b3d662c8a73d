package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/statistics"
	"github.com/aristath/madfolio/internal/solver"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RebalanceOptimizer moves an existing allocation to a new one at minimum
// transaction cost.
type RebalanceOptimizer struct {
	engine *statistics.Engine
	cfg    Config
	log    zerolog.Logger
}

// NewRebalanceOptimizer creates a new rebalance optimizer.
func NewRebalanceOptimizer(cfg Config, log zerolog.Logger) *RebalanceOptimizer {
	cfg = cfg.withDefaults()
	return &RebalanceOptimizer{
		engine: statistics.NewEngine(cfg.Grouping, log),
		cfg:    cfg,
		log:    log.With().Str("component", "rebalance_optimizer").Logger(),
	}
}

type rebalanceVars struct {
	sell, buy       *solver.Var
	binSell, binBuy *solver.Var
	hold            solver.Expr
	old, price      float64
}

// Rebalance solves the transaction-cost MILP over prices, which should already
// be restricted to the rebalance date range. For every instrument:
//
//	hold_i  = old_i·(1 − binBuy_i − binSell_i)
//	final_i = buy_i + sell_i + hold_i ≤ maxP
//	binSell_i + binBuy_i ≤ 1
//	old_i·binBuy_i ≤ buy_i ≤ maxP·binBuy_i
//	sell_i ≤ old_i·binSell_i
//
// so buying replaces the position by buy_i ≥ old_i, selling by sell_i ≤ old_i,
// and otherwise the old position is held. The fee is charged per unit moved at
// the closing price. Old holdings are in dollars; symbols missing from old
// start at zero.
//
// The cheapest transfer ignoring the indicators is solved first as an LP. Its
// trade directions seed branch and bound with an incumbent that the root
// relaxation cannot beat.
func (o *RebalanceOptimizer) Rebalance(ctx context.Context, prices domain.PriceSeries, old map[string]float64, params RebalanceParams) (*domain.Allocation, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	stats, err := o.engine.Compute(prices)
	if err != nil {
		return nil, err
	}
	for sym := range old {
		if prices.Index(sym) < 0 {
			return nil, domain.NewDataError("old", "holding %s has no price data", sym)
		}
	}

	start := time.Now()
	k := len(stats.Symbols)
	capacity := params.MaxPositionPercent / 100
	closing := prices.Last()

	weights := make([]float64, k)
	coefs := make([]float64, k)
	for i, sym := range stats.Symbols {
		weights[i] = old[sym] / params.Amount
		coefs[i] = o.cfg.FlatFeePerUnit * params.Amount / closing[i]
	}

	delta, status, err := o.transfer(ctx, stats, weights, coefs, capacity, params)
	if err != nil {
		return nil, fmt.Errorf("failed to solve rebalance transfer: %w", err)
	}
	if status != solver.Optimal {
		// Every final allocation the transfer LP admits is reachable by the
		// MILP and the reverse, so its verdict stands.
		o.log.Info().Int("instruments", k).Str("status", status.String()).Msg("Rebalance transfer not optimal")
		return &domain.Allocation{Status: toDomainStatus(status)}, nil
	}

	m := solver.NewModel("rebalanced_portfolio", o.cfg.Solver)
	vars := make([]rebalanceVars, k)
	final := make([]solver.Expr, k)
	var total solver.Expr
	moved := snapTolerance / params.Amount
	for i, sym := range stats.Symbols {
		v := rebalanceVars{
			sell:    m.AddVar(sym+"_sell", 0, capacity, solver.Continuous),
			buy:     m.AddVar(sym+"_buy", 0, capacity, solver.Continuous),
			binSell: m.AddVar(sym+"_binary_sell", 0, 1, solver.Binary),
			binBuy:  m.AddVar(sym+"_binary_buy", 0, 1, solver.Binary),
			old:     weights[i],
			price:   closing[i],
		}
		v.hold.AddConstant(v.old)
		v.hold.Add(-v.old, v.binBuy)
		v.hold.Add(-v.old, v.binSell)
		vars[i] = v

		final[i] = solver.Sum(v.buy, v.sell)
		final[i].AddExpr(1, v.hold)
		total.AddExpr(1, final[i])

		switch {
		case delta[i] > moved:
			m.SetStart(v.binBuy, 1)
			m.SetStart(v.binSell, 0)
		case delta[i] < -moved:
			m.SetStart(v.binBuy, 0)
			m.SetStart(v.binSell, 1)
		default:
			m.SetStart(v.binBuy, 0)
			m.SetStart(v.binSell, 0)
		}
	}

	// cost = fee·amount/price·[(buy − old·binBuy) + (old·binSell − sell)]
	var cost solver.Expr
	for i, v := range vars {
		cost.Add(coefs[i], v.buy)
		cost.Add(-coefs[i]*v.old, v.binBuy)
		cost.Add(coefs[i]*v.old, v.binSell)
		cost.Add(-coefs[i], v.sell)
	}
	m.SetObjective(cost, solver.Minimize)

	for i, sym := range stats.Symbols {
		v := vars[i]
		m.AddConstr(sym+"_one_side", solver.Sum(v.binSell, v.binBuy), solver.LessEqual, 1)
		m.AddConstr(sym+"_final_cap", final[i], solver.LessEqual, capacity)
		if v.old > capacity {
			m.AddConstr(sym+"_hold_cap", v.hold, solver.LessEqual, capacity)
		}

		buyOn := solver.Sum(v.buy)
		buyOn.Add(-capacity, v.binBuy)
		m.AddConstr(sym+"_buy_link", buyOn, solver.LessEqual, 0)

		buyFloor := solver.Sum(v.buy)
		buyFloor.Add(-v.old, v.binBuy)
		m.AddConstr(sym+"_buy_floor", buyFloor, solver.GreaterEqual, 0)

		sellOn := solver.Sum(v.sell)
		sellOn.Add(-v.old, v.binSell)
		m.AddConstr(sym+"_sell_link", sellOn, solver.LessEqual, 0)
	}

	m.AddConstr("budget", total, solver.Equal, 1)
	addMADConstraints(m, stats, final, params.RiskPercent, o.cfg.Deviation)
	addReturnFloor(m, stats, final, params.ExpectedReturn/params.Amount)

	status, err = m.Solve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to solve rebalance: %w", err)
	}

	o.log.Info().
		Int("instruments", k).
		Int("variables", m.NumVars()).
		Int("constraints", m.NumConstrs()).
		Int("nodes", m.Nodes()).
		Str("status", status.String()).
		Dur("duration", time.Since(start)).
		Msg("Rebalance solved")

	if status != solver.Optimal {
		return &domain.Allocation{Status: toDomainStatus(status)}, nil
	}

	dollars := make([]float64, k)
	for i := range vars {
		dollars[i] = m.Evaluate(final[i]) * params.Amount
	}
	alloc := buildAllocation(stats, prices, dollars, nil, o.cfg.PeriodsPerYear)
	trades, fees := o.ledger(m, stats, vars, alloc.Holdings, params.Amount)
	feeTotal := fees.InexactFloat64()
	alloc.Trades = trades
	alloc.TransactionCost = &feeTotal
	alloc.Objective = feeTotal
	return alloc, nil
}

// transfer solves the rebalance without indicators: final_i = old_i + up_i − down_i
// at cost Σ coef_i·(up_i + down_i), under the same caps, budget, MAD budget and
// return floor. It returns final_i − old_i per instrument.
func (o *RebalanceOptimizer) transfer(
	ctx context.Context,
	stats *statistics.Statistics,
	old, coefs []float64,
	capacity float64,
	params RebalanceParams,
) ([]float64, solver.Status, error) {
	m := solver.NewModel("rebalance_transfer", o.cfg.Solver)
	k := len(old)
	f := make([]*solver.Var, k)
	final := make([]solver.Expr, k)
	var cost solver.Expr
	for i, sym := range stats.Symbols {
		f[i] = m.AddVar(sym+"_final", 0, capacity, solver.Continuous)
		up := m.AddVar(sym+"_up", 0, solver.Inf, solver.Continuous)
		down := m.AddVar(sym+"_down", 0, solver.Inf, solver.Continuous)
		final[i] = solver.Sum(f[i])

		flow := solver.Sum(f[i])
		flow.Add(-1, up)
		flow.Add(1, down)
		m.AddConstr(sym+"_flow", flow, solver.Equal, old[i])

		cost.Add(coefs[i], up)
		cost.Add(coefs[i], down)
	}
	m.SetObjective(cost, solver.Minimize)
	m.AddConstr("budget", solver.Sum(f...), solver.Equal, 1)
	addMADConstraints(m, stats, final, params.RiskPercent, o.cfg.Deviation)
	addReturnFloor(m, stats, final, params.ExpectedReturn/params.Amount)

	status, err := m.Solve(ctx)
	if err != nil || status != solver.Optimal {
		return nil, status, err
	}
	delta := make([]float64, k)
	for i, v := range f {
		delta[i] = m.Value(v) - old[i]
	}
	return delta, status, nil
}

// addReturnFloor requires Σ meanReturn_i·final_i ≥ floor.
func addReturnFloor(m *solver.Model, s *statistics.Statistics, final []solver.Expr, floor float64) {
	var expected solver.Expr
	for i, mean := range s.MeanReturns {
		expected.AddExpr(mean, final[i])
	}
	m.AddConstr("expected_return", expected, solver.GreaterEqual, floor)
}

// ledger describes what happened to every instrument and totals the fees.
func (o *RebalanceOptimizer) ledger(
	m *solver.Model,
	stats *statistics.Statistics,
	vars []rebalanceVars,
	after map[string]float64,
	amount float64,
) ([]domain.Trade, decimal.Decimal) {
	fee := decimal.NewFromFloat(o.cfg.FlatFeePerUnit)
	total := decimal.Zero
	trades := make([]domain.Trade, len(vars))

	for i, v := range vars {
		sym := stats.Symbols[i]
		trade := domain.Trade{
			Symbol:   sym,
			Action:   domain.ActionHold,
			Before:   decimal.NewFromFloat(v.old * amount).Round(2),
			After:    decimal.NewFromFloat(after[sym]).Round(2),
			Units:    decimal.Zero,
			Fee:      decimal.Zero,
			Price:    v.price,
			Category: stats.Instruments[i].Category,
		}

		var moved float64
		switch {
		case m.Value(v.binBuy) > 0.5:
			trade.Action = domain.ActionBuy
			moved = (m.Value(v.buy) - v.old) * amount
		case m.Value(v.binSell) > 0.5:
			trade.Action = domain.ActionSell
			moved = (v.old - m.Value(v.sell)) * amount
		}
		if moved <= snapTolerance {
			// An indicator set without moving anything costs nothing and is a hold.
			trade.Action = domain.ActionHold
		} else {
			trade.Units = decimal.NewFromFloat(moved / v.price).Round(6)
			trade.Fee = trade.Units.Mul(fee).Round(2)
			total = total.Add(trade.Units.Mul(fee))
		}
		trades[i] = trade
	}
	return trades, total.Round(2)
}
