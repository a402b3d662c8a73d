package optimization

import (
	"context"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/aristath/madfolio/internal/domain"
	"github.com/aristath/madfolio/internal/modules/statistics"
	"github.com/aristath/madfolio/internal/solver"
	"github.com/rs/zerolog"
)

// FrontierPoint is the minimum risk found for one target return. Risk is nil
// when the target cannot be reached.
type FrontierPoint struct {
	Return float64       `json:"ret" msgpack:"ret"`
	Risk   *float64      `json:"vol" msgpack:"vol"`
	Status domain.Status `json:"status" msgpack:"status"`
}

// FrontierSweep walks a grid of target returns and solves
//
//	minimize   wᵀΣw
//	subject to Σ w_i = 1, Σ meanReturn_i·w_i = target
//
// for each one, changing only the right-hand side of the return row between
// solves. A sweep holds immutable inputs only; every call to Points builds its
// own model, so sweeps can be iterated repeatedly and concurrently.
type FrontierSweep struct {
	stats      *statistics.Statistics
	grid       []float64
	allowShort bool
	cfg        Config
	log        zerolog.Logger
}

// Frontier prepares an efficient-frontier sweep over the given prices.
func (o *MADOptimizer) Frontier(prices domain.PriceSeries, allowShort bool) (*FrontierSweep, error) {
	stats, err := o.engine.Compute(prices)
	if err != nil {
		return nil, err
	}
	return &FrontierSweep{
		stats:      stats,
		grid:       returnGrid(stats, o.cfg.GridPoints),
		allowShort: allowShort,
		cfg:        o.cfg,
		log:        o.log.With().Str("sweep", "frontier").Logger(),
	}, nil
}

// returnGrid spans [min mean, max mean] with n evenly spaced targets plus the
// mean of the least volatile instrument, sorted and without duplicates.
func returnGrid(s *statistics.Statistics, n int) []float64 {
	lo, hi := slices.Min(s.MeanReturns), slices.Max(s.MeanReturns)
	grid := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		grid = append(grid, lo+(hi-lo)*float64(i)/float64(n-1))
	}
	grid[n-1] = hi

	minVol := 0
	for i, sd := range s.StdDevs {
		if sd < s.StdDevs[minVol] {
			minVol = i
		}
	}
	grid = append(grid, s.MeanReturns[minVol])

	slices.Sort(grid)
	return slices.Compact(grid)
}

// Grid returns the target returns in sweep order.
func (f *FrontierSweep) Grid() []float64 {
	return slices.Clone(f.grid)
}

// Points lazily yields one point per grid target. Iteration stops at the
// first solver fault, which is yielded as the error.
func (f *FrontierSweep) Points(ctx context.Context) iter.Seq2[FrontierPoint, error] {
	return func(yield func(FrontierPoint, error) bool) {
		m, target, err := f.buildModel()
		if err != nil {
			yield(FrontierPoint{}, err)
			return
		}

		for _, ret := range f.grid {
			target.SetRHS(ret)
			status, err := m.Solve(ctx)
			if err != nil {
				yield(FrontierPoint{Return: ret, Status: domain.StatusUnknown}, fmt.Errorf("failed to solve frontier point %g: %w", ret, err))
				return
			}

			point := FrontierPoint{Return: ret, Status: toDomainStatus(status)}
			if status == solver.Optimal {
				risk := math.Sqrt(math.Max(m.ObjectiveValue(), 0))
				point.Risk = &risk
			} else {
				f.log.Debug().Float64("target", ret).Str("status", status.String()).Msg("Frontier point not reachable")
			}
			if !yield(point, nil) {
				return
			}
		}
	}
}

// All runs the whole sweep.
func (f *FrontierSweep) All(ctx context.Context) ([]FrontierPoint, error) {
	points := make([]FrontierPoint, 0, len(f.grid))
	for p, err := range f.Points(ctx) {
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	f.log.Info().
		Int("instruments", len(f.stats.Symbols)).
		Int("points", len(points)).
		Bool("allow_short", f.allowShort).
		Msg("Frontier computed")

	return points, nil
}

func (f *FrontierSweep) buildModel() (*solver.Model, *solver.Constraint, error) {
	m := solver.NewModel("frontier", f.cfg.Solver)
	lb := 0.0
	if f.allowShort {
		lb = -f.cfg.MaxShortWeight
	}

	w := make([]*solver.Var, len(f.stats.Symbols))
	for i, sym := range f.stats.Symbols {
		w[i] = m.AddVar(sym, lb, solver.Inf, solver.Continuous)
	}
	if err := m.SetQuadraticObjective(w, f.stats.ReturnCovariance, solver.Expr{}); err != nil {
		return nil, nil, fmt.Errorf("failed to set frontier objective: %w", err)
	}
	m.AddConstr("budget", solver.Sum(w...), solver.Equal, 1)
	target := m.AddConstr("target_return", solver.Dot(f.stats.MeanReturns, w), solver.Equal, 0)
	return m, target, nil
}
