package solver

import (
	"context"
	"fmt"
	"math"
)

// pruneGap is the margin, relative to the larger of the incumbent and the
// largest cost coefficient, by which a node relaxation must beat the incumbent
// to be explored.
const pruneGap = 1e-7

type bbNode struct {
	lb []float64
	ub []float64
}

// branchAndBound solves a model with binary variables depth-first, branching on
// the most fractional binary and pruning nodes whose relaxation cannot beat the
// incumbent.
func (m *Model) branchAndBound(ctx context.Context, lb, ub []float64, binaries []int) (result, error) {
	intTol := math.Max(m.opts.Tolerance, 1e-6)
	cost, _ := m.linearCost()
	costScale := 1.0
	for _, c := range cost {
		costScale = math.Max(costScale, math.Abs(c))
	}

	best := result{status: Infeasible}
	incumbent := math.Inf(1)
	limitHit, sawUnknown := false, false

	if slb, sub, ok := m.startBounds(lb, ub, binaries); ok {
		m.nodes++
		r, err := m.solveLinear(ctx, slb, sub)
		if err != nil {
			return result{}, err
		}
		if r.status == Optimal {
			best, incumbent = r, r.cost
			m.log.Debug().Float64("cost", r.cost).Msg("Start accepted as incumbent")
		} else {
			m.log.Debug().Str("status", r.status.String()).Msg("Start rejected")
		}
	}

	stack := []bbNode{{lb: lb, ub: ub}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return result{}, fmt.Errorf("%w: %v", ErrSolverFault, err)
		}
		if m.nodes >= m.opts.MaxNodes {
			limitHit = true
			break
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		m.nodes++

		r, err := m.solveLinear(ctx, node.lb, node.ub)
		if err != nil {
			return result{}, err
		}
		switch r.status {
		case Infeasible:
			continue
		case Unbounded:
			return result{status: Unbounded}, nil
		case Unknown:
			sawUnknown = true
			continue
		}
		if r.cost >= incumbent-pruneGap*math.Max(costScale, math.Abs(incumbent)) {
			continue
		}

		branchOn, worst := -1, intTol
		for _, j := range binaries {
			frac := math.Abs(r.x[j] - math.Round(r.x[j]))
			if frac > worst {
				branchOn, worst = j, frac
			}
		}
		if branchOn < 0 {
			for _, j := range binaries {
				r.x[j] = math.Round(r.x[j])
			}
			r.cost = m.costAt(r.x)
			incumbent = r.cost
			best = r
			continue
		}

		down := bbNode{lb: clone(node.lb), ub: clone(node.ub)}
		down.ub[branchOn] = 0
		up := bbNode{lb: clone(node.lb), ub: clone(node.ub)}
		up.lb[branchOn] = 1
		if r.x[branchOn] >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	switch {
	case best.x != nil && limitHit:
		m.log.Warn().Int("nodes", m.nodes).Msg("Branch-and-bound node limit reached, returning incumbent")
		best.status = Unknown
		return best, nil
	case best.x != nil:
		return best, nil
	case limitHit || sawUnknown:
		return result{status: Unknown}, nil
	default:
		return result{status: Infeasible}, nil
	}
}

// startBounds fixes every binary with a start value. It reports false when no
// binary has one.
func (m *Model) startBounds(lb, ub []float64, binaries []int) ([]float64, []float64, bool) {
	slb, sub := clone(lb), clone(ub)
	found := false
	for _, j := range binaries {
		v := m.vars[j]
		if !v.hasStart {
			continue
		}
		fixed := math.Round(math.Min(math.Max(v.start, 0), 1))
		slb[j], sub[j] = fixed, fixed
		found = true
	}
	return slb, sub, found
}

func clone(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
