package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// solveQuadratic minimizes xᵀQx + cᵀx over the model constraints. A feasible
// vertex from the simplex seeds a primal active-set method over the
// nonnegativity bounds of the standard form.
func (m *Model) solveQuadratic(ctx context.Context, lb, ub []float64) (result, error) {
	cost, _ := m.linearCost()
	sf := m.buildStandardForm(lb, ub, cost)
	if sf.infeasible {
		return result{status: Infeasible}, nil
	}
	width := len(sf.cols)

	// x = offset + S·y, so xᵀQx + cᵀx = ½yᵀHy + gᵀy + const with H = 2SᵀQS, g = 2SᵀQ·offset + Sᵀc.
	n := len(m.vars)
	q := mat.NewSymDense(n, nil)
	for i, vi := range m.quad.vars {
		for j := i; j < len(m.quad.vars); j++ {
			q.SetSym(vi.index, m.quad.vars[j].index, m.quad.q.At(i, j))
		}
	}
	qo := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			qo[i] += q.At(i, j) * sf.offset[j]
		}
	}
	H := mat.NewSymDense(width, nil)
	g := make([]float64, width)
	for k, ck := range sf.cols {
		if ck.v < 0 {
			continue
		}
		g[k] = ck.sign * (2*qo[ck.v] + cost[ck.v])
		for l := k; l < width; l++ {
			cl := sf.cols[l]
			if cl.v < 0 {
				continue
			}
			H.SetSym(k, l, 2*ck.sign*cl.sign*q.At(ck.v, cl.v))
		}
	}

	start, status, err := m.simplex(ctx, sf, make([]float64, width))
	if err != nil {
		return result{status: Unknown}, err
	}
	if status != Optimal {
		// A zero objective cannot be unbounded; anything else is reported as is.
		return result{status: status}, nil
	}

	rows, consistent := independentRows(sf.A, sf.b, m.opts.Tolerance)
	if !consistent {
		return result{status: Infeasible}, nil
	}
	A := make([][]float64, len(rows))
	for i, r := range rows {
		A[i] = sf.A[r]
	}

	y, status, err := m.activeSet(ctx, H, g, A, start)
	if err != nil || status != Optimal {
		return result{status: status}, err
	}
	x := sf.recover(y)
	return result{status: Optimal, x: x, cost: m.costAt(x)}, nil
}

// activeSet minimizes ½yᵀHy + gᵀy subject to Ay = A·y0, y ≥ 0, starting from
// the feasible point y0. The working set holds the bounds fixed at zero.
func (m *Model) activeSet(ctx context.Context, H *mat.SymDense, g []float64, A [][]float64, y0 []float64) ([]float64, Status, error) {
	n := len(y0)
	tol := m.opts.Tolerance
	y := make([]float64, n)
	fixed := make([]bool, n)
	for i, v := range y0 {
		if v > tol {
			y[i] = v
		} else {
			fixed[i] = true
		}
	}

	grad := make([]float64, n)
	for iter := 0; iter < m.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, Unknown, fmt.Errorf("%w: %v", ErrSolverFault, err)
		}
		gradNorm := 0.0
		for i := 0; i < n; i++ {
			s := g[i]
			for j := 0; j < n; j++ {
				s += H.At(i, j) * y[j]
			}
			grad[i] = s
			gradNorm = math.Max(gradNorm, math.Abs(s))
		}

		var free []int
		for i := 0; i < n; i++ {
			if !fixed[i] {
				free = append(free, i)
			}
		}

		step, nu, ok := kktStep(H, A, grad, free)
		if !ok {
			m.log.Warn().Int("iteration", iter).Msg("Active-set KKT system could not be solved")
			return nil, Unknown, nil
		}

		stepNorm, yNorm := 0.0, 1.0
		for a, i := range free {
			stepNorm = math.Max(stepNorm, math.Abs(step[a]))
			yNorm = math.Max(yNorm, math.Abs(y[i]))
		}
		if stepNorm > 1e12*yNorm {
			return nil, Unbounded, nil
		}

		if stepNorm <= 1e-10*yNorm {
			release, worst := -1, -tol*math.Max(1, gradNorm)
			for i := 0; i < n; i++ {
				if !fixed[i] {
					continue
				}
				mu := grad[i]
				for r := range A {
					mu += A[r][i] * nu[r]
				}
				if mu < worst {
					release, worst = i, mu
				}
			}
			if release < 0 {
				return y, Optimal, nil
			}
			fixed[release] = false
			continue
		}

		alpha, block := 1.0, -1
		for a, i := range free {
			if step[a] < 0 {
				if ratio := -y[i] / step[a]; ratio < alpha {
					alpha, block = ratio, i
				}
			}
		}
		for a, i := range free {
			y[i] += alpha * step[a]
			if y[i] < 0 {
				y[i] = 0
			}
		}
		if block >= 0 {
			y[block] = 0
			fixed[block] = true
		}
	}

	m.log.Warn().Int("iterations", m.opts.MaxIterations).Msg("Active-set iteration limit reached")
	return nil, Unknown, nil
}

// kktStep solves [H_FF A_Fᵀ; A_F 0][p; ν] = [−grad_F; 0] for the free indexes.
// Singular systems are retried with a small regularization.
func kktStep(H *mat.SymDense, A [][]float64, grad []float64, free []int) ([]float64, []float64, bool) {
	nf, m := len(free), len(A)
	size := nf + m
	if size == 0 {
		return nil, nil, true
	}

	K := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)
	maxDiag := 0.0
	for a, i := range free {
		for bIdx, j := range free {
			K.Set(a, bIdx, H.At(i, j))
		}
		maxDiag = math.Max(maxDiag, math.Abs(H.At(i, i)))
		for r := 0; r < m; r++ {
			K.Set(a, nf+r, A[r][i])
			K.Set(nf+r, a, A[r][i])
		}
		rhs.SetVec(a, -grad[i])
	}

	var sol mat.VecDense
	err := sol.SolveVec(K, rhs)
	if err != nil || hasNaN(&sol) {
		delta := 1e-10 * math.Max(1, maxDiag)
		for a := 0; a < nf; a++ {
			K.Set(a, a, K.At(a, a)+delta)
		}
		for r := 0; r < m; r++ {
			K.Set(nf+r, nf+r, -delta)
		}
		err = sol.SolveVec(K, rhs)
		var cond mat.Condition
		if (err != nil && !errors.As(err, &cond)) || hasNaN(&sol) {
			return nil, nil, false
		}
	}

	step := make([]float64, nf)
	for a := 0; a < nf; a++ {
		step[a] = sol.AtVec(a)
	}
	nu := make([]float64, m)
	for r := 0; r < m; r++ {
		nu[r] = sol.AtVec(nf + r)
	}
	return step, nu, true
}

func hasNaN(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
