package solver

import (
	"math"
)

// column maps a standard-form column back to a model variable. Slack columns have v == -1.
type column struct {
	v    int
	sign float64
}

// standardForm is min cᵀy s.t. Ay = b, y ≥ 0, with x = offset + Σ sign·y.
type standardForm struct {
	offset     []float64
	cols       []column
	A          [][]float64
	b          []float64
	c          []float64
	infeasible bool
}

// buildStandardForm converts the model under the given bounds. cost is the
// linear objective over x in minimization form.
func (m *Model) buildStandardForm(lb, ub, cost []float64) *standardForm {
	tol := m.opts.Tolerance
	n := len(m.vars)
	sf := &standardForm{offset: make([]float64, n)}

	type boundRow struct {
		col   int
		width float64
	}
	var boundRows []boundRow
	varCols := make([][]int, n)

	for j := 0; j < n; j++ {
		lo, hi := lb[j], ub[j]
		switch {
		case hi < lo-tol:
			sf.infeasible = true
			return sf
		case !math.IsInf(lo, -1) && !math.IsInf(hi, 1) && hi-lo <= tol:
			sf.offset[j] = lo
		case !math.IsInf(lo, -1):
			sf.offset[j] = lo
			varCols[j] = []int{len(sf.cols)}
			sf.cols = append(sf.cols, column{v: j, sign: 1})
			if !math.IsInf(hi, 1) {
				boundRows = append(boundRows, boundRow{col: len(sf.cols) - 1, width: hi - lo})
			}
		case !math.IsInf(hi, 1):
			sf.offset[j] = hi
			varCols[j] = []int{len(sf.cols)}
			sf.cols = append(sf.cols, column{v: j, sign: -1})
		default:
			varCols[j] = []int{len(sf.cols), len(sf.cols) + 1}
			sf.cols = append(sf.cols, column{v: j, sign: 1}, column{v: j, sign: -1})
		}
	}

	slacks := len(boundRows)
	for _, c := range m.constrs {
		if c.rel != Equal {
			slacks++
		}
	}
	structural := len(sf.cols)
	for k := 0; k < slacks; k++ {
		sf.cols = append(sf.cols, column{v: -1})
	}
	width := len(sf.cols)
	nextSlack := structural

	for _, br := range boundRows {
		row := make([]float64, width)
		row[br.col] = 1
		row[nextSlack] = 1
		nextSlack++
		sf.A = append(sf.A, row)
		sf.b = append(sf.b, br.width)
	}

	coef := make([]float64, n)
	for _, c := range m.constrs {
		for j := range coef {
			coef[j] = 0
		}
		for _, t := range c.expr.Terms {
			coef[t.Var.index] += t.Coef
		}
		rhs := c.rhs - c.expr.Constant
		row := make([]float64, width)
		for j, a := range coef {
			if a == 0 {
				continue
			}
			rhs -= a * sf.offset[j]
			for _, k := range varCols[j] {
				row[k] += a * sf.cols[k].sign
			}
		}
		switch c.rel {
		case LessEqual:
			row[nextSlack] = 1
			nextSlack++
		case GreaterEqual:
			row[nextSlack] = -1
			nextSlack++
		}
		sf.A = append(sf.A, row)
		sf.b = append(sf.b, rhs)
	}

	for i := range sf.b {
		if sf.b[i] < 0 {
			sf.b[i] = -sf.b[i]
			for k := range sf.A[i] {
				sf.A[i][k] = -sf.A[i][k]
			}
		}
	}

	sf.c = make([]float64, width)
	for k, col := range sf.cols {
		if col.v >= 0 {
			sf.c[k] = cost[col.v] * col.sign
		}
	}
	return sf
}

// recover maps a standard-form point back to model variables.
func (sf *standardForm) recover(y []float64) []float64 {
	x := make([]float64, len(sf.offset))
	copy(x, sf.offset)
	for k, col := range sf.cols {
		if col.v >= 0 {
			x[col.v] += col.sign * y[k]
		}
	}
	return x
}

// independentRows drops linearly dependent rows of [A|b]. It returns false
// when a dependent row contradicts the others.
func independentRows(A [][]float64, b []float64, tol float64) ([]int, bool) {
	type basisRow struct {
		vec   []float64
		rhs   float64
		pivot int
	}
	var basis []basisRow
	var keep []int

	for i, orig := range A {
		// Rows are compared at unit scale so tiny coefficient rows, such as
		// return and deviation rows, are not mistaken for dependent ones.
		scale := math.Abs(b[i])
		for _, v := range orig {
			scale = math.Max(scale, math.Abs(v))
		}
		if scale == 0 {
			continue
		}
		r := make([]float64, len(orig))
		for k, v := range orig {
			r[k] = v / scale
		}
		rb := b[i] / scale
		for _, e := range basis {
			f := r[e.pivot] / e.vec[e.pivot]
			if f == 0 {
				continue
			}
			for k := range r {
				r[k] -= f * e.vec[k]
			}
			rb -= f * e.rhs
		}
		pivot, best := -1, 0.0
		for k, v := range r {
			if math.Abs(v) > best {
				pivot, best = k, math.Abs(v)
			}
		}
		if best <= 10*tol {
			if math.Abs(rb) > math.Sqrt(tol) {
				return nil, false
			}
			continue
		}
		basis = append(basis, basisRow{vec: r, rhs: rb, pivot: pivot})
		keep = append(keep, i)
	}
	return keep, true
}
