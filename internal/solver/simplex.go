package solver

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// cancelCheckInterval is the number of pivots between context checks.
	cancelCheckInterval = 16

	// degenerateStreak is the number of consecutive degenerate pivots after
	// which entering and leaving columns are picked by Bland's rule, which
	// cannot cycle. A nondegenerate pivot switches back to Dantzig's rule.
	degenerateStreak = 30
)

// solveLinear solves the LP relaxation of the model under the given bounds.
// Binary variables are treated as continuous within their bounds.
func (m *Model) solveLinear(ctx context.Context, lb, ub []float64) (result, error) {
	cost, _ := m.linearCost()
	sf := m.buildStandardForm(lb, ub, cost)
	if sf.infeasible {
		return result{status: Infeasible}, nil
	}
	y, status, err := m.simplex(ctx, sf, sf.c)
	if err != nil {
		return result{status: Unknown}, err
	}
	if status != Optimal {
		return result{status: status}, nil
	}
	x := sf.recover(y)
	return result{status: Optimal, x: x, cost: m.costAt(x)}, nil
}

// simplex solves min cᵀy, Ay = b, y ≥ 0 with b ≥ 0 and returns the full-width y.
// Cancellation of ctx is checked between pivots and reported as a solver fault.
func (m *Model) simplex(ctx context.Context, sf *standardForm, c []float64) ([]float64, Status, error) {
	width := len(sf.cols)
	if len(sf.A) == 0 {
		for k := 0; k < width; k++ {
			if c[k] < -m.opts.Tolerance {
				return nil, Unbounded, nil
			}
		}
		return make([]float64, width), Optimal, nil
	}

	tb := newTableau(sf, m.opts.Tolerance, m.opts.MaxIterations)

	if tb.artificials > 0 {
		tb.setPhaseOneCosts()
		status, err := tb.iterate(ctx, tb.cols+tb.artificials)
		if err != nil {
			return nil, Unknown, err
		}
		if status != Optimal {
			// Phase one is bounded below by zero, so this is the pivot limit.
			m.log.Warn().Int("rows", tb.rows).Int("cols", tb.cols).Int("pivots", tb.pivots).Msg("Simplex iteration limit reached in phase one")
			return nil, Unknown, nil
		}
		if tb.objective() > tb.feasTol {
			return nil, Infeasible, nil
		}
		tb.dropArtificials()
	}

	tb.setCosts(c)
	status, err := tb.iterate(ctx, tb.cols)
	if err != nil {
		return nil, Unknown, err
	}
	if status == Unknown {
		m.log.Warn().Int("rows", tb.rows).Int("cols", tb.cols).Int("pivots", tb.pivots).Msg("Simplex iteration limit reached")
	}
	if status != Optimal {
		return nil, status, nil
	}
	return tb.solution(), Optimal, nil
}

// tableau is a dense simplex tableau. Rows 0..rows-1 hold B⁻¹A | B⁻¹b over the
// structural columns followed by the artificial columns; the last row holds
// the reduced costs and the negated objective.
type tableau struct {
	rows, cols  int
	artificials int
	rhs         int // index of the right-hand side column
	t           *mat.Dense
	basis       []int
	basic       []bool
	active      []bool // rows still in the problem; redundant rows are dropped
	tol         float64
	feasTol     float64
	limit       int
	pivots      int
}

// newTableau scales every row to a largest coefficient of one and builds the
// starting basis from columns that touch a single row (slacks and bound rows).
// Rows left without such a column get an artificial variable.
func newTableau(sf *standardForm, tol float64, limit int) *tableau {
	rows, cols := len(sf.A), len(sf.cols)

	A := make([][]float64, rows)
	b := make([]float64, rows)
	bMax := 0.0
	for i, row := range sf.A {
		A[i] = make([]float64, cols)
		copy(A[i], row)
		b[i] = sf.b[i]
		if s := floats.Norm(A[i], math.Inf(1)); s > 0 {
			floats.Scale(1/s, A[i])
			b[i] /= s
		}
		bMax = math.Max(bMax, math.Abs(b[i]))
	}

	basis := make([]int, rows)
	for i := range basis {
		basis[i] = -1
	}
	for k := 0; k < cols; k++ {
		row, count := -1, 0
		for i := 0; i < rows; i++ {
			if A[i][k] != 0 {
				row = i
				count++
			}
		}
		if count != 1 || basis[row] >= 0 {
			continue
		}
		// A negative entry only works on a zero right-hand side, which keeps
		// its sign when the row is flipped.
		if a := A[row][k]; a <= tol && (b[row] != 0 || a >= -tol) {
			continue
		}
		s := A[row][k]
		floats.Scale(1/s, A[row])
		A[row][k] = 1
		b[row] /= s
		basis[row] = k
	}

	artificials := 0
	for _, k := range basis {
		if k < 0 {
			artificials++
		}
	}

	tb := &tableau{
		rows:        rows,
		cols:        cols,
		artificials: artificials,
		rhs:         cols + artificials,
		t:           mat.NewDense(rows+1, cols+artificials+1, nil),
		basis:       basis,
		basic:       make([]bool, cols+artificials),
		active:      make([]bool, rows+1),
		tol:         tol,
		feasTol:     10 * tol * math.Max(1, bMax),
		limit:       limit,
	}

	next := cols
	for i := 0; i < rows; i++ {
		row := tb.t.RawRowView(i)
		copy(row, A[i])
		row[tb.rhs] = b[i]
		if basis[i] < 0 {
			basis[i] = next
			row[next] = 1
			next++
		}
		tb.basic[basis[i]] = true
		tb.active[i] = true
	}
	tb.active[rows] = true
	return tb
}

// setPhaseOneCosts prices the sum of the artificial variables.
func (tb *tableau) setPhaseOneCosts() {
	obj := tb.t.RawRowView(tb.rows)
	for j := range obj {
		obj[j] = 0
	}
	for i := 0; i < tb.rows; i++ {
		if tb.basis[i] >= tb.cols {
			floats.Sub(obj, tb.t.RawRowView(i))
		}
	}
	for j := tb.cols; j < tb.rhs; j++ {
		obj[j] = 0
	}
}

// setCosts prices c, scaled to a largest coefficient of one, against the current basis.
func (tb *tableau) setCosts(c []float64) {
	obj := tb.t.RawRowView(tb.rows)
	for j := range obj {
		obj[j] = 0
	}
	copy(obj, c[:tb.cols])
	if s := floats.Norm(obj[:tb.cols], math.Inf(1)); s > 0 {
		floats.Scale(1/s, obj[:tb.cols])
	}
	for i := 0; i < tb.rows; i++ {
		k := tb.basis[i]
		if !tb.active[i] || k >= tb.cols {
			continue
		}
		if ck := obj[k]; ck != 0 {
			floats.AddScaled(obj, -ck, tb.t.RawRowView(i))
			obj[k] = 0
		}
	}
}

// objective returns the current value of the priced objective.
func (tb *tableau) objective() float64 {
	return -tb.t.At(tb.rows, tb.rhs)
}

// iterate pivots until no column below allowed has a negative reduced cost.
func (tb *tableau) iterate(ctx context.Context, allowed int) (Status, error) {
	obj := tb.t.RawRowView(tb.rows)
	streak := 0
	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Unknown, fmt.Errorf("%w: %v", ErrSolverFault, err)
			}
		}

		bland := streak >= degenerateStreak
		enter := tb.entering(obj, allowed, bland)
		if enter < 0 {
			return Optimal, nil
		}
		leave := tb.leaving(enter, bland)
		if leave < 0 {
			return Unbounded, nil
		}
		if tb.pivots >= tb.limit {
			return Unknown, nil
		}

		if tb.t.At(leave, tb.rhs) <= tb.tol {
			streak++
		} else {
			streak = 0
		}
		tb.pivot(leave, enter)
	}
}

// entering picks the nonbasic column with the most negative reduced cost, or
// the first negative one under Bland's rule.
func (tb *tableau) entering(obj []float64, allowed int, bland bool) int {
	col, best := -1, -tb.tol
	for j := 0; j < allowed; j++ {
		if tb.basic[j] || obj[j] >= -tb.tol {
			continue
		}
		if bland {
			return j
		}
		if obj[j] < best {
			col, best = j, obj[j]
		}
	}
	return col
}

// leaving runs the ratio test for the entering column. Ties go to the larger
// pivot element, or to the lowest basic index under Bland's rule.
func (tb *tableau) leaving(enter int, bland bool) int {
	row, best, pivot := -1, math.Inf(1), 0.0
	for i := 0; i < tb.rows; i++ {
		if !tb.active[i] {
			continue
		}
		a := tb.t.At(i, enter)
		if a <= tb.tol {
			continue
		}
		ratio := math.Max(tb.t.At(i, tb.rhs), 0) / a
		tie := tb.tol * math.Max(1, ratio)
		switch {
		case row < 0 || ratio < best-tie:
			row, best, pivot = i, ratio, a
		case ratio <= best+tie:
			if (bland && tb.basis[i] < tb.basis[row]) || (!bland && a > pivot) {
				row, best, pivot = i, math.Min(best, ratio), a
			}
		}
	}
	return row
}

// pivot makes column col basic in row.
func (tb *tableau) pivot(row, col int) {
	pr := tb.t.RawRowView(row)
	floats.Scale(1/pr[col], pr)
	pr[col] = 1

	for i := 0; i <= tb.rows; i++ {
		if i == row || !tb.active[i] {
			continue
		}
		r := tb.t.RawRowView(i)
		f := r[col]
		if f == 0 {
			continue
		}
		floats.AddScaled(r, -f, pr)
		r[col] = 0
		if i < tb.rows && r[tb.rhs] < 0 && r[tb.rhs] > -tb.feasTol {
			r[tb.rhs] = 0
		}
	}

	tb.basic[tb.basis[row]] = false
	tb.basis[row] = col
	tb.basic[col] = true
	tb.pivots++
}

// dropArtificials pivots zero-valued artificials out of the basis after a
// feasible phase one. A row where no structural column can replace its
// artificial is a linear combination of the others and is dropped.
func (tb *tableau) dropArtificials() {
	for i := 0; i < tb.rows; i++ {
		if tb.basis[i] < tb.cols {
			continue
		}
		r := tb.t.RawRowView(i)
		col, best := -1, tb.tol
		for j := 0; j < tb.cols; j++ {
			if !tb.basic[j] && math.Abs(r[j]) > best {
				col, best = j, math.Abs(r[j])
			}
		}
		if col < 0 {
			tb.active[i] = false
			continue
		}
		r[tb.rhs] = 0
		tb.pivot(i, col)
	}
}

// solution reads the basic variables off the tableau.
func (tb *tableau) solution() []float64 {
	y := make([]float64, tb.cols)
	for i := 0; i < tb.rows; i++ {
		if k := tb.basis[i]; tb.active[i] && k < tb.cols {
			y[k] = math.Max(tb.t.At(i, tb.rhs), 0)
		}
	}
	return y
}
