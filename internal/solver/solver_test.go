package solver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestModel(name string) *Model {
	return NewModel(name, DefaultOptions())
}

func TestSolve_LinearMaximize(t *testing.T) {
	m := newTestModel("lp")
	x := m.AddVar("x", 0, Inf, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	m.AddConstr("c1", Sum(x, y), LessEqual, 4)
	m.AddConstr("c2", Dot([]float64{1, 3}, []*Var{x, y}), LessEqual, 6)
	m.SetObjective(Dot([]float64{3, 2}, []*Var{x, y}), Maximize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 4.0, m.Value(x), 1e-7)
	assert.InDelta(t, 0.0, m.Value(y), 1e-7)
	assert.InDelta(t, 12.0, m.ObjectiveValue(), 1e-7)
}

func TestSolve_Infeasible(t *testing.T) {
	m := newTestModel("infeasible")
	x := m.AddVar("x", 2, Inf, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	m.AddConstr("sum", Sum(x, y), Equal, 1)
	m.SetObjective(Sum(x, y), Minimize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Infeasible, status)
	assert.Equal(t, 0.0, m.Value(x), "no values are exposed for infeasible models")
}

func TestSolve_EmptyRowInfeasible(t *testing.T) {
	m := newTestModel("empty-row")
	x := m.AddVar("x", 0, 10, Continuous)
	m.AddConstr("nothing", Expr{}, GreaterEqual, 5)
	m.SetObjective(Sum(x), Maximize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Infeasible, status)
}

func TestSolve_Unbounded(t *testing.T) {
	m := newTestModel("unbounded")
	x := m.AddVar("x", 0, Inf, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	m.AddConstr("c", Dot([]float64{1, -1}, []*Var{x, y}), LessEqual, 1)
	m.SetObjective(Sum(x), Maximize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unbounded, status)
}

func TestSolve_SetRHSResolves(t *testing.T) {
	m := newTestModel("rhs")
	x := m.AddVar("x", 0, Inf, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	c := m.AddConstr("target", Dot([]float64{1, 2}, []*Var{x, y}), Equal, 4)
	m.SetObjective(Sum(x, y), Minimize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 2.0, m.ObjectiveValue(), 1e-7)

	c.SetRHS(10)
	status, err = m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 5.0, m.ObjectiveValue(), 1e-7)
	assert.InDelta(t, 5.0, m.Value(y), 1e-7)
}

func TestSolve_VariableBoundsAndFreeVariables(t *testing.T) {
	m := newTestModel("bounds")
	x := m.AddVar("x", 0, 3, Continuous)
	y := m.AddVar("y", 0, 2, Continuous)
	z := m.AddVar("z", -Inf, Inf, Continuous)
	m.AddConstr("cap", Sum(x, y), LessEqual, 10)
	m.AddConstr("floor", Sum(z), GreaterEqual, -3)
	obj := Sum(x, y)
	obj.Add(-1, z)
	m.SetObjective(obj, Maximize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 3.0, m.Value(x), 1e-7)
	assert.InDelta(t, 2.0, m.Value(y), 1e-7)
	assert.InDelta(t, -3.0, m.Value(z), 1e-7)
	assert.InDelta(t, 8.0, m.ObjectiveValue(), 1e-7)
}

func TestSolve_DependentRows(t *testing.T) {
	m := newTestModel("dependent")
	x := m.AddVar("x", 0, Inf, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	m.AddConstr("a", Sum(x, y), Equal, 1)
	m.AddConstr("b", Dot([]float64{2, 2}, []*Var{x, y}), Equal, 2)
	m.SetObjective(Dot([]float64{1, 2}, []*Var{x, y}), Minimize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 1.0, m.Value(x), 1e-7)
}

func TestSolve_ExpressionConstantMovesToRHS(t *testing.T) {
	m := newTestModel("constant")
	x := m.AddVar("x", 0, Inf, Continuous)
	e := Sum(x)
	e.AddConstant(2)
	m.AddConstr("shifted", e, Equal, 5)
	m.SetObjective(Sum(x), Minimize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 3.0, m.Value(x), 1e-7)
}

func TestSolve_Knapsack(t *testing.T) {
	m := newTestModel("knapsack")
	a := m.AddVar("a", 0, 1, Binary)
	b := m.AddVar("b", 0, 1, Binary)
	c := m.AddVar("c", 0, 1, Binary)
	vars := []*Var{a, b, c}
	m.AddConstr("weight", Dot([]float64{2, 3, 1}, vars), LessEqual, 5)
	m.SetObjective(Dot([]float64{5, 4, 3}, vars), Maximize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 9.0, m.ObjectiveValue(), 1e-7)
	assert.Equal(t, 1.0, m.Value(a))
	assert.Equal(t, 1.0, m.Value(b))
	assert.Equal(t, 0.0, m.Value(c))
	assert.Greater(t, m.Nodes(), 0)
}

func TestSolve_BinaryExclusivity(t *testing.T) {
	m := newTestModel("exclusive")
	buy := m.AddVar("buy", 0, 1, Binary)
	sell := m.AddVar("sell", 0, 1, Binary)
	amount := m.AddVar("amount", 0, 100, Continuous)
	m.AddConstr("one-side", Sum(buy, sell), LessEqual, 1)
	link := Sum(amount)
	link.Add(-60, buy)
	link.Add(-60, sell)
	m.AddConstr("link", link, LessEqual, 0)
	m.SetObjective(Sum(amount), Maximize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 60.0, m.Value(amount), 1e-7)
	assert.LessOrEqual(t, m.Value(buy)+m.Value(sell), 1.0)
}

func TestSolve_InfeasibleMIP(t *testing.T) {
	m := newTestModel("infeasible-mip")
	a := m.AddVar("a", 0, 1, Binary)
	b := m.AddVar("b", 0, 1, Binary)
	m.AddConstr("half", Sum(a, b), Equal, 1.5)
	m.SetObjective(Sum(a), Minimize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Infeasible, status)
}

func TestSolve_QuadraticEqualSplit(t *testing.T) {
	m := newTestModel("qp")
	x := m.AddVar("x", 0, Inf, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	m.AddConstr("budget", Sum(x, y), Equal, 1)
	require.NoError(t, m.SetQuadraticObjective([]*Var{x, y}, mat.NewSymDense(2, []float64{1, 0, 0, 1}), Expr{}))

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 0.5, m.Value(x), 1e-7)
	assert.InDelta(t, 0.5, m.Value(y), 1e-7)
	assert.InDelta(t, 0.5, m.ObjectiveValue(), 1e-7)
}

func TestSolve_QuadraticActiveUpperBound(t *testing.T) {
	m := newTestModel("qp-bound")
	x := m.AddVar("x", 0, 0.2, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	m.AddConstr("budget", Sum(x, y), Equal, 1)
	require.NoError(t, m.SetQuadraticObjective([]*Var{x, y}, mat.NewSymDense(2, []float64{1, 0, 0, 1}), Expr{}))

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 0.2, m.Value(x), 1e-7)
	assert.InDelta(t, 0.8, m.Value(y), 1e-7)
	assert.InDelta(t, 0.68, m.ObjectiveValue(), 1e-7)
}

func TestSolve_QuadraticZeroVariance(t *testing.T) {
	m := newTestModel("qp-flat")
	x := m.AddVar("x", 0, Inf, Continuous)
	flat := m.AddVar("flat", 0, Inf, Continuous)
	m.AddConstr("budget", Sum(x, flat), Equal, 1)
	require.NoError(t, m.SetQuadraticObjective([]*Var{x, flat}, mat.NewSymDense(2, []float64{0.04, 0, 0, 0}), Expr{}))

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 0.0, m.Value(x), 1e-6)
	assert.InDelta(t, 1.0, m.Value(flat), 1e-6)
	assert.InDelta(t, 0.0, m.ObjectiveValue(), 1e-9)
}

func TestSolve_QuadraticWithTargetEquality(t *testing.T) {
	m := newTestModel("qp-target")
	w := []*Var{
		m.AddVar("a", 0, Inf, Continuous),
		m.AddVar("b", 0, Inf, Continuous),
		m.AddVar("c", 0, Inf, Continuous),
	}
	m.AddConstr("budget", Sum(w...), Equal, 1)
	target := m.AddConstr("return", Dot([]float64{0.01, 0.02, 0.03}, w), Equal, 0.02)
	sigma := mat.NewSymDense(3, []float64{
		0.04, 0.0, 0.0,
		0.0, 0.09, 0.0,
		0.0, 0.0, 0.16,
	})
	require.NoError(t, m.SetQuadraticObjective(w, sigma, Expr{}))

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	sum := m.Value(w[0]) + m.Value(w[1]) + m.Value(w[2])
	ret := 0.01*m.Value(w[0]) + 0.02*m.Value(w[1]) + 0.03*m.Value(w[2])
	assert.InDelta(t, 1.0, sum, 1e-7)
	assert.InDelta(t, 0.02, ret, 1e-9)
	first := m.ObjectiveValue()

	target.SetRHS(0.03)
	status, err = m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 1.0, m.Value(w[2]), 1e-7)
	assert.InDelta(t, 0.16, m.ObjectiveValue(), 1e-9)
	assert.Greater(t, m.ObjectiveValue(), first)

	target.SetRHS(0.05)
	status, err = m.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Infeasible, status)
}

func TestSolve_CancelledContext(t *testing.T) {
	m := newTestModel("cancelled")
	x := m.AddVar("x", 0, 1, Continuous)
	m.SetObjective(Sum(x), Maximize)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := m.Solve(ctx)
	assert.Equal(t, Unknown, status)
	assert.True(t, errors.Is(err, ErrSolverFault))
}

func TestSimplex_ObservesCancellation(t *testing.T) {
	m := newTestModel("cancelled-kernel")
	x := m.AddVar("x", 0, Inf, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	m.AddConstr("c1", Sum(x, y), LessEqual, 4)
	m.SetObjective(Sum(x, y), Maximize)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	lb, ub := m.bounds()
	res, err := m.solveLinear(ctx, lb, ub)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSolverFault))
	assert.Equal(t, Unknown, res.status)
}

func TestSolve_IterationLimitIsUnknown(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxIterations = 1
	m := NewModel("limited", opts)
	x := m.AddVar("x", 0, Inf, Continuous)
	y := m.AddVar("y", 0, Inf, Continuous)
	m.AddConstr("x-cap", Sum(x), LessEqual, 1)
	m.AddConstr("y-cap", Sum(y), LessEqual, 1)
	m.SetObjective(Sum(x, y), Maximize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unknown, status)

	opts.MaxIterations = 2
	m.opts = opts
	status, err = m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 2.0, m.ObjectiveValue(), 1e-9)
}

func TestSolve_DegenerateAssignment(t *testing.T) {
	const n = 6
	m := newTestModel("assignment")
	x := make([][]*Var, n)
	var obj Expr
	for i := 0; i < n; i++ {
		x[i] = make([]*Var, n)
		for j := 0; j < n; j++ {
			x[i][j] = m.AddVar(fmt.Sprintf("x_%d_%d", i, j), 0, Inf, Continuous)
			obj.Add(float64((i+1)*(j+1)), x[i][j])
		}
	}
	for i := 0; i < n; i++ {
		m.AddConstr(fmt.Sprintf("row_%d", i), Sum(x[i]...), Equal, 1)
		col := make([]*Var, n)
		for j := 0; j < n; j++ {
			col[j] = x[j][i]
		}
		m.AddConstr(fmt.Sprintf("col_%d", i), Sum(col...), Equal, 1)
	}
	m.SetObjective(obj, Minimize)

	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	// Pairing the largest index with the smallest is optimal.
	assert.InDelta(t, 56.0, m.ObjectiveValue(), 1e-7)
}

func TestSolve_StartSeedsIncumbent(t *testing.T) {
	build := func() (*Model, []*Var) {
		m := newTestModel("knapsack-start")
		vars := []*Var{
			m.AddVar("a", 0, 1, Binary),
			m.AddVar("b", 0, 1, Binary),
			m.AddVar("c", 0, 1, Binary),
		}
		m.AddConstr("weight", Dot([]float64{2, 3, 1}, vars), LessEqual, 5)
		m.SetObjective(Dot([]float64{5, 4, 3}, vars), Maximize)
		return m, vars
	}

	optimal, vars := build()
	for i, v := range []float64{1, 1, 0} {
		optimal.SetStart(vars[i], v)
	}
	status, err := optimal.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 9.0, optimal.ObjectiveValue(), 1e-7)

	infeasible, vars := build()
	for _, v := range vars {
		infeasible.SetStart(v, 1)
	}
	status, err = infeasible.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, Optimal, status)
	assert.InDelta(t, 9.0, infeasible.ObjectiveValue(), 1e-7)
	assert.Equal(t, 0.0, infeasible.Value(vars[2]))
}

func TestSetQuadraticObjective_DimensionMismatch(t *testing.T) {
	m := newTestModel("mismatch")
	x := m.AddVar("x", 0, Inf, Continuous)
	err := m.SetQuadraticObjective([]*Var{x}, mat.NewSymDense(2, nil), Expr{})
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "optimal", Optimal.String())
	assert.Equal(t, "infeasible", Infeasible.String())
	assert.Equal(t, "unbounded", Unbounded.String())
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "<=", LessEqual.String())
}
