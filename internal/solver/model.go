// Package solver implements the linear, mixed-integer and convex quadratic models
// the optimizers submit. Linear relaxations are solved with a two-phase dense
// tableau simplex over gonum matrices, binaries with depth-first
// branch-and-bound, and quadratic objectives with a primal active-set method
// on the variable bounds. Every kernel observes its context between steps.
//
// A Model is single-owner: it is built, solved, read and discarded by one
// goroutine. Re-solving after SetRHS is allowed; sharing is not.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// ErrSolverFault is returned when the numeric kernel itself fails. The model
// state must not be reused after it.
var ErrSolverFault = errors.New("solver fault")

// VarKind is the domain of a variable.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
)

// Sense is the optimization direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Relation is a constraint comparison.
type Relation int

const (
	LessEqual Relation = iota
	Equal
	GreaterEqual
)

func (r Relation) String() string {
	switch r {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	default:
		return "="
	}
}

// Status is the outcome of Solve.
type Status int

const (
	Unknown Status = iota
	Optimal
	Infeasible
	Unbounded
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

// Inf is an infinite bound.
var Inf = math.Inf(1)

// Var is a decision variable.
type Var struct {
	index int
	name  string
	lb    float64
	ub    float64
	kind  VarKind

	start    float64
	hasStart bool
}

// Name returns the variable name.
func (v *Var) Name() string { return v.name }

// Kind returns the variable domain.
func (v *Var) Kind() VarKind { return v.kind }

// Term is coef·var.
type Term struct {
	Var  *Var
	Coef float64
}

// Expr is a linear expression.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Add appends coef·v.
func (e *Expr) Add(coef float64, v *Var) *Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

// AddExpr appends coef·o.
func (e *Expr) AddExpr(coef float64, o Expr) *Expr {
	for _, t := range o.Terms {
		e.Terms = append(e.Terms, Term{Var: t.Var, Coef: coef * t.Coef})
	}
	e.Constant += coef * o.Constant
	return e
}

// AddConstant adds c to the constant part.
func (e *Expr) AddConstant(c float64) *Expr {
	e.Constant += c
	return e
}

// Sum is the expression Σ v.
func Sum(vars ...*Var) Expr {
	e := Expr{Terms: make([]Term, 0, len(vars))}
	for _, v := range vars {
		e.Add(1, v)
	}
	return e
}

// Dot is the expression Σ coefs[i]·vars[i].
func Dot(coefs []float64, vars []*Var) Expr {
	e := Expr{Terms: make([]Term, 0, len(vars))}
	for i, v := range vars {
		e.Add(coefs[i], v)
	}
	return e
}

// Constraint is a linear constraint whose right-hand side can be changed between solves.
type Constraint struct {
	name string
	expr Expr
	rel  Relation
	rhs  float64
}

// Name returns the constraint name.
func (c *Constraint) Name() string { return c.name }

// RHS returns the current right-hand side.
func (c *Constraint) RHS() float64 { return c.rhs }

// SetRHS changes the right-hand side. It takes effect on the next Solve.
func (c *Constraint) SetRHS(rhs float64) { c.rhs = rhs }

// Options tune the numeric kernels.
type Options struct {
	Tolerance     float64 // zero tolerance for pivots, feasibility and integrality
	MaxNodes      int     // branch-and-bound node limit
	MaxIterations int     // pivot limit per simplex solve and active-set iteration limit
	Logger        zerolog.Logger
}

// DefaultOptions returns the settings used when none are given.
func DefaultOptions() Options {
	return Options{
		Tolerance:     1e-9,
		MaxNodes:      20000,
		MaxIterations: 20000,
		Logger:        zerolog.Nop(),
	}
}

type quadratic struct {
	vars []*Var
	q    mat.Symmetric
}

// Model is a linear, mixed-integer or quadratic optimization model.
type Model struct {
	name    string
	opts    Options
	log     zerolog.Logger
	vars    []*Var
	constrs []*Constraint

	objective Expr
	sense     Sense
	quad      *quadratic

	status Status
	values []float64
	objVal float64
	nodes  int
}

// NewModel creates an empty model.
func NewModel(name string, opts Options) *Model {
	def := DefaultOptions()
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = def.MaxNodes
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	return &Model{
		name: name,
		opts: opts,
		log:  opts.Logger.With().Str("model", name).Logger(),
	}
}

// AddVar creates a variable. Binary variables ignore lb and ub outside [0, 1].
func (m *Model) AddVar(name string, lb, ub float64, kind VarKind) *Var {
	if kind == Binary {
		lb = math.Max(lb, 0)
		ub = math.Min(ub, 1)
	}
	v := &Var{index: len(m.vars), name: name, lb: lb, ub: ub, kind: kind}
	m.vars = append(m.vars, v)
	return v
}

// SetStart records a starting value for v. When binaries have starts, branch
// and bound first solves the model with them fixed and keeps a feasible result
// as its initial incumbent.
func (m *Model) SetStart(v *Var, value float64) {
	v.start = value
	v.hasStart = true
}

// AddConstr adds expr rel rhs. The expression constant is moved to the right-hand side at solve time.
func (m *Model) AddConstr(name string, expr Expr, rel Relation, rhs float64) *Constraint {
	c := &Constraint{name: name, expr: expr, rel: rel, rhs: rhs}
	m.constrs = append(m.constrs, c)
	return c
}

// SetObjective sets a linear objective and clears any quadratic one.
func (m *Model) SetObjective(expr Expr, sense Sense) {
	m.objective = expr
	m.sense = sense
	m.quad = nil
}

// SetQuadraticObjective sets the objective to minimize xᵀQx + linear, where x
// are the given variables and Q is positive semidefinite.
func (m *Model) SetQuadraticObjective(vars []*Var, q mat.Symmetric, linear Expr) error {
	if q.SymmetricDim() != len(vars) {
		return fmt.Errorf("quadratic term has dimension %d for %d variables", q.SymmetricDim(), len(vars))
	}
	m.objective = linear
	m.sense = Minimize
	m.quad = &quadratic{vars: vars, q: q}
	return nil
}

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstrs returns the number of constraints.
func (m *Model) NumConstrs() int { return len(m.constrs) }

// Status returns the status of the last Solve.
func (m *Model) Status() Status { return m.status }

// Value returns the solved value of v, or 0 when no solution is available.
func (m *Model) Value(v *Var) float64 {
	if m.values == nil || v.index >= len(m.values) {
		return 0
	}
	return m.values[v.index]
}

// ObjectiveValue returns the objective at the solution.
func (m *Model) ObjectiveValue() float64 { return m.objVal }

// Nodes returns the branch-and-bound nodes explored by the last Solve.
func (m *Model) Nodes() int { return m.nodes }

// Evaluate computes an expression at the current solution.
func (m *Model) Evaluate(e Expr) float64 {
	total := e.Constant
	for _, t := range e.Terms {
		total += t.Coef * m.Value(t.Var)
	}
	return total
}

// result is a candidate solution in the model's variable space.
type result struct {
	status Status
	x      []float64
	cost   float64 // objective in minimization form
}

// Solve optimizes the model. Infeasible and unbounded models are reported via
// the status; the error is reserved for solver faults and cancellation.
func (m *Model) Solve(ctx context.Context) (status Status, err error) {
	m.status = Unknown
	m.values = nil
	m.objVal = 0
	m.nodes = 0
	if err := ctx.Err(); err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrSolverFault, err)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.status = Unknown
			m.values = nil
			status = Unknown
			err = fmt.Errorf("%w: %v", ErrSolverFault, r)
		}
	}()

	lb, ub := m.bounds()
	binaries := m.binaryIndexes()

	var res result
	switch {
	case m.quad != nil && len(binaries) > 0:
		return Unknown, fmt.Errorf("%w: quadratic objectives with binary variables are not supported", ErrSolverFault)
	case m.quad != nil:
		res, err = m.solveQuadratic(ctx, lb, ub)
	case len(binaries) > 0:
		res, err = m.branchAndBound(ctx, lb, ub, binaries)
	default:
		res, err = m.solveLinear(ctx, lb, ub)
	}
	if err != nil {
		m.log.Warn().Err(err).Int("nodes", m.nodes).Dur("duration", time.Since(start)).Msg("Solve aborted")
		return Unknown, err
	}

	m.status = res.status
	if res.x != nil {
		m.values = res.x
		m.objVal = m.objectiveAt(res.x)
	}

	m.log.Debug().
		Int("vars", len(m.vars)).
		Int("constraints", len(m.constrs)).
		Int("binaries", len(binaries)).
		Int("nodes", m.nodes).
		Str("status", res.status.String()).
		Float64("objective", m.objVal).
		Dur("duration", time.Since(start)).
		Msg("Model solved")

	return res.status, nil
}

func (m *Model) bounds() ([]float64, []float64) {
	lb := make([]float64, len(m.vars))
	ub := make([]float64, len(m.vars))
	for i, v := range m.vars {
		lb[i], ub[i] = v.lb, v.ub
	}
	return lb, ub
}

func (m *Model) binaryIndexes() []int {
	var out []int
	for _, v := range m.vars {
		if v.kind == Binary {
			out = append(out, v.index)
		}
	}
	return out
}

// linearCost returns the objective coefficients in minimization form plus the constant.
func (m *Model) linearCost() ([]float64, float64) {
	c := make([]float64, len(m.vars))
	sign := 1.0
	if m.sense == Maximize {
		sign = -1
	}
	for _, t := range m.objective.Terms {
		c[t.Var.index] += sign * t.Coef
	}
	return c, sign * m.objective.Constant
}

func (m *Model) objectiveAt(x []float64) float64 {
	total := m.objective.Constant
	for _, t := range m.objective.Terms {
		total += t.Coef * x[t.Var.index]
	}
	if m.quad != nil {
		n := len(m.quad.vars)
		for i := 0; i < n; i++ {
			xi := x[m.quad.vars[i].index]
			for j := 0; j < n; j++ {
				total += xi * m.quad.q.At(i, j) * x[m.quad.vars[j].index]
			}
		}
	}
	return total
}

// costAt is the objective in minimization form.
func (m *Model) costAt(x []float64) float64 {
	if m.sense == Maximize {
		return -m.objectiveAt(x)
	}
	return m.objectiveAt(x)
}
