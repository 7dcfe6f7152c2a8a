// Package sqp solves structurally fixed convex quadratic programs with
// the SLSQP optimizer. The solver is bound to one problem at construction:
// cost and bound vectors may be mutated in place between solves, while the
// Hessian and constraint matrix are treated as fixed. Warm starting reuses
// the solver workspace and seeds each solve with the previous solution.
package sqp

import (
	"fmt"
	"math"

	"github.com/curioloop/optimizer/slsqp"
	mpc "github.com/milosgajdos/go-mpc"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config is the SLSQP solver configuration
type Config struct {
	// Accuracy is the norm accuracy of the final solution
	Accuracy float64
	// MaxIterations bounds the number of SQP iterations per solve
	MaxIterations int
}

// DefaultConfig returns the default solver configuration.
func DefaultConfig() *Config {
	return &Config{
		Accuracy:      1e-8,
		MaxIterations: 500,
	}
}

// Solver is an SLSQP backed QP solver. It implements mpc.Solver.
type Solver struct {
	prob *mpc.Problem
	opt  *slsqp.Optimizer
	ws   *slsqp.Workspace
	n    int
	// x is the solution of the most recent successful solve
	x      []float64
	warmed bool
}

// New creates a new Solver bound to problem p and returns it.
// Constraint rows whose lower and upper bounds are equal at construction
// time are treated as equality constraints; one sided rows with an
// infinite bound only generate the finite side.
// It returns error if p is invalid or the SLSQP problem fails to build.
func New(p *mpc.Problem, c *Config) (*Solver, error) {
	if p == nil {
		return nil, fmt.Errorf("invalid problem")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid problem: %v", err)
	}

	if c == nil {
		c = DefaultConfig()
	}

	n, m := p.Dims()

	objective := func(x, g []float64) float64 {
		pd := p.P.RawMatrix()
		var f float64
		for i := 0; i < n; i++ {
			row := pd.Data[i*pd.Stride : i*pd.Stride+n]
			px := floats.Dot(row, x)
			qi := p.Q.AtVec(i)
			if g != nil {
				g[i] = px + qi
			}
			f += x[i] * (0.5*px + qi)
		}
		return f
	}

	var eqCons, neqCons []slsqp.Evaluation
	for i := 0; i < m; i++ {
		row := p.A.RawRowView(i)
		lo := p.L.AtVec(i)
		hi := p.U.AtVec(i)
		ri := i

		if lo == hi {
			eqCons = append(eqCons, func(x, g []float64) float64 {
				if g != nil {
					copy(g[:n], row)
				}
				return floats.Dot(row, x) - p.L.AtVec(ri)
			})
			continue
		}
		if !math.IsInf(lo, -1) {
			neqCons = append(neqCons, func(x, g []float64) float64 {
				if g != nil {
					copy(g[:n], row)
				}
				return floats.Dot(row, x) - p.L.AtVec(ri)
			})
		}
		if !math.IsInf(hi, 1) {
			neqCons = append(neqCons, func(x, g []float64) float64 {
				if g != nil {
					for j := 0; j < n; j++ {
						g[j] = -row[j]
					}
				}
				return p.U.AtVec(ri) - floats.Dot(row, x)
			})
		}
	}

	var bounds []slsqp.Bound
	if p.Lb != nil || p.Ub != nil {
		bounds = make([]slsqp.Bound, n)
		for i := range bounds {
			bounds[i].Lower = math.Inf(-1)
			bounds[i].Upper = math.Inf(1)
			if p.Lb != nil {
				bounds[i].Lower = p.Lb[i]
			}
			if p.Ub != nil {
				bounds[i].Upper = p.Ub[i]
			}
		}
	}

	sp := &slsqp.Problem{
		N:       n,
		Object:  objective,
		EqCons:  eqCons,
		NeqCons: neqCons,
		Bounds:  bounds,
		Stop: slsqp.Termination{
			Accuracy:      c.Accuracy,
			MaxIterations: c.MaxIterations,
		},
	}

	opt, err := sp.New()
	if err != nil {
		return nil, fmt.Errorf("failed to build slsqp problem: %v", err)
	}

	return &Solver{
		prob: p,
		opt:  opt,
		ws:   opt.Init(),
		n:    n,
		x:    make([]float64, n),
	}, nil
}

// Solve solves the bound problem and returns the optimal solution.
// When warm is true the solve starts from the previous optimal point,
// otherwise from the origin. It returns *mpc.SolveError when the solver
// reports infeasible constraints or fails to certify optimality.
func (s *Solver) Solve(warm bool) (*mpc.Solution, error) {
	x0 := make([]float64, s.n)
	if warm && s.warmed {
		copy(x0, s.x)
	}

	res := s.opt.Fit(x0, s.ws)
	if !res.OK {
		status := mpc.Failed
		if res.Status == slsqp.ConsIncompatible {
			status = mpc.Infeasible
		}
		return nil, &mpc.SolveError{Status: status, Iterations: res.NumIter}
	}

	copy(s.x, res.X)
	s.warmed = true

	z := mat.NewVecDense(s.n, nil)
	for i := 0; i < s.n; i++ {
		z.SetVec(i, res.X[i])
	}

	return &mpc.Solution{
		Z:          z,
		Objective:  res.F,
		Iterations: res.NumIter,
	}, nil
}

// Reset discards the warm start state: the next solve is a cold start.
func (s *Solver) Reset() {
	s.warmed = false
}
