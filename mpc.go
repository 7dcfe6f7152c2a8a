package mpc

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Propagator propagates internal state of the system to the next step
type Propagator interface {
	// Propagate propagates internal state of the system to the next step
	Propagate(mat.Vector, mat.Vector, mat.Vector) (mat.Vector, error)
}

// Observer observes external state (output) of the system
type Observer interface {
	// Observe observes external state of the system
	Observe(mat.Vector, mat.Vector, mat.Vector) (mat.Vector, error)
}

// Plant is a model of a controlled dynamical system
type Plant interface {
	// Propagator is plant state propagator
	Propagator
	// Observer is plant output observer
	Observer
	// SystemDims returns state, input and output dimensions of the plant
	SystemDims() (nx, nu, ny int)
}

// Controller computes a control action from the measured plant state.
type Controller interface {
	// ComputeControl returns the control action to apply for the current sample
	ComputeControl(x mat.Vector) (mat.Vector, error)
}

// SolveTimer is implemented by controllers that measure the wall time
// of their most recent control computation.
type SolveTimer interface {
	// LastSolveTime returns the duration of the most recent solve
	LastSolveTime() time.Duration
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset()
}

// Problem is a convex quadratic program in the form
//
//	minimize    ½ zᵀPz + qᵀz
//	subject to  l ≤ Az ≤ u
//	            lb ≤ z ≤ ub
//
// Rows with l[i] == u[i] are equality constraints. P and A are fixed once
// the problem is built; q, l and u may be updated in place between solves.
type Problem struct {
	// P is the objective Hessian
	P *mat.Dense
	// Q is the objective linear term
	Q *mat.VecDense
	// A is the constraint matrix
	A *mat.Dense
	// L is the constraint row lower bound
	L *mat.VecDense
	// U is the constraint row upper bound
	U *mat.VecDense
	// Lb is the variable lower bound; nil means unbounded
	Lb []float64
	// Ub is the variable upper bound; nil means unbounded
	Ub []float64
}

// Dims returns the number of decision variables and constraint rows.
func (p *Problem) Dims() (n, m int) {
	n, _ = p.P.Dims()
	if p.A != nil {
		m, _ = p.A.Dims()
	}
	return n, m
}

// Validate checks problem shape consistency.
// It returns error if any matrix or vector dimension disagrees.
func (p *Problem) Validate() error {
	if p.P == nil || p.Q == nil {
		return fmt.Errorf("missing objective")
	}

	rows, cols := p.P.Dims()
	if rows != cols {
		return fmt.Errorf("invalid Hessian dimensions: [%d x %d]", rows, cols)
	}

	n := rows
	if p.Q.Len() != n {
		return fmt.Errorf("invalid linear term dimension: %d != %d", p.Q.Len(), n)
	}

	if p.A != nil {
		m, an := p.A.Dims()
		if an != n {
			return fmt.Errorf("invalid constraint matrix dimensions: [%d x %d]", m, an)
		}
		if p.L == nil || p.U == nil || p.L.Len() != m || p.U.Len() != m {
			return fmt.Errorf("invalid constraint bound dimensions")
		}
	}

	if p.Lb != nil && len(p.Lb) != n {
		return fmt.Errorf("invalid variable lower bound dimension: %d != %d", len(p.Lb), n)
	}
	if p.Ub != nil && len(p.Ub) != n {
		return fmt.Errorf("invalid variable upper bound dimension: %d != %d", len(p.Ub), n)
	}

	return nil
}

// Solution is an optimal primal solution of a Problem.
type Solution struct {
	// Z is the optimal decision vector
	Z *mat.VecDense
	// Objective is the optimal objective value
	Objective float64
	// Iterations is the number of solver iterations
	Iterations int
}

// Solver solves one structurally fixed QP whose cost and bound vectors
// may be updated in place between calls. When warm is true the solver
// reuses its internal numerical state from the previous call.
type Solver interface {
	// Solve solves the bound problem and returns the optimal solution
	Solve(warm bool) (*Solution, error)
}

// Status is the outcome reported by a QP solver.
type Status int

const (
	// Solved means an optimal solution was found
	Solved Status = iota
	// Infeasible means the constraints admit no feasible point
	Infeasible
	// Failed means the solver could not certify optimality
	Failed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Solved:
		return "solved"
	case Infeasible:
		return "infeasible"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// SolveError is returned by a Solver when no optimal solution was found.
type SolveError struct {
	// Status is the solver outcome
	Status Status
	// Iterations is the number of iterations performed before giving up
	Iterations int
}

// Error implements the error interface.
func (e *SolveError) Error() string {
	return fmt.Sprintf("qp solve %s after %d iterations", e.Status, e.Iterations)
}
