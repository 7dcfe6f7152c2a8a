// Package controller implements a receding horizon model predictive
// controller. At every sample the controller rewrites the parameters of
// one formulated QP with the measured plant state and the previously
// applied input, solves it warm started and applies only the first
// predicted input.
package controller

import (
	"fmt"
	"time"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/milosgajdos/go-mpc/qp"
	"gonum.org/v1/gonum/mat"
)

// FaultError is a controller fault: the QP solver could not produce a
// control action for the current plant state. No fallback control law is
// applied; the caller decides whether to hold, saturate or abort.
type FaultError struct {
	// Err is the underlying solver error
	Err error
}

// Error implements the error interface.
func (e *FaultError) Error() string {
	return fmt.Sprintf("controller fault: %v", e.Err)
}

// Unwrap returns the underlying solver error.
func (e *FaultError) Unwrap() error { return e.Err }

// MPC is a receding horizon model predictive controller.
// It implements mpc.Controller.
type MPC struct {
	builder *qp.Builder
	solver  mpc.Solver
	// uprev is the input applied one sample in the past
	uprev *mat.VecDense
	// uinit is the initial previous input restored by Reset
	uinit *mat.VecDense
	// tsol is the duration of the most recent solve
	tsol time.Duration
	warm bool
}

// New creates a new MPC controller and returns it.
// It accepts the following parameters:
//   - builder: the formulated horizon QP of the controller
//   - solver:  a QP solver bound to the builder problem
//   - uinit:   the input applied before the first sample, conventionally zero
//
// It returns error if either collaborator is missing or uinit does not
// match the plant input dimension.
func New(builder *qp.Builder, solver mpc.Solver, uinit mat.Vector) (*MPC, error) {
	if builder == nil {
		return nil, fmt.Errorf("invalid QP builder")
	}
	if solver == nil {
		return nil, fmt.Errorf("invalid QP solver")
	}

	if uinit == nil {
		return nil, fmt.Errorf("invalid initial input vector")
	}
	// initializes the parametric u₋₁ entries and validates dimensions
	if err := builder.SetPrevInput(uinit); err != nil {
		return nil, err
	}

	uprev := &mat.VecDense{}
	uprev.CloneFromVec(uinit)
	u0 := &mat.VecDense{}
	u0.CloneFromVec(uinit)

	return &MPC{
		builder: builder,
		solver:  solver,
		uprev:   uprev,
		uinit:   u0,
	}, nil
}

// ComputeControl returns the control action to apply for the current
// plant state x. It updates the QP parameters, solves the program warm
// started and extracts the first predicted input, which becomes the
// stored previous input of the next call.
// It returns *FaultError if the solver reports infeasibility or failure.
func (c *MPC) ComputeControl(x mat.Vector) (mat.Vector, error) {
	if err := c.builder.SetState(x); err != nil {
		return nil, err
	}
	if err := c.builder.SetPrevInput(c.uprev); err != nil {
		return nil, err
	}

	start := time.Now()
	sol, err := c.solver.Solve(c.warm)
	c.tsol = time.Since(start)
	if err != nil {
		return nil, &FaultError{Err: err}
	}

	u, err := c.builder.FirstInput(sol.Z)
	if err != nil {
		return nil, err
	}

	c.uprev.CopyVec(u)
	c.warm = true

	return u, nil
}

// LastSolveTime returns the duration of the most recent QP solve.
func (c *MPC) LastSolveTime() time.Duration { return c.tsol }

// Horizon returns the prediction horizon length.
func (c *MPC) Horizon() int { return c.builder.Horizon() }

// Reset restores the stored previous input to its initial value and
// discards the solver warm start state.
func (c *MPC) Reset() {
	c.uprev.CopyVec(c.uinit)
	c.warm = false
	if r, ok := c.solver.(interface{ Reset() }); ok {
		r.Reset()
	}
}
