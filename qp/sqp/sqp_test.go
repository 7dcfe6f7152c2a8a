package sqp

import (
	"errors"
	"math"
	"testing"

	mpc "github.com/milosgajdos/go-mpc"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// min ½(x₁² + x₂²) - x₁  s.t.  x₁ + x₂ = 1
// optimum: x = [1, 0], f = -0.5
func eqProblem() *mpc.Problem {
	return &mpc.Problem{
		P: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		Q: mat.NewVecDense(2, []float64{-1, 0}),
		A: mat.NewDense(1, 2, []float64{1, 1}),
		L: mat.NewVecDense(1, []float64{1}),
		U: mat.NewVecDense(1, []float64{1}),
	}
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	s, err := New(eqProblem(), nil)
	assert.NoError(err)
	assert.NotNil(s)

	// nil problem
	s, err = New(nil, nil)
	assert.Nil(s)
	assert.Error(err)

	// inconsistent problem shapes
	p := eqProblem()
	p.Q = mat.NewVecDense(3, nil)
	s, err = New(p, nil)
	assert.Nil(s)
	assert.Error(err)
}

func TestSolveEquality(t *testing.T) {
	assert := assert.New(t)

	s, err := New(eqProblem(), nil)
	assert.NoError(err)

	sol, err := s.Solve(false)
	assert.NoError(err)
	assert.NotNil(sol)

	assert.InDelta(1.0, sol.Z.AtVec(0), 1e-6)
	assert.InDelta(0.0, sol.Z.AtVec(1), 1e-6)
	assert.InDelta(-0.5, sol.Objective, 1e-6)
}

func TestSolveBox(t *testing.T) {
	assert := assert.New(t)

	// min x² s.t. 1 ≤ x ≤ 10
	p := &mpc.Problem{
		P:  mat.NewDense(1, 1, []float64{2}),
		Q:  mat.NewVecDense(1, nil),
		Lb: []float64{1},
		Ub: []float64{10},
	}

	s, err := New(p, nil)
	assert.NoError(err)

	sol, err := s.Solve(false)
	assert.NoError(err)
	assert.InDelta(1.0, sol.Z.AtVec(0), 1e-6)
}

func TestSolveInequalityRows(t *testing.T) {
	assert := assert.New(t)

	// min ½x² s.t. 0.5 ≤ x ≤ 2
	p := &mpc.Problem{
		P: mat.NewDense(1, 1, []float64{1}),
		Q: mat.NewVecDense(1, nil),
		A: mat.NewDense(1, 1, []float64{1}),
		L: mat.NewVecDense(1, []float64{0.5}),
		U: mat.NewVecDense(1, []float64{2}),
	}

	s, err := New(p, nil)
	assert.NoError(err)

	sol, err := s.Solve(false)
	assert.NoError(err)
	assert.InDelta(0.5, sol.Z.AtVec(0), 1e-6)

	// one sided row with an infinite bound
	p = &mpc.Problem{
		P: mat.NewDense(1, 1, []float64{1}),
		Q: mat.NewVecDense(1, nil),
		A: mat.NewDense(1, 1, []float64{1}),
		L: mat.NewVecDense(1, []float64{0.25}),
		U: mat.NewVecDense(1, []float64{math.Inf(1)}),
	}

	s, err = New(p, nil)
	assert.NoError(err)

	sol, err = s.Solve(false)
	assert.NoError(err)
	assert.InDelta(0.25, sol.Z.AtVec(0), 1e-6)
}

func TestWarmStartMatchesColdStart(t *testing.T) {
	assert := assert.New(t)

	p := eqProblem()
	s, err := New(p, nil)
	assert.NoError(err)

	_, err = s.Solve(false)
	assert.NoError(err)

	// move the parametric entries of the program in place
	p.Q.SetVec(0, -2)
	p.L.SetVec(0, 0.5)
	p.U.SetVec(0, 0.5)

	warm, err := s.Solve(true)
	assert.NoError(err)

	cold, err := New(p, nil)
	assert.NoError(err)
	ref, err := cold.Solve(false)
	assert.NoError(err)

	assert.InDelta(ref.Objective, warm.Objective, 1e-6)
	assert.InDelta(ref.Z.AtVec(0), warm.Z.AtVec(0), 1e-6)
	assert.InDelta(ref.Z.AtVec(1), warm.Z.AtVec(1), 1e-6)
}

func TestSolveInfeasible(t *testing.T) {
	assert := assert.New(t)

	// x₁ = 0 and x₁ = 1 cannot hold at once
	p := &mpc.Problem{
		P: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		Q: mat.NewVecDense(2, nil),
		A: mat.NewDense(2, 2, []float64{1, 0, 1, 0}),
		L: mat.NewVecDense(2, []float64{0, 1}),
		U: mat.NewVecDense(2, []float64{0, 1}),
	}

	s, err := New(p, nil)
	assert.NoError(err)

	sol, err := s.Solve(false)
	assert.Nil(sol)
	assert.Error(err)

	var serr *mpc.SolveError
	assert.True(errors.As(err, &serr))
}
