package sim

import (
	"fmt"
	"testing"
	"time"

	"github.com/milosgajdos/go-mpc/matrix"
	"github.com/milosgajdos/go-mpc/noise"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// gainController is a proportional state feedback stub.
type gainController struct {
	k float64
}

func (c *gainController) ComputeControl(x mat.Vector) (mat.Vector, error) {
	return mat.NewVecDense(1, []float64{-c.k * x.AtVec(0)}), nil
}

// faultyController fails after failAt successful samples.
type faultyController struct {
	calls  int
	failAt int
}

func (c *faultyController) ComputeControl(x mat.Vector) (mat.Vector, error) {
	if c.calls >= c.failAt {
		return nil, fmt.Errorf("solver gave up")
	}
	c.calls++
	return mat.NewVecDense(1, nil), nil
}

// timedController reports a fixed computation time.
type timedController struct {
	gainController
	tsol time.Duration
}

func (c *timedController) LastSolveTime() time.Duration { return c.tsol }

func newTestLoop(t *testing.T, ctrl interface {
	ComputeControl(x mat.Vector) (mat.Vector, error)
}) *Loop {
	model, err := NewSecondOrder(0.5, 0.3)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}
	loop, err := NewLoop(model, ctrl, 0.1, nil, nil)
	if err != nil {
		t.Fatalf("failed to create loop: %v", err)
	}
	return loop
}

func TestNewLoop(t *testing.T) {
	assert := assert.New(t)

	model, err := NewSecondOrder(0.5, 0.3)
	assert.NoError(err)
	ctrl := &gainController{k: 0.1}

	loop, err := NewLoop(model, ctrl, 0.1, nil, nil)
	assert.NotNil(loop)
	assert.NoError(err)

	loop, err = NewLoop(nil, ctrl, 0.1, nil, nil)
	assert.Nil(loop)
	assert.Error(err)

	loop, err = NewLoop(model, nil, 0.1, nil, nil)
	assert.Nil(loop)
	assert.Error(err)

	loop, err = NewLoop(model, ctrl, -1.0, nil, nil)
	assert.Nil(loop)
	assert.Error(err)

	// plant without an input matrix cannot be controlled
	stateOnly, err := NewDiscrete(A, nil, C, nil)
	assert.NoError(err)
	loop, err = NewLoop(stateOnly, ctrl, 0.1, nil, nil)
	assert.Nil(loop)
	assert.Error(err)

	// noise dimensions must match the plant
	badW, err := noise.NewGaussian(make([]float64, 3), matrix.Diag([]float64{1, 1, 1}))
	assert.NoError(err)
	loop, err = NewLoop(model, ctrl, 0.1, badW, nil)
	assert.Nil(loop)
	assert.Error(err)

	loop, err = NewLoop(model, ctrl, 0.1, nil, badW)
	assert.Nil(loop)
	assert.Error(err)

	// zero size None noise is accepted for any plant
	none, err := noise.NewNone()
	assert.NoError(err)
	loop, err = NewLoop(model, ctrl, 0.1, none, none)
	assert.NotNil(loop)
	assert.NoError(err)
}

func TestLoopRun(t *testing.T) {
	assert := assert.New(t)

	loop := newTestLoop(t, &gainController{k: 0.1})
	init := NewInitCond(mat.NewVecDense(2, []float64{1.0, 0.0}), mat.NewVecDense(1, nil))

	nsim := 20
	trace, err := loop.Run(init, nsim)
	assert.NoError(err)
	assert.Equal(nsim, trace.Samples())

	r, c := trace.States().Dims()
	assert.Equal(nsim, r)
	assert.Equal(2, c)
	r, c = trace.Outputs().Dims()
	assert.Equal(nsim, r)
	assert.Equal(1, c)
	r, c = trace.Inputs().Dims()
	assert.Equal(nsim, r)
	assert.Equal(1, c)

	// first recorded sample is the initial condition
	assert.InDelta(1.0, trace.States().At(0, 0), 1e-12)
	// stable plant with stabilizing feedback decays
	assert.True(trace.States().At(nsim-1, 0) < trace.States().At(0, 0))

	assert.InDelta(0.0, trace.Time(0), 1e-12)
	assert.InDelta(0.5, trace.Time(5), 1e-12)

	_, err = loop.Run(init, 0)
	assert.Error(err)
}

func TestLoopRunDeterminism(t *testing.T) {
	assert := assert.New(t)

	init := NewInitCond(mat.NewVecDense(2, []float64{1.0, -0.5}), mat.NewVecDense(1, nil))

	a, err := newTestLoop(t, &gainController{k: 0.2}).Run(init, 15)
	assert.NoError(err)
	b, err := newTestLoop(t, &gainController{k: 0.2}).Run(init, 15)
	assert.NoError(err)

	for i := 0; i < 15; i++ {
		assert.Equal(a.States().At(i, 0), b.States().At(i, 0))
		assert.Equal(a.Outputs().At(i, 0), b.Outputs().At(i, 0))
		assert.Equal(a.Inputs().At(i, 0), b.Inputs().At(i, 0))
	}
}

func TestLoopRunPartialTrace(t *testing.T) {
	assert := assert.New(t)

	failAt := 7
	loop := newTestLoop(t, &faultyController{failAt: failAt})
	init := NewInitCond(mat.NewVecDense(2, nil), mat.NewVecDense(1, nil))

	trace, err := loop.Run(init, 20)
	assert.Error(err)
	assert.NotNil(trace)
	// samples before the fault are preserved
	assert.Equal(failAt, trace.Samples())
	assert.Equal(failAt, len(trace.SolveTimes()))
}

func TestLoopRunWithNoise(t *testing.T) {
	assert := assert.New(t)

	model, err := NewSecondOrder(0.5, 0.3)
	assert.NoError(err)

	wd, err := noise.NewGaussian(make([]float64, 2), matrix.Diag([]float64{0.01, 0.01}))
	assert.NoError(err)
	wn, err := noise.NewGaussian(make([]float64, 1), matrix.Diag([]float64{0.01}))
	assert.NoError(err)

	loop, err := NewLoop(model, &gainController{k: 0.1}, 0.1, wd, wn)
	assert.NotNil(loop)
	assert.NoError(err)

	init := NewInitCond(mat.NewVecDense(2, nil), mat.NewVecDense(1, nil))
	nsim := 10
	trace, err := loop.Run(init, nsim)
	assert.NoError(err)
	assert.Equal(nsim, trace.Samples())

	// process noise perturbs the state away from the origin
	var moved bool
	for i := 0; i < nsim; i++ {
		if trace.States().At(i, 0) != 0.0 {
			moved = true
			break
		}
	}
	assert.True(moved)
}

func TestLoopRunSolveTimer(t *testing.T) {
	assert := assert.New(t)

	want := 42 * time.Millisecond
	loop := newTestLoop(t, &timedController{gainController{k: 0.1}, want})
	init := NewInitCond(mat.NewVecDense(2, nil), mat.NewVecDense(1, nil))

	trace, err := loop.Run(init, 3)
	assert.NoError(err)
	for _, tsol := range trace.SolveTimes() {
		assert.Equal(want, tsol)
	}
}
