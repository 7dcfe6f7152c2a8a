package sim

import (
	"fmt"
	"time"

	mpc "github.com/milosgajdos/go-mpc"
	"gonum.org/v1/gonum/mat"
)

// Trace records per-sample signals of a closed control loop.
// It is appended to by Loop and read-only afterwards.
type Trace struct {
	x     *mat.Dense
	y     *mat.Dense
	u     *mat.Dense
	tsol  []time.Duration
	ts    float64
	count int
}

func newTrace(nsim, nx, nu, ny int, ts float64) *Trace {
	return &Trace{
		x:    mat.NewDense(nsim, nx, nil),
		y:    mat.NewDense(nsim, ny, nil),
		u:    mat.NewDense(nsim, nu, nil),
		tsol: make([]time.Duration, 0, nsim),
		ts:   ts,
	}
}

func (t *Trace) append(x, y, u mat.Vector, tsol time.Duration) {
	for j := 0; j < x.Len(); j++ {
		t.x.Set(t.count, j, x.AtVec(j))
	}
	for j := 0; j < y.Len(); j++ {
		t.y.Set(t.count, j, y.AtVec(j))
	}
	for j := 0; j < u.Len(); j++ {
		t.u.Set(t.count, j, u.AtVec(j))
	}
	t.tsol = append(t.tsol, tsol)
	t.count++
}

// Samples returns the number of recorded samples.
func (t *Trace) Samples() int { return t.count }

// Time returns the time stamp of the i-th sample.
func (t *Trace) Time(i int) float64 { return float64(i) * t.ts }

// States returns recorded plant states, one row per sample.
func (t *Trace) States() mat.Matrix { return t.x.Slice(0, t.count, 0, t.x.RawMatrix().Cols) }

// Outputs returns recorded plant outputs, one row per sample.
func (t *Trace) Outputs() mat.Matrix { return t.y.Slice(0, t.count, 0, t.y.RawMatrix().Cols) }

// Inputs returns recorded applied inputs, one row per sample.
func (t *Trace) Inputs() mat.Matrix { return t.u.Slice(0, t.count, 0, t.u.RawMatrix().Cols) }

// SolveTimes returns the recorded control computation times.
func (t *Trace) SolveTimes() []time.Duration { return t.tsol }

// Loop drives a plant model in closed loop with a controller.
// The true plant state is fed back to the controller directly:
// no output estimator is modelled.
type Loop struct {
	plant mpc.Plant
	ctrl  mpc.Controller
	ts    float64
	wd    mpc.Noise
	wn    mpc.Noise
}

// NewLoop creates a new closed simulation loop and returns it.
// ts is the sampling period. wd and wn are optional process and
// measurement noise sources; either may be nil.
// It returns error if the plant dimensions, the noise dimensions or ts
// are invalid.
func NewLoop(plant mpc.Plant, ctrl mpc.Controller, ts float64, wd, wn mpc.Noise) (*Loop, error) {
	if plant == nil || ctrl == nil {
		return nil, fmt.Errorf("invalid loop collaborators")
	}

	nx, nu, ny := plant.SystemDims()
	if nx <= 0 || nu <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid plant dimensions: [%d %d %d]", nx, nu, ny)
	}

	if ts <= 0 {
		return nil, fmt.Errorf("invalid sampling period: %f", ts)
	}

	// zero size noise samples pass through the plant unchanged
	if wd != nil {
		if dim := wd.Cov().SymmetricDim(); dim != 0 && dim != nx {
			return nil, fmt.Errorf("invalid process noise dimension: %d != %d", dim, nx)
		}
	}
	if wn != nil {
		if dim := wn.Cov().SymmetricDim(); dim != 0 && dim != ny {
			return nil, fmt.Errorf("invalid measurement noise dimension: %d != %d", dim, ny)
		}
	}

	return &Loop{
		plant: plant,
		ctrl:  ctrl,
		ts:    ts,
		wd:    wd,
		wn:    wn,
	}, nil
}

// Run simulates the loop for nsim samples starting from init and returns
// the recorded trace. If the controller or the plant fails mid-loop the
// remaining iterations are aborted and the partial trace is returned
// together with the error.
func (l *Loop) Run(init *InitCond, nsim int) (*Trace, error) {
	if nsim <= 0 {
		return nil, fmt.Errorf("invalid simulation length: %d", nsim)
	}

	nx, nu, ny := l.plant.SystemDims()
	trace := newTrace(nsim, nx, nu, ny, l.ts)

	x := &mat.VecDense{}
	x.CloneFromVec(init.State())

	for i := 0; i < nsim; i++ {
		start := time.Now()
		u, err := l.ctrl.ComputeControl(x)
		tsol := time.Since(start)
		if st, ok := l.ctrl.(mpc.SolveTimer); ok {
			tsol = st.LastSolveTime()
		}
		if err != nil {
			return trace, fmt.Errorf("control computation failed at sample %d: %w", i, err)
		}

		var wn mat.Vector
		if l.wn != nil {
			wn = l.wn.Sample()
		}
		y, err := l.plant.Observe(x, u, wn)
		if err != nil {
			return trace, fmt.Errorf("plant observation failed at sample %d: %w", i, err)
		}

		trace.append(x, y, u, tsol)

		var wd mat.Vector
		if l.wd != nil {
			wd = l.wd.Sample()
		}
		xNext, err := l.plant.Propagate(x, u, wd)
		if err != nil {
			return trace, fmt.Errorf("plant propagation failed at sample %d: %w", i, err)
		}
		x.CloneFromVec(xNext)
	}

	return trace, nil
}
