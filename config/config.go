// Package config loads closed loop scenario configuration from yaml files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/milosgajdos/go-mpc/matrix"
	"github.com/milosgajdos/go-mpc/qp"
	"github.com/milosgajdos/go-mpc/sim"
	"gonum.org/v1/gonum/mat"
)

// Plant configures the plant model. Either the state space matrices are
// given directly (discrete, or continuous to be sampled at Ts) or the
// second order pole shorthand is used.
type Plant struct {
	A          [][]float64 `yaml:"a"`
	B          [][]float64 `yaml:"b"`
	C          [][]float64 `yaml:"c"`
	D          [][]float64 `yaml:"d"`
	Continuous bool        `yaml:"continuous"`
	PoleMag    float64     `yaml:"pole_magnitude"`
	PolePhase  float64     `yaml:"pole_phase"`
}

// Weights configures the horizon cost weight diagonals.
type Weights struct {
	Qy  []float64 `yaml:"qy"`
	QyN []float64 `yaml:"qyn"`
	Qu  []float64 `yaml:"qu"`
	QDu []float64 `yaml:"qdu"`
}

// Bounds configures the elementwise constraint bounds.
// A missing vector leaves the corresponding side unconstrained.
type Bounds struct {
	Ymin  []float64 `yaml:"ymin"`
	Ymax  []float64 `yaml:"ymax"`
	Umin  []float64 `yaml:"umin"`
	Umax  []float64 `yaml:"umax"`
	DUmin []float64 `yaml:"dumin"`
	DUmax []float64 `yaml:"dumax"`
}

// Config is a closed loop simulation scenario.
type Config struct {
	Plant     Plant     `yaml:"plant"`
	Horizon   int       `yaml:"horizon"`
	Ts        float64   `yaml:"ts"`
	Weights   Weights   `yaml:"weights"`
	Bounds    Bounds    `yaml:"bounds"`
	Reference []float64 `yaml:"reference"`
	Samples   int       `yaml:"samples"`
	InitState []float64 `yaml:"init_state"`
	InitInput []float64 `yaml:"init_input"`
}

// Default returns the reference scenario: a stable second order plant with
// unit DC gain regulated to r=1 under a tight input rate constraint.
func Default() *Config {
	return &Config{
		Plant: Plant{
			PoleMag:   0.9,
			PolePhase: 0.2,
		},
		Horizon: 40,
		Ts:      1.0,
		Weights: Weights{
			Qy:  []float64{20.0},
			QyN: []float64{20.0},
			Qu:  []float64{0.01},
			QDu: []float64{0.5},
		},
		Bounds: Bounds{
			Ymin:  []float64{-100.0},
			Ymax:  []float64{100.0},
			Umin:  []float64{-1000.0},
			Umax:  []float64{1000.0},
			DUmin: []float64{-0.2},
			DUmax: []float64{0.2},
		},
		Reference: []float64{1.0},
		Samples:   120,
		InitState: []float64{0.0, 0.0},
		InitInput: []float64{0.0},
	}
}

// Load reads a yaml scenario from path layered over the defaults.
// It returns error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Model builds the plant model from the configuration.
// It returns error if the plant configuration is invalid.
func (c *Config) Model() (*sim.Discrete, error) {
	if c.Plant.A == nil {
		return sim.NewSecondOrder(c.Plant.PoleMag, c.Plant.PolePhase)
	}

	A, err := denseFrom(c.Plant.A)
	if err != nil {
		return nil, fmt.Errorf("invalid plant matrix A: %v", err)
	}
	B, err := denseFrom(c.Plant.B)
	if err != nil {
		return nil, fmt.Errorf("invalid plant matrix B: %v", err)
	}
	C, err := denseFrom(c.Plant.C)
	if err != nil {
		return nil, fmt.Errorf("invalid plant matrix C: %v", err)
	}
	D, err := denseFrom(c.Plant.D)
	if err != nil {
		return nil, fmt.Errorf("invalid plant matrix D: %v", err)
	}

	if c.Plant.Continuous {
		ct, err := sim.NewContinuous(A, B, C, D)
		if err != nil {
			return nil, err
		}
		return ct.ToDiscrete(c.Ts)
	}

	return sim.NewDiscrete(A, B, C, D)
}

// QPWeights builds the cost weight matrices from the configured diagonals.
// It returns error if any diagonal is missing.
func (c *Config) QPWeights() (qp.Weights, error) {
	w := c.Weights
	if len(w.Qy) == 0 || len(w.QyN) == 0 || len(w.Qu) == 0 || len(w.QDu) == 0 {
		return qp.Weights{}, fmt.Errorf("missing cost weights")
	}
	return qp.Weights{
		Qy:  matrix.Diag(w.Qy),
		QyN: matrix.Diag(w.QyN),
		Qu:  matrix.Diag(w.Qu),
		QDu: matrix.Diag(w.QDu),
	}, nil
}

// QPBounds builds the constraint bounds from the configuration.
func (c *Config) QPBounds() qp.Bounds {
	return qp.Bounds{
		Ymin:  vecOrNil(c.Bounds.Ymin),
		Ymax:  vecOrNil(c.Bounds.Ymax),
		Umin:  vecOrNil(c.Bounds.Umin),
		Umax:  vecOrNil(c.Bounds.Umax),
		DUmin: vecOrNil(c.Bounds.DUmin),
		DUmax: vecOrNil(c.Bounds.DUmax),
	}
}

// InitCond builds the loop initial condition from the configuration.
// It returns error if the initial vectors are missing.
func (c *Config) InitCond() (*sim.InitCond, error) {
	if len(c.InitState) == 0 || len(c.InitInput) == 0 {
		return nil, fmt.Errorf("missing initial condition")
	}
	x0 := mat.NewVecDense(len(c.InitState), c.InitState)
	u0 := mat.NewVecDense(len(c.InitInput), c.InitInput)
	return sim.NewInitCond(x0, u0), nil
}

// Ref returns the constant output reference vector.
// It returns error if the reference is missing.
func (c *Config) Ref() (mat.Vector, error) {
	if len(c.Reference) == 0 {
		return nil, fmt.Errorf("missing reference")
	}
	return mat.NewVecDense(len(c.Reference), c.Reference), nil
}

func vecOrNil(v []float64) mat.Vector {
	if len(v) == 0 {
		return nil
	}
	return mat.NewVecDense(len(v), v)
}

func denseFrom(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty matrix")
	}

	r, c := len(rows), len(rows[0])
	data := make([]float64, 0, r*c)
	for _, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("ragged matrix rows")
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}
