package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// NewSecondOrder creates a discrete-time model of a second order system
// with complex pole pair r*exp(±i*w0) and unit DC gain:
//
//	H(z) = k / (z² - 2*r*cos(w0)*z + r²),  k = 1 - 2*r*cos(w0) + r²
//
// realized in controllable canonical form. The system is stable for r < 1.
// It returns error if the poles place a zero at z=1, which leaves the
// DC gain undefined.
func NewSecondOrder(r, w0 float64) (*Discrete, error) {
	a1 := -2.0 * r * math.Cos(w0)
	a2 := r * r

	// unit DC gain: H(1) = k / (1 + a1 + a2) = 1
	k := 1.0 + a1 + a2
	if k == 0 {
		return nil, fmt.Errorf("undefined DC gain for poles %f*exp(±i%f)", r, w0)
	}

	A := mat.NewDense(2, 2, []float64{-a1, -a2, 1.0, 0.0})
	B := mat.NewDense(2, 1, []float64{1.0, 0.0})
	C := mat.NewDense(1, 2, []float64{0.0, k})
	D := mat.NewDense(1, 1, []float64{0.0})

	return NewDiscrete(A, B, C, D)
}
