package matrix

import (
	"gonum.org/v1/gonum/mat"
)

// Eye returns an n-by-n identity matrix scaled by v.
// It panics if n is not positive.
func Eye(n int, v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, v)
	}

	return m
}

// Diag returns a symmetric matrix with d on its diagonal.
// It panics if d is empty.
func Diag(d []float64) *mat.SymDense {
	m := mat.NewSymDense(len(d), nil)
	for i, v := range d {
		m.SetSym(i, i, v)
	}

	return m
}

// SetBlock copies src into dst with its top-left corner at (i, j).
// It panics if src does not fit into dst at the given offset.
func SetBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	dst.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(src)
}

// AddBlock adds src to the block of dst whose top-left corner is at (i, j).
// It panics if src does not fit into dst at the given offset.
func AddBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	blk := dst.Slice(i, i+r, j, j+c).(*mat.Dense)
	blk.Add(blk, src)
}
