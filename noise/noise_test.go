package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewGaussian(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	gCov := g.Cov()
	assert.Equal(cov.SymmetricDim(), gCov.SymmetricDim())
	assert.EqualValues(mean, g.Mean())

	sample := g.Sample()
	assert.Equal(len(mean), sample.Len())

	g.Reset()
	sample = g.Sample()
	assert.Equal(len(mean), sample.Len())

	// mismatched mean and covariance dimensions
	g, err = NewGaussian([]float64{1}, cov)
	assert.Nil(g)
	assert.Error(err)
}

func TestNone(t *testing.T) {
	assert := assert.New(t)

	n, err := NewNone()
	assert.NotNil(n)
	assert.NoError(err)

	assert.Equal(0, n.Sample().Len())
	assert.Equal(0, n.Cov().SymmetricDim())
	assert.Nil(n.Mean())
	n.Reset()
}
