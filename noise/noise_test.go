package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestNewGaussian(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	// mean and covariance dimensions must agree
	g, err = NewGaussian([]float64{2}, cov)
	assert.Nil(g)
	assert.Error(err)
}

func TestGaussianMeanCov(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	assert.EqualValues(mean, g.Mean())
	assert.True(mat.EqualApprox(cov, g.Cov(), 1e-9))
}

func TestGaussianSample(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	sample := g.Sample()
	assert.Equal(len(mean), sample.Len())

	// same seed must yield the same draws
	g1, err := NewGaussianFromSource(rand.NewSource(1), mean, cov)
	assert.NoError(err)
	g2, err := NewGaussianFromSource(rand.NewSource(1), mean, cov)
	assert.NoError(err)
	assert.True(mat.EqualApprox(g1.Sample(), g2.Sample(), 1e-12))
}

func TestGaussianProb(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{0, 0}
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	// standard bivariate normal density at the mean is 1/(2*pi)
	p := g.Prob(mat.NewVecDense(2, []float64{0, 0}))
	assert.InDelta(0.15915494309189535, p, 1e-9)

	// density decays away from the mean
	far := g.Prob(mat.NewVecDense(2, []float64{3, 3}))
	assert.True(far < p)
}

func TestGaussianReset(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	sample1 := g.Sample()
	g.Reset()
	sample2 := g.Sample()
	assert.NotEqual(sample1, sample2)
}

func TestGaussianString(t *testing.T) {
	assert := assert.New(t)

	str := `Gaussian{
Mean=[2 3]
Cov=⎡  1  0.1⎤
    ⎣0.1    1⎦
}`
	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)
	assert.Equal(str, g.String())
}

func TestNewZero(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)

	assert.EqualValues([]float64{0, 0}, e.Mean())
	assert.Equal(2, e.Cov().SymmetricDim())
	assert.Equal(0.0, mat.Sum(e.Cov()))

	sample := e.Sample()
	assert.Equal(2, sample.Len())
	assert.Equal(0.0, mat.Sum(sample))

	e.Reset()
	assert.Equal(sample, e.Sample())

	e, err = NewZero(-10)
	assert.Nil(e)
	assert.Error(err)
}

func TestNewNone(t *testing.T) {
	assert := assert.New(t)

	e, err := NewNone()
	assert.NotNil(e)
	assert.NoError(err)

	assert.Nil(e.Mean())
	assert.Equal(0, e.Cov().SymmetricDim())
	assert.Equal(0, e.Sample().Len())

	e.Reset()
	assert.Equal(0, e.Sample().Len())
}
