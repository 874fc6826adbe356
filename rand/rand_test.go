package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestWithCovN(t *testing.T) {
	assert := assert.New(t)

	data := []float64{1.0, 0.0, 0.0, 1.0}
	covTest := mat.NewSymDense(2, data)
	covR, _ := covTest.Dims()

	// n must be bigger than 0
	nTest := -3
	res, err := WithCovN(covTest, nTest)
	assert.Error(err)
	assert.Nil(res)

	nTest = 1
	res, err = WithCovN(covTest, nTest)
	assert.NoError(err)
	assert.NotNil(res)

	// 2 samples
	nTest = 2
	res, err = WithCovN(covTest, nTest)
	assert.NoError(err)
	assert.NotNil(res)
	r, c := res.Dims()
	assert.Equal(r, covR)
	assert.Equal(c, nTest)
}

func TestWithCovNFrom(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{1.0, 0.5, 0.5, 2.0})

	// same seed must produce identical samples
	s1, err := WithCovNFrom(rand.NewSource(42), cov, 5)
	assert.NoError(err)
	s2, err := WithCovNFrom(rand.NewSource(42), cov, 5)
	assert.NoError(err)
	assert.True(mat.EqualApprox(s1, s2, 1e-12))
}

func TestRouletteDrawN(t *testing.T) {
	assert := assert.New(t)

	// p can't be nil or empty
	indices, err := RouletteDrawN(nil, 10)
	assert.Error(err)
	assert.Nil(indices)

	p := []float64{0.1, 0.7, 0.3, 0.4}
	n := 10
	indices, err = RouletteDrawN(p, n)
	assert.NoError(err)
	assert.NotNil(indices)
	assert.Equal(n, len(indices))
	for _, i := range indices {
		assert.True(i >= 0 && i < len(p))
	}
}

func TestRouletteDrawNFrom(t *testing.T) {
	assert := assert.New(t)

	p := []float64{0.25, 0.25, 0.25, 0.25}

	i1, err := RouletteDrawNFrom(rand.NewSource(7), p, 20)
	assert.NoError(err)
	i2, err := RouletteDrawNFrom(rand.NewSource(7), p, 20)
	assert.NoError(err)
	assert.Equal(i1, i2)

	// zero-weight entries are never drawn
	p = []float64{0.0, 1.0}
	indices, err := RouletteDrawNFrom(rand.NewSource(7), p, 50)
	assert.NoError(err)
	for _, i := range indices {
		assert.Equal(1, i)
	}
}
