package noise

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov mat.Symmetric
	// src is the source of randomness used to sample the noise
	src rand.Source
}

// NewGaussian creates new Gaussian noise with given mean and covariance.
// The noise is seeded from the wall clock.
// It returns error if it fails to create Gaussian.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	return NewGaussianFromSource(rand.NewSource(uint64(time.Now().UnixNano())), mean, cov)
}

// NewGaussianFromSource creates new Gaussian noise with given mean and
// covariance which draws its samples from src. Sampling is reproducible
// for a seeded source.
// It returns error if it fails to create Gaussian.
func NewGaussianFromSource(src rand.Source, mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	if len(mean) != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid Gaussian noise dimensions: mean %d, cov %d", len(mean), cov.SymmetricDim())
	}

	dist, ok := distmv.NewNormal(mean, cov, src)
	if !ok {
		return nil, fmt.Errorf("failed to create Gaussian noise distribution")
	}

	return &Gaussian{
		dist: dist,
		mean: mean,
		cov:  cov,
		src:  src,
	}, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Prob returns the density of the noise distribution at x.
func (g *Gaussian) Prob(x mat.Vector) float64 {
	data := make([]float64, x.Len())
	for i := range data {
		data[i] = x.AtVec(i)
	}

	return g.dist.Prob(data)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	return g.cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return g.mean
}

// Reset resets Gaussian noise: it recreates the underlying distribution
// from the noise source.
func (g *Gaussian) Reset() {
	if dist, ok := distmv.NewNormal(g.mean, g.cov, g.src); ok {
		g.dist = dist
	}
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
