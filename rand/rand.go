package rand

import (
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// It returns matrix which contains the randomly generated samples stored in its columns.
// The samples are seeded from the wall clock; use WithCovNFrom for reproducible draws.
// It fails with error if n is non-positive or if the factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int) (*mat.Dense, error) {
	return WithCovNFrom(rand.NewSource(uint64(time.Now().UnixNano())), cov, n)
}

// WithCovNFrom draws n random samples from a zero-mean Normal (aka Gaussian)
// distribution with covariance cov using the random source src.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is non-positive or if the factorization of cov fails.
func WithCovNFrom(src rand.Source, cov mat.Symmetric, n int) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// Use SVD instead of Cholesky as Cholesky can be numerically unstable if cov is (almost) singular
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	rnd := rand.New(src)
	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = rnd.NormFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// RouletteDrawN draws n numbers randomly from a probability mass function (PMF) defined by weights in p.
// RouletteDrawN implements the Roulette Wheel Draw a.k.a. Fitness Proportionate Selection:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// - http://www.keithschwarz.com/darts-dice-coins/
// It returns a slice of n indices into the vector p.
// It fails with error if p is empty or nil.
func RouletteDrawN(p []float64, n int) ([]int, error) {
	return RouletteDrawNFrom(rand.NewSource(uint64(time.Now().UnixNano())), p, n)
}

// RouletteDrawNFrom draws n numbers randomly from a probability mass function (PMF)
// defined by weights in p using the random source src.
// It returns a slice of n indices into the vector p.
// It fails with error if p is empty or nil.
func RouletteDrawNFrom(src rand.Source, p []float64, n int) ([]int, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	// Initialization: create the discrete CDF
	// We know that cdf is sorted in ascending order
	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)

	// Generation:
	// 1. Generate a uniformly-random value x in the range [0,1)
	// 2. Using a binary search, find the index of the smallest element in cdf larger than x
	rnd := rand.New(src)
	var val float64
	indices := make([]int, n)
	for i := range indices {
		// multiply the sample with the largest CDF value; easier than normalizing to [0,1)
		val = rnd.Float64() * cdf[len(cdf)-1]
		// Search returns the smallest index i such that cdf[i] > val
		indices[i] = sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
	}

	return indices, nil
}
