package bf

import (
	"fmt"
	"math"
	"time"

	xrand "golang.org/x/exp/rand"

	filter "github.com/milosgajdos/go-bayes"
	"github.com/milosgajdos/go-bayes/estimate"
	"github.com/milosgajdos/go-bayes/noise"
	"github.com/milosgajdos/go-bayes/rand"
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// BF is a Bootstrap Filter a.k.a. SIR (Sequential Importance Resampling)
// Particle Filter. It maintains the belief as a swarm of particles stored in
// the columns of a matrix. Every update propagates all particles through the
// stochastic transition model, weights them by the observation likelihood and
// resamples the whole swarm from the weighted population, so the particle
// count stays fixed for the life of the filter.
// For more information about Bootstrap Filter see:
// https://en.wikipedia.org/wiki/Particle_filter#The_bootstrap_filter
type BF struct {
	// model is bootstrap filter model
	model filter.Model
	// w stores particle weights
	w []float64
	// x stores filter particles as column vectors
	x *mat.Dense
	// y stores particle outputs
	y *mat.Dense
	// q is state noise a.k.a. process noise
	q filter.Noise
	// r is output noise a.k.a. measurement noise
	r filter.Noise
	// inn stores a diff between the measurement vector and a particle output.
	// In the Kalman filter family a similar vector is referred to as
	// "innovation vector". Its size equals the system output size, so we
	// preallocate it to avoid reallocating it on every call to Update().
	inn []float64
	// errPDF is PDF (Probability Density Function) of filter output error
	errPDF distmv.LogProber
	// src is the source of randomness used for resampling
	src xrand.Source
}

// New creates new Bootstrap Filter seeded from the wall clock and returns it.
// It accepts the following parameters:
//   - m:     system model
//   - ic:    initial condition of the filter
//   - q:     state noise a.k.a. process noise
//   - r:     output noise a.k.a. measurement noise
//   - p:     number of filter particles
//   - pdf:   Probability Density Function (PDF) of filter output error
//
// It returns error if non-positive number of particles is given or if the
// particles fail to be generated.
func New(m filter.Model, ic filter.InitCond, q, r filter.Noise, p int, pdf distmv.LogProber) (*BF, error) {
	return NewWithSource(xrand.NewSource(uint64(time.Now().UnixNano())), m, ic, q, r, p, pdf)
}

// NewWithSource creates new Bootstrap Filter which draws all of its
// randomness (initial particle spread and resampling) from src, so runs with
// a seeded source are reproducible.
// It returns error if non-positive number of particles is given or if the
// particles fail to be generated.
func NewWithSource(src xrand.Source, m filter.Model, ic filter.InitCond, q, r filter.Noise, p int, pdf distmv.LogProber) (*BF, error) {
	// must have at least one particle; can't be negative
	if p <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", p)
	}

	// size of input and output vectors
	nx, _, ny, _ := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
	}

	if q != nil {
		if q.Cov().SymmetricDim() != nx {
			return nil, fmt.Errorf("invalid state noise dimension: %d", q.Cov().SymmetricDim())
		}
	} else {
		q, _ = noise.NewZero(nx)
	}

	if r != nil {
		if r.Cov().SymmetricDim() != ny {
			return nil, fmt.Errorf("invalid output noise dimension: %d", r.Cov().SymmetricDim())
		}
	} else {
		r, _ = noise.NewZero(ny)
	}

	// Initialize particle weights to equal probabilities:
	// particle weights must sum up to 1 to represent probability
	w := make([]float64, p)
	for i := range w {
		w[i] = 1 / float64(p)
	}

	// draw particles from distribution with covariance ic.Cov()
	x, err := rand.WithCovNFrom(src, ic.Cov(), p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate filter particles: %v", err)
	}

	rows, cols := x.Dims()
	// center particles around initial state condition ic.State()
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			x.Set(r, c, x.At(r, c)+ic.State().AtVec(r))
		}
	}

	y := mat.NewDense(ny, p, nil)
	inn := make([]float64, ny)

	return &BF{
		model:  m,
		w:      w,
		x:      x,
		y:      y,
		q:      q,
		r:      r,
		inn:    inn,
		errPDF: pdf,
		src:    src,
	}, nil
}

// Predict propagates every filter particle through the stochastic transition
// model: each particle gets its own process noise draw. It returns the
// estimate of the predicted state: the mean of the propagated particles.
// It returns error if it fails to propagate the filter particles.
func (b *BF) Predict(x, u mat.Vector) (filter.Estimate, error) {
	r, c := b.x.Dims()
	xPred := mat.NewDense(r, c, nil)

	// propagate filter particles to the next step
	for c := range b.w {
		xPartNext, err := b.model.Propagate(b.x.ColView(c), u, b.q.Sample())
		if err != nil {
			return nil, fmt.Errorf("particle state propagation failed: %v", err)
		}
		xPred.Slice(0, xPartNext.Len(), c, c+1).(*mat.Dense).Copy(xPartNext)
	}

	// update filter particles with their predicted values
	b.x.Copy(xPred)

	return estimate.NewBase(b.mean())
}

// Update corrects the belief using the measurement z given control input u:
// it weights every particle by the likelihood of z under its predicted
// output, normalizes the weights and resamples the whole particle population
// from the weighted particles. If every weight collapses to zero the weights
// are flattened to uniform before resampling so the belief never degenerates.
// It returns the weighted mean estimate computed before resampling.
// It returns error if the size of z is invalid or the update fails.
func (b *BF) Update(x, u, z mat.Vector) (filter.Estimate, error) {
	if z.Len() != len(b.inn) {
		return nil, fmt.Errorf("invalid measurement size: %d", z.Len())
	}

	r, c := b.y.Dims()
	yPred := mat.NewDense(r, c, nil)

	// observe system output for each particle
	for c := range b.w {
		yPart, err := b.model.Observe(b.x.ColView(c), u, nil)
		if err != nil {
			return nil, fmt.Errorf("particle state observation failed: %v", err)
		}
		yPred.Slice(0, yPart.Len(), c, c+1).(*mat.Dense).Copy(yPart)
	}

	// Update particle weights:
	// - calculate observation error for each particle output
	// - multiply the resulting likelihood with the particle weight
	for c := range b.w {
		for r := 0; r < z.Len(); r++ {
			b.inn[r] = z.AtVec(r) - yPred.ColView(c).AtVec(r)
		}
		b.w[c] = b.w[c] * math.Exp(b.errPDF.LogProb(b.inn))
	}

	// normalize the particle weights so they express probability;
	// zero total evidence flattens the weights to uniform
	sum := floats.Sum(b.w)
	if sum <= 0 || math.IsNaN(sum) {
		for i := range b.w {
			b.w[i] = 1 / float64(len(b.w))
		}
	} else {
		floats.Scale(1/sum, b.w)
	}

	rows, _ := b.x.Dims()
	xEst := mat.NewVecDense(rows, nil)
	// weighted average of the particles is the corrected state estimate
	for r := 0; r < rows; r++ {
		var wavg float64
		for c := range b.w {
			wavg += b.w[c] * b.x.At(r, c)
		}
		xEst.SetVec(r, wavg)
	}

	// update filter particle outputs
	b.y.Copy(yPred)

	// resample the whole population from the weighted particles
	if err := b.resample(); err != nil {
		return nil, err
	}

	return estimate.NewBase(xEst)
}

// Run runs one step of the Bootstrap Filter for given state x, input u and measurement z.
// It returns the corrected state estimate.
// It returns error if it either fails to propagate particles or update the state.
func (b *BF) Run(x, u, z mat.Vector) (filter.Estimate, error) {
	pred, err := b.Predict(x, u)
	if err != nil {
		return nil, err
	}

	est, err := b.Update(pred.Val(), u, z)
	if err != nil {
		return nil, err
	}

	return est, nil
}

// resample draws a new particle population from the categorical distribution
// defined by the particle weights. Resampled particles come only from the
// existing population; the weights are reset to uniform afterwards.
func (b *BF) resample() error {
	// randomly pick new particles based on their weights;
	// rand.RouletteDrawNFrom returns a slice of column indices into b.x
	indices, err := rand.RouletteDrawNFrom(b.src, b.w, len(b.w))
	if err != nil {
		return fmt.Errorf("failed to sample filter particles: %v", err)
	}

	// clone b.x to avoid overriding the particles we draw from
	x := new(mat.Dense)
	x.CloneFrom(b.x)
	rows, _ := b.x.Dims()

	for c := range indices {
		b.x.Slice(0, rows, c, c+1).(*mat.Dense).Copy(x.ColView(indices[c]))
	}

	// resampled particles all carry the same weight
	for i := range b.w {
		b.w[i] = 1 / float64(len(b.w))
	}

	return nil
}

// Regularize jitters the filter particles with random perturbations drawn
// with the particle population covariance scaled by alpha. It prevents the
// particle population from collapsing onto a few identical samples after
// repeated resampling. If invalid (non-positive) alpha is provided the
// optimal alpha for a Gaussian kernel is used.
// It returns error if it fails to generate the perturbations.
func (b *BF) Regularize(alpha float64) error {
	rows, cols := b.x.Dims()

	// covariance matrix of the current particle population
	cov, err := matrix.Cov(b.x, "cols")
	if err != nil {
		return fmt.Errorf("failed to calculate covariance matrix: %v", err)
	}

	// randomly draw values with the particle covariance
	m, err := rand.WithCovNFrom(b.src, cov, cols)
	if err != nil {
		return fmt.Errorf("failed to draw random particle perturbations: %v", err)
	}

	// if invalid alpha is given, use the optimal value for Gaussian kernel
	if alpha <= 0 {
		alpha = AlphaGauss(rows, cols)
	}

	m.Scale(alpha, m)

	// add random perturbations to the existing particles
	b.x.Add(b.x, m)

	return nil
}

// Particles returns a copy of the BF particles.
func (b *BF) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(b.x)

	return p
}

// Weights returns a vector containing BF particle weights.
func (b *BF) Weights() mat.Vector {
	data := make([]float64, len(b.w))
	copy(data, b.w)

	return mat.NewVecDense(len(data), data)
}

// mean returns the arithmetic mean of the filter particles.
func (b *BF) mean() *mat.VecDense {
	rows, cols := b.x.Dims()
	m := mat.NewVecDense(rows, nil)

	for r := 0; r < rows; r++ {
		m.SetVec(r, floats.Sum(b.x.RawRowView(r))/float64(cols))
	}

	return m
}

// AlphaGauss computes optimal regularization parameter for Gaussian kernel and returns it.
func AlphaGauss(r, c int) float64 {
	return math.Pow(4.0/(float64(c)*(float64(r)+2.0)), 1/(float64(r)+4.0))
}
