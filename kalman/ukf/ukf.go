package ukf

import (
	"fmt"

	filter "github.com/milosgajdos/go-bayes"
	"github.com/milosgajdos/go-bayes/estimate"
	"github.com/milosgajdos/go-bayes/matrix"
	"github.com/milosgajdos/go-bayes/noise"
	"gonum.org/v1/gonum/mat"
)

// Config contains UKF configuration parameters
type Config struct {
	// Lambda is the sigma point spread parameter. It may be negative as
	// long as n + Lambda remains positive for state dimension n.
	Lambda float64
}

// TransformFunc maps a sigma point to its image under the system dynamics
// or the observation function.
type TransformFunc func(x mat.Vector) (mat.Vector, error)

// UKF is Unscented (aka Sigma Point) Kalman Filter. Instead of linearizing
// the dynamics it propagates a small deterministic set of sigma points
// through the nonlinear functions and rebuilds the Gaussian belief from
// their weighted spread. The whole cycle is deterministic given lambda.
type UKF struct {
	// m is UKF system model
	m filter.Model
	// q is state noise a.k.a. process noise
	q filter.Noise
	// r is output noise a.k.a. measurement noise
	r filter.Noise
	// lambda is the sigma point spread parameter
	lambda float64
	// p is the UKF covariance matrix
	p *mat.SymDense
	// pNext is the UKF predicted covariance matrix
	pNext *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new UKF and returns it.
// It accepts the following parameters:
//   - m:      dynamical system model
//   - init:   initial condition of the filter
//   - q:      state noise a.k.a. process noise
//   - r:      output noise a.k.a. measurement noise
//   - c:      filter configuration
//
// It returns error if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - invalid state or output noise is given: noise covariance must either be nil or match the model dimensions
//   - n + lambda is not positive for state dimension n
func New(m filter.Model, init filter.InitCond, q, r filter.Noise, c *Config) (*UKF, error) {
	// size of the input and output vectors
	nx, _, ny, _ := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
	}

	if c == nil {
		return nil, fmt.Errorf("invalid config supplied: %v", c)
	}

	if float64(nx)+c.Lambda <= 0 {
		return nil, fmt.Errorf("invalid lambda supplied: %v", c.Lambda)
	}

	if q != nil {
		if q.Cov().SymmetricDim() != nx {
			return nil, fmt.Errorf("invalid state noise dimension: %d", q.Cov().SymmetricDim())
		}
	} else {
		q, _ = noise.NewNone()
	}

	if r != nil {
		if r.Cov().SymmetricDim() != ny {
			return nil, fmt.Errorf("invalid output noise dimension: %d", r.Cov().SymmetricDim())
		}
	} else {
		r, _ = noise.NewNone()
	}

	if init.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid initial covariance dimension: %d", init.Cov().SymmetricDim())
	}

	// initialize covariance matrix to initial condition covariance
	p := mat.NewSymDense(nx, nil)
	p.CopySym(init.Cov())

	// predicted state covariance
	pNext := mat.NewSymDense(nx, nil)
	pNext.CopySym(init.Cov())

	// innovation vector
	inn := mat.NewVecDense(ny, nil)

	// kalman gain
	k := mat.NewDense(nx, ny, nil)

	return &UKF{
		m:      m,
		q:      q,
		r:      r,
		lambda: c.Lambda,
		p:      p,
		pNext:  pNext,
		inn:    inn,
		k:      k,
	}, nil
}

// SigmaPoints generates 2n+1 sigma points around mean x with covariance cov
// and spread parameter lambda: the mean itself followed by the mean plus and
// minus the columns of the square root of (n+lambda)*cov. The points are
// returned as matrix columns; cov is symmetrized before the square root.
// It returns error if the dimensions disagree, n + lambda is not positive or
// the covariance fails to be factorized.
func SigmaPoints(x mat.Vector, cov mat.Symmetric, lambda float64) (*mat.Dense, error) {
	n := x.Len()
	if cov.SymmetricDim() != n {
		return nil, fmt.Errorf("invalid covariance dimension: %d", cov.SymmetricDim())
	}

	if float64(n)+lambda <= 0 {
		return nil, fmt.Errorf("invalid lambda supplied: %v", lambda)
	}

	// guard against symmetry drift before factorization
	sym, err := matrix.Symmetrize(cov)
	if err != nil {
		return nil, err
	}

	scaled := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			scaled.SetSym(i, j, (float64(n)+lambda)*sym.At(i, j))
		}
	}

	sqrt, err := matrix.SqrtPSD(scaled)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate covariance square root: %v", err)
	}

	sp := mat.NewDense(n, 2*n+1, nil)
	for i := 0; i < n; i++ {
		sp.Set(i, 0, x.AtVec(i))
		for j := 0; j < n; j++ {
			sp.Set(i, j+1, x.AtVec(i)+sqrt.At(i, j))
			sp.Set(i, j+1+n, x.AtVec(i)-sqrt.At(i, j))
		}
	}

	return sp, nil
}

// Weights returns the 2n+1 sigma point weights for state dimension n and
// spread parameter lambda: lambda/(n+lambda) for the mean point and
// 1/(2(n+lambda)) for the rest. The weights sum to 1 by construction and may
// be negative when lambda is negative.
// It returns error if n or n + lambda is not positive.
func Weights(n int, lambda float64) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid state dimension: %d", n)
	}

	if float64(n)+lambda <= 0 {
		return nil, fmt.Errorf("invalid lambda supplied: %v", lambda)
	}

	w := make([]float64, 2*n+1)
	w[0] = lambda / (float64(n) + lambda)
	for i := 1; i < len(w); i++ {
		w[i] = 1 / (2 * (float64(n) + lambda))
	}

	return w, nil
}

// Transform applies the unscented transform to the Gaussian belief (x, cov):
// it generates sigma points, pushes each through f and rebuilds the mean and
// covariance of the images from the sigma point weights. It returns the
// transformed mean and covariance together with the original and transformed
// sigma points (both stored as matrix columns).
// It returns error if the sigma points fail to be generated or transformed.
func Transform(x mat.Vector, cov mat.Symmetric, f TransformFunc, lambda float64) (*mat.VecDense, *mat.SymDense, *mat.Dense, *mat.Dense, error) {
	sp, err := SigmaPoints(x, cov, lambda)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to generate sigma points: %v", err)
	}

	w, err := Weights(x.Len(), lambda)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	_, cols := sp.Dims()

	var tsp *mat.Dense
	var out int
	for c := 0; c < cols; c++ {
		y, err := f(sp.ColView(c))
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to transform sigma point: %v", err)
		}

		if tsp == nil {
			out = y.Len()
			tsp = mat.NewDense(out, cols, nil)
		}
		for i := 0; i < out; i++ {
			tsp.Set(i, c, y.AtVec(i))
		}
	}

	// transformed mean: weighted average of the transformed sigma points
	mean := mat.NewVecDense(out, nil)
	for c := 0; c < cols; c++ {
		mean.AddScaledVec(mean, w[c], tsp.ColView(c))
	}

	// transformed covariance: weighted spread of the transformed sigma points
	tcov := mat.NewDense(out, out, nil)
	diff := mat.NewVecDense(out, nil)
	outer := mat.NewDense(out, out, nil)
	for c := 0; c < cols; c++ {
		diff.SubVec(tsp.ColView(c), mean)
		outer.Mul(diff, diff.T())
		outer.Scale(w[c], outer)
		tcov.Add(tcov, outer)
	}

	sym, err := matrix.Symmetrize(tcov)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return mean, sym, sp, tsp, nil
}

// Predict applies the unscented transform to the belief (x, P) through the
// system dynamics and adds the process noise covariance to the transformed
// covariance: the result is the predicted belief.
// It returns the predicted estimate or error if the transform fails.
func (k *UKF) Predict(x, u mat.Vector) (filter.Estimate, error) {
	nx, _, _, _ := k.m.SystemDims()
	if x.Len() != nx {
		return nil, fmt.Errorf("invalid state supplied: %v", x)
	}

	mean, cov, _, _, err := Transform(x, k.p, func(s mat.Vector) (mat.Vector, error) {
		return k.m.Propagate(s, u, nil)
	}, k.lambda)
	if err != nil {
		return nil, fmt.Errorf("failed to predict system state: %v", err)
	}

	if _, ok := k.q.(*noise.None); !ok {
		for i := 0; i < cov.SymmetricDim(); i++ {
			for j := i; j < cov.SymmetricDim(); j++ {
				cov.SetSym(i, j, cov.At(i, j)+k.q.Cov().At(i, j))
			}
		}
	}

	k.pNext.CopySym(cov)

	return estimate.NewBaseWithCov(mean, k.pNext)
}

// Update corrects the predicted state x using the measurement z given control
// input u: it transforms the predicted belief through the observation
// function, adds the measurement noise covariance, computes the
// cross-covariance between the predicted sigma points and their observed
// images and blends the innovation into the belief.
// It mutates x in place when x is a *mat.VecDense and returns the corrected estimate.
// It returns error if either invalid state was supplied or if it fails to calculate the estimate.
func (k *UKF) Update(x, u, z mat.Vector) (filter.Estimate, error) {
	nx, _, ny, _ := k.m.SystemDims()

	if x.Len() != nx {
		return nil, fmt.Errorf("invalid state supplied: %v", x)
	}

	if z.Len() != ny {
		return nil, fmt.Errorf("invalid measurement supplied: %v", z)
	}

	// transform the predicted belief through the observation function
	yMean, yCov, sp, ysp, err := Transform(x, k.pNext, func(s mat.Vector) (mat.Vector, error) {
		return k.m.Observe(s, u, nil)
	}, k.lambda)
	if err != nil {
		return nil, fmt.Errorf("failed to transform predicted state: %v", err)
	}

	if _, ok := k.r.(*noise.None); !ok {
		for i := 0; i < yCov.SymmetricDim(); i++ {
			for j := i; j < yCov.SymmetricDim(); j++ {
				yCov.SetSym(i, j, yCov.At(i, j)+k.r.Cov().At(i, j))
			}
		}
	}

	w, err := Weights(nx, k.lambda)
	if err != nil {
		return nil, err
	}

	// cross-covariance between the predicted sigma points and their images
	// under the observation function
	pxy := mat.NewDense(nx, ny, nil)
	xDiff := mat.NewVecDense(nx, nil)
	yDiff := mat.NewVecDense(ny, nil)
	outer := mat.NewDense(nx, ny, nil)
	_, cols := sp.Dims()
	for c := 0; c < cols; c++ {
		xDiff.SubVec(sp.ColView(c), x)
		yDiff.SubVec(ysp.ColView(c), yMean)
		outer.Mul(xDiff, yDiff.T())
		outer.Scale(w[c], outer)
		pxy.Add(pxy, outer)
	}

	// calculate Kalman gain
	yCovInv := &mat.Dense{}
	if err := yCovInv.Inverse(yCov); err != nil {
		return nil, fmt.Errorf("failed to calculate innovation covariance inverse: %v", err)
	}
	gain := &mat.Dense{}
	gain.Mul(pxy, yCovInv)

	// innovation vector
	inn := &mat.VecDense{}
	inn.SubVec(z, yMean)

	// correct state x
	corr := &mat.Dense{}
	corr.Mul(gain, inn)

	xv, ok := x.(*mat.VecDense)
	if !ok {
		xv = mat.VecDenseCopyOf(x)
	}
	xv.AddVec(xv, corr.ColView(0))

	// covariance correction: P - K*Pyy*K'
	kr := &mat.Dense{}
	kr.Mul(yCov, gain.T())
	kyk := &mat.Dense{}
	kyk.Mul(gain, kr)

	pCorr := &mat.Dense{}
	pCorr.Sub(k.pNext, kyk)

	p, err := matrix.Symmetrize(pCorr)
	if err != nil {
		return nil, fmt.Errorf("failed to symmetrize corrected covariance: %v", err)
	}

	// update UKF innovation vector, gain and covariance matrix
	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	k.p.CopySym(p)

	return estimate.NewBaseWithCov(xv, k.p)
}

// Run runs one step of UKF for given state x, input u and measurement z.
// It corrects system state x using measurement z and returns new system estimate.
// It returns error if it either fails to propagate or correct state x.
func (k *UKF) Run(x, u, z mat.Vector) (filter.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}

	est, err := k.Update(pred.Val(), u, z)
	if err != nil {
		return nil, err
	}

	return est, nil
}

// Model returns UKF model
func (k *UKF) Model() filter.Model {
	return k.m
}

// Lambda returns the sigma point spread parameter
func (k *UKF) Lambda() float64 {
	return k.lambda
}

// Cov returns UKF covariance
func (k *UKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets UKF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as UKF covariance dimensions.
func (k *UKF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return fmt.Errorf("invalid covariance matrix dims: [%d x %d]", cov.SymmetricDim(), cov.SymmetricDim())
	}

	k.p.CopySym(cov)

	return nil
}

// Gain returns Kalman gain
func (k *UKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}
