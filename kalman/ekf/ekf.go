package ekf

import (
	"fmt"

	filter "github.com/milosgajdos/go-bayes"
	"github.com/milosgajdos/go-bayes/estimate"
	"github.com/milosgajdos/go-bayes/matrix"
	"github.com/milosgajdos/go-bayes/noise"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// JacFunc defines jacobian function to calculate Jacobian matrix
type JacFunc func(u mat.Vector) func(y, x []float64)

// EKF is Extended Kalman Filter. It handles nonlinear system dynamics by
// linearizing the propagation and observation functions around the current
// belief mean on every step: the Jacobians take the place of the propagation
// and observation matrices in the linear Kalman cycle. The approximation
// error grows with the curvature of the dynamics and the belief spread;
// there is no safeguard against divergence.
type EKF struct {
	// m is EKF system model
	m filter.Model
	// q is state noise a.k.a. process noise
	q filter.Noise
	// r is output noise a.k.a. measurement noise
	r filter.Noise
	// fJacFn is propagation Jacobian function
	fJacFn JacFunc
	// f is EKF propagation matrix
	f *mat.Dense
	// hJacFn is observation Jacobian function
	hJacFn JacFunc
	// h is EKF observation matrix
	h *mat.Dense
	// p is the EKF covariance matrix
	p *mat.SymDense
	// pNext is the EKF predicted covariance matrix
	pNext *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new EKF and returns it.
// It accepts the following parameters:
//   - m:      dynamical system model
//   - init:   initial condition of the filter
//   - q:      state noise a.k.a. process noise
//   - r:      output noise a.k.a. measurement noise
//
// It returns error if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - invalid state or output noise is given: noise covariance must either be nil or match the model dimensions
func New(m filter.Model, init filter.InitCond, q, r filter.Noise) (*EKF, error) {
	// size of the input and output vectors
	nx, _, ny, _ := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
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

	// propagation Jacobian function
	fJacFn := func(u mat.Vector) func([]float64, []float64) {
		return func(xOut, xNow []float64) {
			x := mat.NewVecDense(len(xNow), xNow)
			xNext, err := m.Propagate(x, u, nil)
			if err != nil {
				panic(err)
			}

			for i := 0; i < len(xOut); i++ {
				xOut[i] = xNext.AtVec(i)
			}
		}
	}
	f := mat.NewDense(nx, nx, nil)

	// observation Jacobian function
	hJacFn := func(u mat.Vector) func([]float64, []float64) {
		return func(y, xNow []float64) {
			x := mat.NewVecDense(len(xNow), xNow)
			yNext, err := m.Observe(x, u, nil)
			if err != nil {
				panic(err)
			}

			for i := 0; i < len(y); i++ {
				y[i] = yNext.AtVec(i)
			}
		}
	}
	h := mat.NewDense(ny, nx, nil)

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

	return &EKF{
		m:      m,
		q:      q,
		r:      r,
		fJacFn: fJacFn,
		f:      f,
		hJacFn: hJacFn,
		h:      h,
		p:      p,
		pNext:  pNext,
		inn:    inn,
		k:      k,
	}, nil
}

// Predict propagates the belief mean through the nonlinear dynamics and
// projects the covariance through the propagation Jacobian evaluated at the
// current mean: P' = F*P*F' + Q.
// It returns the predicted estimate or error if the propagation fails.
func (k *EKF) Predict(x, u mat.Vector) (filter.Estimate, error) {
	// propagate input state to the next step
	xNext, err := k.m.Propagate(x, u, nil)
	if err != nil {
		return nil, fmt.Errorf("system state propagation failed: %v", err)
	}

	// linearize the dynamics around the current mean
	data := make([]float64, x.Len())
	for i := range data {
		data[i] = x.AtVec(i)
	}
	fd.Jacobian(k.f, k.fJacFn(u), data, &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})

	cov := &mat.Dense{}
	cov.Mul(k.f, k.p)
	cov.Mul(cov, k.f.T())

	if _, ok := k.q.(*noise.None); !ok {
		cov.Add(cov, k.q.Cov())
	}

	pNext, err := matrix.Symmetrize(cov)
	if err != nil {
		return nil, fmt.Errorf("failed to symmetrize predicted covariance: %v", err)
	}
	k.pNext.CopySym(pNext)

	return estimate.NewBaseWithCov(xNext, k.pNext)
}

// Update corrects the predicted state x using the measurement z given control
// input u. The observation function is linearized around the predicted mean
// before the standard Kalman correction is applied.
// It mutates x in place when x is a *mat.VecDense and returns the corrected estimate.
// It returns error if either invalid state was supplied or if it fails to calculate the estimate.
func (k *EKF) Update(x, u, z mat.Vector) (filter.Estimate, error) {
	nx, _, ny, _ := k.m.SystemDims()

	if x.Len() != nx {
		return nil, fmt.Errorf("invalid state supplied: %v", x)
	}

	if z.Len() != ny {
		return nil, fmt.Errorf("invalid measurement supplied: %v", z)
	}

	// expected system output given the predicted state
	yNext, err := k.m.Observe(x, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to observe system output: %v", err)
	}

	// linearize the observation function around the predicted mean
	data := make([]float64, x.Len())
	for i := range data {
		data[i] = x.AtVec(i)
	}
	fd.Jacobian(k.h, k.hJacFn(u), data, &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})

	// P*H'
	pxy := &mat.Dense{}
	pxy.Mul(k.pNext, k.h.T())

	// innovation covariance H*P*H' + R
	pyy := &mat.Dense{}
	pyy.Mul(k.h, pxy)
	if _, ok := k.r.(*noise.None); !ok {
		pyy.Add(pyy, k.r.Cov())
	}

	// calculate Kalman gain
	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return nil, fmt.Errorf("failed to calculate innovation covariance inverse: %v", err)
	}
	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	// innovation vector
	inn := &mat.VecDense{}
	inn.SubVec(z, yNext)

	// correct state x
	corr := &mat.Dense{}
	corr.Mul(gain, inn)

	xv, ok := x.(*mat.VecDense)
	if !ok {
		xv = mat.VecDenseCopyOf(x)
	}
	xv.AddVec(xv, corr.ColView(0))

	// covariance correction: (I - K*H)*P
	kh := &mat.Dense{}
	kh.Mul(gain, k.h)
	eye := identity(nx)
	kh.Sub(eye, kh)

	pCorr := &mat.Dense{}
	pCorr.Mul(kh, k.pNext)

	p, err := matrix.Symmetrize(pCorr)
	if err != nil {
		return nil, fmt.Errorf("failed to symmetrize corrected covariance: %v", err)
	}

	// update EKF innovation vector, gain and covariance matrix
	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	k.p.CopySym(p)

	return estimate.NewBaseWithCov(xv, k.p)
}

// Run runs one step of EKF for given state x, input u and measurement z.
// It corrects system state x using measurement z and returns new system estimate.
// It returns error if it either fails to propagate or correct state x.
func (k *EKF) Run(x, u, z mat.Vector) (filter.Estimate, error) {
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

// Model returns EKF model
func (k *EKF) Model() filter.Model {
	return k.m
}

// StateNoise returns state noise
func (k *EKF) StateNoise() filter.Noise {
	return k.q
}

// OutputNoise returns output noise
func (k *EKF) OutputNoise() filter.Noise {
	return k.r
}

// Cov returns EKF covariance
func (k *EKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets EKF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as EKF covariance dimensions.
func (k *EKF) SetCov(cov mat.Symmetric) error {
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
func (k *EKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}

func identity(n int) *mat.Dense {
	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, 1.0)
	}

	return eye
}
