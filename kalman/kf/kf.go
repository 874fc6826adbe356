package kf

import (
	"fmt"

	filter "github.com/milosgajdos/go-bayes"
	"github.com/milosgajdos/go-bayes/estimate"
	"github.com/milosgajdos/go-bayes/matrix"
	"github.com/milosgajdos/go-bayes/noise"
	"gonum.org/v1/gonum/mat"
)

// KF is a linear Kalman Filter. It maintains a Gaussian belief as a mean
// vector and a covariance matrix and updates it with the exact closed-form
// predict/correct cycle. Both phases are deterministic: noise enters the
// cycle only through the noise covariances.
type KF struct {
	// m is KF system model
	m filter.DiscreteControlSystem
	// q is state noise a.k.a. process noise
	q filter.Noise
	// r is output noise a.k.a. measurement noise
	r filter.Noise
	// p is the KF covariance matrix
	p *mat.SymDense
	// pNext is the KF predicted covariance matrix
	pNext *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - m:      dynamical system model
//   - init:   initial condition of the filter
//   - q:      state noise a.k.a. process noise
//   - r:      output noise a.k.a. measurement noise
//
// It returns error if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - invalid state or output noise is given: noise covariance must either be nil or match the model dimensions
func New(m filter.DiscreteControlSystem, init filter.InitCond, q, r filter.Noise) (*KF, error) {
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

	rows, cols := m.SystemMatrix().Dims()
	if rows != nx || cols != nx {
		return nil, fmt.Errorf("invalid propagation matrix dimensions: [%d x %d]", rows, cols)
	}

	if m.ControlMatrix() != nil {
		rows, cols := m.ControlMatrix().Dims()
		if rows != nx {
			return nil, fmt.Errorf("invalid ctl propagation matrix dimensions: [%d x %d]", rows, cols)
		}
	}

	rows, cols = m.OutputMatrix().Dims()
	if rows != ny || cols != nx {
		return nil, fmt.Errorf("invalid observation matrix dimensions: [%d x %d]", rows, cols)
	}

	if m.FeedForwardMatrix() != nil {
		rows, cols = m.FeedForwardMatrix().Dims()
		if rows != ny {
			return nil, fmt.Errorf("invalid ctl observation matrix dimensions: [%d x %d]", rows, cols)
		}
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

	return &KF{
		m:     m,
		q:     q,
		r:     r,
		p:     p,
		pNext: pNext,
		inn:   inn,
		k:     k,
	}, nil
}

// Predict propagates the belief mean through the system dynamics and
// projects the covariance to the next step: P' = A*P*A' + Q.
// The propagation is deterministic: no noise is sampled into the mean.
// It returns the predicted estimate or error if the propagation fails.
func (k *KF) Predict(x, u mat.Vector) (filter.Estimate, error) {
	xNext, err := k.m.Propagate(x, u, nil)
	if err != nil {
		return nil, fmt.Errorf("system state propagation failed: %v", err)
	}

	cov := &mat.Dense{}
	cov.Mul(k.m.SystemMatrix(), k.p)
	cov.Mul(cov, k.m.SystemMatrix().T())

	if _, ok := k.q.(*noise.None); !ok {
		cov.Add(cov, k.q.Cov())
	}

	// guard against symmetry drift before the covariance is stored
	pNext, err := matrix.Symmetrize(cov)
	if err != nil {
		return nil, fmt.Errorf("failed to symmetrize predicted covariance: %v", err)
	}
	k.pNext.CopySym(pNext)

	return estimate.NewBaseWithCov(xNext, k.pNext)
}

// Update corrects the predicted state x using the measurement z given control
// input u: it computes the Kalman gain from the innovation covariance and
// blends the innovation into the belief mean and covariance.
// It mutates x in place when x is a *mat.VecDense and returns the corrected estimate.
// It returns error if either invalid state was supplied or if it fails to calculate the estimate.
func (k *KF) Update(x, u, z mat.Vector) (filter.Estimate, error) {
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

	// P*H'
	pxy := &mat.Dense{}
	pxy.Mul(k.pNext, k.m.OutputMatrix().T())

	// innovation covariance H*P*H' + R
	pyy := &mat.Dense{}
	pyy.Mul(k.m.OutputMatrix(), pxy)
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
	kh.Mul(gain, k.m.OutputMatrix())
	eye := identity(nx)
	kh.Sub(eye, kh)

	pCorr := &mat.Dense{}
	pCorr.Mul(kh, k.pNext)

	p, err := matrix.Symmetrize(pCorr)
	if err != nil {
		return nil, fmt.Errorf("failed to symmetrize corrected covariance: %v", err)
	}

	// update KF innovation vector, gain and covariance matrix
	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	k.p.CopySym(p)

	return estimate.NewBaseWithCov(xv, k.p)
}

// Run runs one step of KF for given state x, input u and measurement z.
// It corrects system state x using measurement z and returns new system estimate.
// It returns error if it either fails to propagate or correct state x.
func (k *KF) Run(x, u, z mat.Vector) (filter.Estimate, error) {
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

// Model returns KF model
func (k *KF) Model() filter.DiscreteControlSystem {
	return k.m
}

// StateNoise returns state noise
func (k *KF) StateNoise() filter.Noise {
	return k.q
}

// OutputNoise returns output noise
func (k *KF) OutputNoise() filter.Noise {
	return k.r
}

// Cov returns KF covariance
func (k *KF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets KF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as KF covariance dimensions.
func (k *KF) SetCov(cov mat.Symmetric) error {
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
func (k *KF) Gain() mat.Matrix {
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
