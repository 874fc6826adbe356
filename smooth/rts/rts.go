package rts

import (
	"fmt"

	filter "github.com/milosgajdos/go-bayes"
	"github.com/milosgajdos/go-bayes/estimate"
	"github.com/milosgajdos/go-bayes/matrix"
	"github.com/milosgajdos/go-bayes/noise"
	"gonum.org/v1/gonum/mat"
)

// RTS is Rauch-Tung-Striebel smoother. It runs a backward pass over a
// sequence of filtered estimates: the last smoothed estimate equals the last
// filtered one and every earlier estimate is corrected by how much the
// smoothed future disagrees with its prediction.
type RTS struct {
	// q is state noise a.k.a. process noise
	q filter.Noise
	// m is system model
	m filter.DiscreteControlSystem
}

// New creates new RTS smoother and returns it.
// It returns error if either invalid model dimensions or state noise is given.
func New(m filter.DiscreteControlSystem, q filter.Noise) (*RTS, error) {
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

	return &RTS{
		q: q,
		m: m,
	}, nil
}

// Smooth runs the Rauch-Tung-Striebel backward pass over the filtered
// estimates est with control inputs u and returns the smoothed estimates.
// u may be nil; when given it must have one input per estimate.
// It returns error if est is empty, the inputs do not line up with the
// estimates or the smoothing recursion fails.
func (s *RTS) Smooth(est []filter.Estimate, u []mat.Vector) ([]filter.Estimate, error) {
	if len(est) == 0 {
		return nil, fmt.Errorf("invalid estimates size: %d", len(est))
	}

	if u != nil && len(u) != len(est) {
		return nil, fmt.Errorf("invalid input vector size: %d", len(u))
	}

	sx := make([]filter.Estimate, len(est))

	// the backward pass starts from the last filtered estimate
	e, err := estimate.NewBaseWithCov(est[len(est)-1].Val(), est[len(est)-1].Cov())
	if err != nil {
		return nil, err
	}
	sx[len(est)-1] = e

	a := s.m.SystemMatrix()

	for i := len(est) - 2; i >= 0; i-- {
		var uk mat.Vector
		if u != nil {
			uk = u[i]
		}

		// predicted state: A*x + B*u
		xPred, err := s.m.Propagate(est[i].Val(), uk, nil)
		if err != nil {
			return nil, fmt.Errorf("model state propagation failed: %v", err)
		}

		// predicted covariance: A*P*A' + Q
		pPred := &mat.Dense{}
		pPred.Mul(a, est[i].Cov())
		pPred.Mul(pPred, a.T())
		if _, ok := s.q.(*noise.None); !ok {
			pPred.Add(pPred, s.q.Cov())
		}

		// smoothing gain: P*A'*pPred^-1
		pPredInv := &mat.Dense{}
		if err := pPredInv.Inverse(pPred); err != nil {
			return nil, fmt.Errorf("failed to invert predicted covariance: %v", err)
		}
		c := &mat.Dense{}
		c.Mul(est[i].Cov(), a.T())
		c.Mul(c, pPredInv)

		// smoothed state: x + C*(xSmooth_next - xPred)
		xDiff := &mat.VecDense{}
		xDiff.SubVec(e.Val(), xPred)
		corr := &mat.Dense{}
		corr.Mul(c, xDiff)
		x := &mat.VecDense{}
		x.AddVec(est[i].Val(), corr.ColView(0))

		// smoothed covariance: P + C*(pSmooth_next - pPred)*C'
		pDiff := &mat.Dense{}
		pDiff.Sub(e.Cov(), pPred)
		pk := &mat.Dense{}
		pk.Mul(c, pDiff)
		pk.Mul(pk, c.T())
		pk.Add(est[i].Cov(), pk)

		pSmooth, err := matrix.Symmetrize(pk)
		if err != nil {
			return nil, fmt.Errorf("failed to symmetrize smoothed covariance: %v", err)
		}

		e, err = estimate.NewBaseWithCov(x, pSmooth)
		if err != nil {
			return nil, err
		}
		sx[i] = e
	}

	return sx, nil
}
