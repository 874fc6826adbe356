package dbf

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-bayes"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DBF is a Discrete Bayes Filter: it maintains an exact belief over a finite
// state space as a probability vector and updates it with the HMM forward
// recursion. DBF is stateless across calls and fully deterministic.
type DBF struct {
	// m is the finite-space system model
	m filter.DiscreteModel
}

// New creates new DBF for the given finite-space model and returns it.
// It returns error if the model space dimensions are not positive.
func New(m filter.DiscreteModel) (*DBF, error) {
	ns, na, no := m.SpaceDims()
	if ns <= 0 || na <= 0 || no <= 0 {
		return nil, fmt.Errorf("invalid model space dimensions: [%d x %d x %d]", ns, na, no)
	}

	return &DBF{m: m}, nil
}

// Uniform returns the uniform belief over a state space of size ns.
// It returns error if ns is not positive.
func Uniform(ns int) (*mat.VecDense, error) {
	if ns <= 0 {
		return nil, fmt.Errorf("invalid state space size: %d", ns)
	}

	data := make([]float64, ns)
	for i := range data {
		data[i] = 1 / float64(ns)
	}

	return mat.NewVecDense(ns, data), nil
}

// Predict pushes belief b through the transition model under action a:
// bPred(sn) = sum_s T(s, a, sn) * b(s). The result is a probability vector
// whenever b is one.
// It returns error if b dimension or the action index is invalid.
func (f *DBF) Predict(b mat.Vector, a int) (*mat.VecDense, error) {
	ns, na, _ := f.m.SpaceDims()
	if b.Len() != ns {
		return nil, fmt.Errorf("invalid belief dimension: %d", b.Len())
	}

	if a < 0 || a >= na {
		return nil, fmt.Errorf("invalid action index: %d", a)
	}

	pred := mat.NewVecDense(ns, nil)
	for sn := 0; sn < ns; sn++ {
		var p float64
		for s := 0; s < ns; s++ {
			p += f.m.Transition(a, s, sn) * b.AtVec(s)
		}
		pred.SetVec(sn, p)
	}

	return pred, nil
}

// Update weights the predicted belief b by the likelihood of observation o
// under action a and normalizes the result to sum to 1. If the observation
// has zero likelihood under every state the belief is flattened to uniform
// rather than left degenerate.
// It returns error if b dimension or the action/observation indices are invalid.
func (f *DBF) Update(b mat.Vector, a, o int) (*mat.VecDense, error) {
	ns, na, no := f.m.SpaceDims()
	if b.Len() != ns {
		return nil, fmt.Errorf("invalid belief dimension: %d", b.Len())
	}

	if a < 0 || a >= na {
		return nil, fmt.Errorf("invalid action index: %d", a)
	}

	if o < 0 || o >= no {
		return nil, fmt.Errorf("invalid observation index: %d", o)
	}

	post := mat.NewVecDense(ns, nil)
	for sn := 0; sn < ns; sn++ {
		post.SetVec(sn, f.m.Observation(a, sn, o)*b.AtVec(sn))
	}

	normalize(post)

	return post, nil
}

// Run performs one full belief update for action a and observation o:
// prediction through the transition model followed by the observation
// correction. The returned belief is non-negative and sums to 1.
// It returns error if b dimension or the action/observation indices are invalid.
func (f *DBF) Run(b mat.Vector, a, o int) (*mat.VecDense, error) {
	pred, err := f.Predict(b, a)
	if err != nil {
		return nil, err
	}

	return f.Update(pred, a, o)
}

// normalize scales b to sum to 1. A belief with zero total evidence is
// flattened to uniform first so the filter never yields an undefined belief.
func normalize(b *mat.VecDense) {
	sum := floats.Sum(b.RawVector().Data)
	if sum <= 0 || math.IsNaN(sum) {
		for i := 0; i < b.Len(); i++ {
			b.SetVec(i, 1.0)
		}
		sum = float64(b.Len())
	}

	b.ScaleVec(1/sum, b)
}
