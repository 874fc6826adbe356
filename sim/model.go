package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// System defines a linear model of a plant using
// traditional matrices of modern control theory.
//
// It contains the System (A), input (B), Observation/Output (C)
// Feedthrough (D) and disturbance (E) matrices.
type System struct {
	// System/State matrix A
	A *mat.Dense
	// Control/Input Matrix B
	B *mat.Dense
	// Observation/Output Matrix C
	C *mat.Dense
	// Feedthrough matrix D
	D *mat.Dense
	// Perturbation matrix (related to process noise wd) E
	E *mat.Dense
}

// SystemDims returns internal state length (nx), input vector length (nu),
// external/observable/output state length (ny) and disturbance vector length (nz).
func (s System) SystemDims() (nx, nu, ny, nz int) {
	nx, _ = s.A.Dims()
	if s.B != nil {
		_, nu = s.B.Dims()
	}
	if s.C != nil {
		ny, _ = s.C.Dims()
	}
	if s.E != nil {
		_, nz = s.E.Dims()
	}
	return nx, nu, ny, nz
}

// SystemMatrix returns state propagation matrix `A`.
func (s System) SystemMatrix() (A mat.Matrix) { return s.A }

// ControlMatrix returns state propagation control matrix `B`
func (s System) ControlMatrix() (B mat.Matrix) {
	if s.B == nil {
		return nil
	}
	return s.B
}

// OutputMatrix returns observation matrix `C`
func (s System) OutputMatrix() (C mat.Matrix) {
	if s.C == nil {
		return nil
	}
	return s.C
}

// FeedForwardMatrix returns observation control matrix `D`
func (s System) FeedForwardMatrix() (D mat.Matrix) {
	if s.D == nil {
		return nil
	}
	return s.D
}

// Propagate returns the next internal state x of the system given an input
// vector u. wd is process noise added to the propagated state; it may be nil.
func (s System) Propagate(x, u, wd mat.Vector) (mat.Vector, error) {
	nx, nu, _, _ := s.SystemDims()
	if u != nil && u.Len() != nu {
		return nil, fmt.Errorf("invalid input vector")
	}

	if x.Len() != nx {
		return nil, fmt.Errorf("invalid state vector")
	}

	out := new(mat.Dense)
	out.Mul(s.A, x)
	if u != nil && s.B != nil {
		outU := new(mat.Dense)
		outU.Mul(s.B, u)

		out.Add(out, outU)
	}

	if wd != nil && wd.Len() == nx {
		out.Add(out, wd)
	}

	return out.ColView(0), nil
}

// Observe returns external/observable state given internal state x and input u.
// wn is measurement noise added to the output; it may be nil.
func (s System) Observe(x, u, wn mat.Vector) (y mat.Vector, err error) {
	nx, nu, ny, _ := s.SystemDims()
	if u != nil && u.Len() != nu {
		return nil, fmt.Errorf("invalid input vector")
	}

	if x.Len() != nx {
		return nil, fmt.Errorf("invalid state vector")
	}

	out := new(mat.Dense)
	out.Mul(s.C, x)

	if u != nil && s.D != nil {
		outU := new(mat.Dense)
		outU.Mul(s.D, u)

		out.Add(out, outU)
	}

	if wn != nil && wn.Len() == ny {
		out.Add(out, wn)
	}

	return out.ColView(0), nil
}

// Discrete is a basic model of a linear, discrete-time, dynamical system
type Discrete struct {
	System
}

// NewDiscrete creates a linear discrete-time model based on the control theory equations.
//
//	x[n+1] = A*x[n] + B*u[n]
//	y[n] = C*x[n] + D*u[n]
//
// It returns error if the system matrix A or the output matrix C is missing.
func NewDiscrete(A, B, C, D *mat.Dense) (*Discrete, error) {
	if A == nil {
		return nil, fmt.Errorf("system matrix must be defined for a model")
	}

	if C == nil {
		return nil, fmt.Errorf("output matrix must be defined for a model")
	}

	sys := System{A: mat.DenseCopyOf(A), C: mat.DenseCopyOf(C)}
	if B != nil {
		sys.B = mat.DenseCopyOf(B)
	}
	if D != nil {
		sys.D = mat.DenseCopyOf(D)
	}

	return &Discrete{System: sys}, nil
}
