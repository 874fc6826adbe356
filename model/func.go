package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StateFunc propagates state x under input u to the next step.
type StateFunc func(x, u mat.Vector) (mat.Vector, error)

// ObserveFunc returns the system output for state x under input u.
type ObserveFunc func(x, u mat.Vector) (mat.Vector, error)

// Func is a model of a nonlinear dynamical system defined by arbitrary
// propagation and observation functions. It implements filter.Model.
type Func struct {
	// f is state propagation function
	f StateFunc
	// h is observation function
	h ObserveFunc
	// nx, nu, ny are state, input and output dimensions
	nx, nu, ny int
}

// NewFunc creates a nonlinear model from propagation function f and
// observation function h with the given state (nx), input (nu) and
// output (ny) dimensions.
// It returns error if either function is nil or a dimension is invalid.
func NewFunc(f StateFunc, h ObserveFunc, nx, nu, ny int) (*Func, error) {
	if f == nil || h == nil {
		return nil, fmt.Errorf("invalid model functions: %v, %v", f, h)
	}

	if nx <= 0 || nu < 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d x %d]", nx, nu, ny)
	}

	return &Func{
		f:  f,
		h:  h,
		nx: nx,
		nu: nu,
		ny: ny,
	}, nil
}

// Propagate propagates state x to the next step.
// q is process noise added to the propagated state; it may be nil.
// It returns error if the state or input dimensions are invalid.
func (m *Func) Propagate(x, u, q mat.Vector) (mat.Vector, error) {
	if x.Len() != m.nx {
		return nil, fmt.Errorf("invalid state vector: %v", x)
	}

	if u != nil && u.Len() != m.nu {
		return nil, fmt.Errorf("invalid input vector: %v", u)
	}

	xNext, err := m.f(x, u)
	if err != nil {
		return nil, err
	}

	out := &mat.VecDense{}
	out.CloneFromVec(xNext)

	if q != nil && q.Len() == m.nx {
		out.AddVec(out, q)
	}

	return out, nil
}

// Observe returns the system output for state x.
// r is measurement noise added to the output; it may be nil.
// It returns error if the state or input dimensions are invalid.
func (m *Func) Observe(x, u, r mat.Vector) (mat.Vector, error) {
	if x.Len() != m.nx {
		return nil, fmt.Errorf("invalid state vector: %v", x)
	}

	if u != nil && u.Len() != m.nu {
		return nil, fmt.Errorf("invalid input vector: %v", u)
	}

	y, err := m.h(x, u)
	if err != nil {
		return nil, err
	}

	out := &mat.VecDense{}
	out.CloneFromVec(y)

	if r != nil && r.Len() == m.ny {
		out.AddVec(out, r)
	}

	return out, nil
}

// SystemDims returns state, input, output and disturbance dimensions.
func (m *Func) SystemDims() (nx, nu, ny, nz int) {
	return m.nx, m.nu, m.ny, 0
}
