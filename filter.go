package filter

import "gonum.org/v1/gonum/mat"

// Filter is a dynamical system filter.
type Filter interface {
	// Predict estimates the next internal state of the system
	Predict(mat.Vector, mat.Vector) (Estimate, error)
	// Update updates the system state based on external measurement
	Update(mat.Vector, mat.Vector, mat.Vector) (Estimate, error)
}

// Propagator propagates internal state of the system to the next step
type Propagator interface {
	// Propagate propagates internal state of the system to the next step.
	// The last vector is process noise added to the propagated state; it
	// may be nil for deterministic propagation.
	Propagate(mat.Vector, mat.Vector, mat.Vector) (mat.Vector, error)
}

// Observer observes external state (output) of the system
type Observer interface {
	// Observe observes external state of the system.
	// The last vector is measurement noise added to the output; it may be
	// nil for a noiseless observation.
	Observe(mat.Vector, mat.Vector, mat.Vector) (mat.Vector, error)
}

// Model is a model of a dynamical system
type Model interface {
	// Propagator is system propagator
	Propagator
	// Observer is system observer
	Observer
	// SystemDims returns internal state length (nx), input vector length (nu),
	// output vector length (ny) and disturbance vector length (nz)
	SystemDims() (nx, nu, ny, nz int)
}

// DiscreteControlSystem is a dynamical system whose state is driven by
// static propagation and observation dynamics matrices
type DiscreteControlSystem interface {
	// Model is a model of a dynamical system
	Model
	// SystemMatrix returns state propagation matrix
	SystemMatrix() mat.Matrix
	// ControlMatrix returns state propagation control matrix
	ControlMatrix() mat.Matrix
	// OutputMatrix returns observation matrix
	OutputMatrix() mat.Matrix
	// FeedForwardMatrix returns observation control matrix
	FeedForwardMatrix() mat.Matrix
}

// DiscreteModel is a model of a partially observable system with finite
// state, action and observation spaces. States, actions and observations
// are identified by their indices into the respective spaces.
type DiscreteModel interface {
	// SpaceDims returns the sizes of the state, action and observation spaces
	SpaceDims() (ns, na, no int)
	// Transition returns the probability of transitioning from state s
	// to state sn when taking action a
	Transition(a, s, sn int) float64
	// Observation returns the probability of observing o in state sn
	// after taking action a
	Observation(a, sn, o int) float64
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is dynamical system filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset()
}
