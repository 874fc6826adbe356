package sim

import (
	"fmt"

	filter "github.com/milosgajdos/go-bayes"
	"gonum.org/v1/gonum/mat"
)

// Policy selects the control input for the given simulation step based on
// the latest state estimate. It may return nil for an uncontrolled system.
type Policy func(step int, est filter.Estimate) mat.Vector

// Truth advances the true state of a simulated system. It owns the true
// state exclusively: filters never see it, only the measurements it emits.
type Truth struct {
	// m is the simulated system model
	m filter.Model
	// q is process noise added to state propagation
	q filter.Noise
	// r is measurement noise added to observations
	r filter.Noise
	// x is the true system state
	x *mat.VecDense
}

// NewTruth creates a true-state simulator for the model m starting at x0.
// q and r are the process and measurement noise sources; either may be nil
// for a noiseless system.
// It returns error if x0 dimension doesn't match the model.
func NewTruth(m filter.Model, q, r filter.Noise, x0 mat.Vector) (*Truth, error) {
	nx, _, _, _ := m.SystemDims()
	if x0.Len() != nx {
		return nil, fmt.Errorf("invalid initial state dimension: %d", x0.Len())
	}

	x := &mat.VecDense{}
	x.CloneFromVec(x0)

	return &Truth{
		m: m,
		q: q,
		r: r,
		x: x,
	}, nil
}

// State returns a copy of the current true state.
func (t *Truth) State() mat.Vector {
	x := &mat.VecDense{}
	x.CloneFromVec(t.x)

	return x
}

// Step advances the true state under input u with a fresh process noise draw
// and samples a measurement of the new state with a fresh measurement noise
// draw. It returns the new true state and the measurement.
// It returns error if the model fails to propagate or observe.
func (t *Truth) Step(u mat.Vector) (x, z mat.Vector, err error) {
	var wd, wn mat.Vector
	if t.q != nil {
		wd = t.q.Sample()
	}
	if t.r != nil {
		wn = t.r.Sample()
	}

	xNext, err := t.m.Propagate(t.x, u, wd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to propagate true state: %v", err)
	}
	t.x.CloneFromVec(xNext)

	z, err = t.m.Observe(t.x, u, wn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to observe true state: %v", err)
	}

	return t.State(), z, nil
}

// Trajectory holds per-step simulation histories stored in matrix rows:
// true states, measurements and filter estimates.
type Trajectory struct {
	// Truth stores true system states
	Truth *mat.Dense
	// Measurement stores sampled measurements
	Measurement *mat.Dense
	// Estimate stores filter estimates
	Estimate *mat.Dense
}

// Run drives a strict sequential simulation loop for the given number of
// steps: query the policy for an input, advance the true state, sample a
// measurement and feed it to the filter. The filter belief and the true
// state are advanced by two separate calls with separate noise draws; the
// filter never accesses the true state.
// It returns the recorded trajectories or error if any step fails.
func Run(f filter.Filter, truth *Truth, policy Policy, x0 mat.Vector, steps int) (*Trajectory, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("invalid number of simulation steps: %d", steps)
	}

	nx, _, ny, _ := truth.m.SystemDims()

	traj := &Trajectory{
		Truth:       mat.NewDense(steps, nx, nil),
		Measurement: mat.NewDense(steps, ny, nil),
		Estimate:    mat.NewDense(steps, nx, nil),
	}

	x := &mat.VecDense{}
	x.CloneFromVec(x0)

	var est filter.Estimate
	for i := 0; i < steps; i++ {
		var u mat.Vector
		if policy != nil {
			u = policy(i, est)
		}

		xTrue, z, err := truth.Step(u)
		if err != nil {
			return nil, err
		}

		pred, err := f.Predict(x, u)
		if err != nil {
			return nil, fmt.Errorf("filter prediction failed at step %d: %v", i, err)
		}

		est, err = f.Update(pred.Val(), u, z)
		if err != nil {
			return nil, fmt.Errorf("filter update failed at step %d: %v", i, err)
		}
		x.CloneFromVec(est.Val())

		for j := 0; j < nx; j++ {
			traj.Truth.Set(i, j, xTrue.AtVec(j))
			traj.Estimate.Set(i, j, x.AtVec(j))
		}
		for j := 0; j < ny; j++ {
			traj.Measurement.Set(i, j, z.AtVec(j))
		}
	}

	return traj, nil
}
