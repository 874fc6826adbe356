package sim

import (
	"testing"

	filter "github.com/milosgajdos/go-bayes"
	"github.com/milosgajdos/go-bayes/estimate"
	"github.com/milosgajdos/go-bayes/noise"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	okModel *Discrete
	x0      *mat.VecDense
)

func setup() {
	// 2D random walk with identity observation
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	c := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	okModel, _ = NewDiscrete(a, b, c, nil)

	x0 = mat.NewVecDense(2, []float64{1.0, -1.0})
}

func TestMain(m *testing.M) {
	setup()
	m.Run()
}

func TestNewInitCond(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{1.0, 3.0})
	cov := mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25})

	ic := NewInitCond(state, cov)
	assert.NotNil(ic)

	s := ic.State()
	assert.True(mat.EqualApprox(state, s, 1e-9))

	c := ic.Cov()
	assert.True(mat.EqualApprox(cov, c, 1e-9))

	// returned state and covariance are copies
	s.(*mat.VecDense).SetVec(0, 100.0)
	assert.InDelta(1.0, ic.State().AtVec(0), 1e-9)
}

func TestNewDiscrete(t *testing.T) {
	assert := assert.New(t)

	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	c := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	m, err := NewDiscrete(a, nil, c, nil)
	assert.NotNil(m)
	assert.NoError(err)

	m, err = NewDiscrete(nil, nil, c, nil)
	assert.Nil(m)
	assert.Error(err)

	m, err = NewDiscrete(a, nil, nil, nil)
	assert.Nil(m)
	assert.Error(err)
}

func TestSystemDims(t *testing.T) {
	assert := assert.New(t)

	nx, nu, ny, nz := okModel.SystemDims()
	assert.Equal(2, nx)
	assert.Equal(2, nu)
	assert.Equal(2, ny)
	assert.Equal(0, nz)

	assert.NotNil(okModel.SystemMatrix())
	assert.NotNil(okModel.ControlMatrix())
	assert.NotNil(okModel.OutputMatrix())
	assert.Nil(okModel.FeedForwardMatrix())
}

func TestPropagate(t *testing.T) {
	assert := assert.New(t)

	u := mat.NewVecDense(2, []float64{0.5, -0.5})

	x, err := okModel.Propagate(x0, u, nil)
	assert.NotNil(x)
	assert.NoError(err)
	assert.InDelta(1.5, x.AtVec(0), 1e-9)
	assert.InDelta(-1.5, x.AtVec(1), 1e-9)

	// nil input leaves the state unchanged for an identity system
	x, err = okModel.Propagate(x0, nil, nil)
	assert.NoError(err)
	assert.True(mat.EqualApprox(x0, x, 1e-9))

	// process noise is added to the propagated state
	wd := mat.NewVecDense(2, []float64{0.1, 0.1})
	x, err = okModel.Propagate(x0, nil, wd)
	assert.NoError(err)
	assert.InDelta(1.1, x.AtVec(0), 1e-9)

	// invalid state vector
	x, err = okModel.Propagate(mat.NewVecDense(3, nil), u, nil)
	assert.Nil(x)
	assert.Error(err)

	// invalid input vector
	x, err = okModel.Propagate(x0, mat.NewVecDense(3, nil), nil)
	assert.Nil(x)
	assert.Error(err)
}

func TestObserve(t *testing.T) {
	assert := assert.New(t)

	y, err := okModel.Observe(x0, nil, nil)
	assert.NotNil(y)
	assert.NoError(err)
	assert.True(mat.EqualApprox(x0, y, 1e-9))

	// measurement noise is added to the output
	wn := mat.NewVecDense(2, []float64{0.2, -0.2})
	y, err = okModel.Observe(x0, nil, wn)
	assert.NoError(err)
	assert.InDelta(1.2, y.AtVec(0), 1e-9)

	// invalid state vector
	y, err = okModel.Observe(mat.NewVecDense(3, nil), nil, nil)
	assert.Nil(y)
	assert.Error(err)
}

func TestTruth(t *testing.T) {
	assert := assert.New(t)

	truth, err := NewTruth(okModel, nil, nil, x0)
	assert.NotNil(truth)
	assert.NoError(err)

	// invalid initial state dimension
	tr, err := NewTruth(okModel, nil, nil, mat.NewVecDense(3, nil))
	assert.Nil(tr)
	assert.Error(err)

	// noiseless system: the trajectory follows the dynamics exactly
	u := mat.NewVecDense(2, []float64{1.0, 1.0})
	x, z, err := truth.Step(u)
	assert.NoError(err)
	assert.InDelta(2.0, x.AtVec(0), 1e-9)
	assert.InDelta(0.0, x.AtVec(1), 1e-9)
	assert.True(mat.EqualApprox(x, z, 1e-9))

	// the state is advanced in place
	assert.True(mat.EqualApprox(x, truth.State(), 1e-9))

	x, _, err = truth.Step(u)
	assert.NoError(err)
	assert.InDelta(3.0, x.AtVec(0), 1e-9)
}

// mockFilter trusts every measurement completely.
type mockFilter struct{}

func (f *mockFilter) Predict(x, u mat.Vector) (filter.Estimate, error) {
	out := &mat.VecDense{}
	out.CloneFromVec(x)
	return estimate.NewBase(out)
}

func (f *mockFilter) Update(x, u, z mat.Vector) (filter.Estimate, error) {
	out := &mat.VecDense{}
	out.CloneFromVec(z)
	return estimate.NewBase(out)
}

func TestRun(t *testing.T) {
	assert := assert.New(t)

	q, _ := noise.NewZero(2)
	r, _ := noise.NewZero(2)

	truth, err := NewTruth(okModel, q, r, x0)
	assert.NoError(err)

	policy := func(step int, est filter.Estimate) mat.Vector {
		return mat.NewVecDense(2, []float64{1.0, 0.0})
	}

	steps := 5
	traj, err := Run(&mockFilter{}, truth, policy, x0, steps)
	assert.NotNil(traj)
	assert.NoError(err)

	rows, cols := traj.Truth.Dims()
	assert.Equal(steps, rows)
	assert.Equal(2, cols)
	rows, _ = traj.Measurement.Dims()
	assert.Equal(steps, rows)
	rows, _ = traj.Estimate.Dims()
	assert.Equal(steps, rows)

	// noiseless identity system moved by u each step
	assert.InDelta(2.0, traj.Truth.At(0, 0), 1e-9)
	assert.InDelta(6.0, traj.Truth.At(4, 0), 1e-9)
	assert.InDelta(-1.0, traj.Truth.At(4, 1), 1e-9)

	// zero noise: measurements equal true states and the mock filter
	// tracks them exactly
	assert.True(mat.EqualApprox(traj.Truth, traj.Measurement, 1e-9))
	assert.True(mat.EqualApprox(traj.Truth, traj.Estimate, 1e-9))

	// invalid number of steps
	traj, err = Run(&mockFilter{}, truth, policy, x0, 0)
	assert.Nil(traj)
	assert.Error(err)
}
