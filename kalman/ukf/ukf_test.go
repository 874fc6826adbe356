package ukf

import (
	"testing"

	filter "github.com/milosgajdos/go-bayes"
	"github.com/milosgajdos/go-bayes/model"
	"github.com/milosgajdos/go-bayes/noise"
	"github.com/milosgajdos/go-bayes/sim"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	okModel *model.Func
	ic      *sim.InitCond
	q       filter.Noise
	r       filter.Noise
	c       *Config
	u       *mat.VecDense
	z       *mat.VecDense
)

func setup() {
	// random walk with identity observation
	f := func(x, u mat.Vector) (mat.Vector, error) {
		out := mat.NewVecDense(x.Len(), nil)
		if u != nil {
			out.AddVec(x, u)
		} else {
			out.CloneFromVec(x)
		}
		return out, nil
	}
	h := func(x, u mat.Vector) (mat.Vector, error) {
		out := &mat.VecDense{}
		out.CloneFromVec(x)
		return out, nil
	}

	okModel, _ = model.NewFunc(f, h, 2, 2, 2)

	initState := mat.NewVecDense(2, []float64{-0.75, 1.0})
	initCov := mat.NewSymDense(2, []float64{0.1, 0, 0, 0.1})
	ic = sim.NewInitCond(initState, initCov)

	q, _ = noise.NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{0.1, 0.05, 0.05, 0.1}))
	r, _ = noise.NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{0.05, -0.025, -0.025, 0.075}))

	c = &Config{Lambda: 2.0}

	u = mat.NewVecDense(2, []float64{0.5, -0.5})
	z = mat.NewVecDense(2, []float64{-0.585, 0.731})
}

func TestMain(m *testing.M) {
	setup()
	m.Run()
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r, c)
	assert.NotNil(f)
	assert.NoError(err)

	// nil config
	f, err = New(okModel, ic, q, r, nil)
	assert.Nil(f)
	assert.Error(err)

	// n + lambda must be positive
	f, err = New(okModel, ic, q, r, &Config{Lambda: -2.0})
	assert.Nil(f)
	assert.Error(err)

	// invalid state noise dimension
	_q, _ := noise.NewZero(20)
	f, err = New(okModel, ic, _q, r, c)
	assert.Nil(f)
	assert.Error(err)

	// invalid output noise dimension
	_r, _ := noise.NewZero(20)
	f, err = New(okModel, ic, q, _r, c)
	assert.Nil(f)
	assert.Error(err)

	// nil noise is valid
	f, err = New(okModel, ic, nil, nil, c)
	assert.NotNil(f)
	assert.NoError(err)
}

// Sigma points for the unit covariance with lambda=2 are the mean and the
// mean shifted by ±sqrt(n+lambda)=±2 along each axis.
func TestSigmaPoints(t *testing.T) {
	assert := assert.New(t)

	x := mat.NewVecDense(2, nil)
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})

	sp, err := SigmaPoints(x, cov, 2.0)
	assert.NotNil(sp)
	assert.NoError(err)

	rows, cols := sp.Dims()
	assert.Equal(2, rows)
	assert.Equal(5, cols)

	want := mat.NewDense(2, 5, []float64{
		0, 2, 0, -2, 0,
		0, 0, 2, 0, -2,
	})
	assert.True(mat.EqualApprox(want, sp, 1e-9))

	// covariance dimension mismatch
	sp, err = SigmaPoints(mat.NewVecDense(3, nil), cov, 2.0)
	assert.Nil(sp)
	assert.Error(err)

	// n + lambda must be positive
	sp, err = SigmaPoints(x, cov, -2.0)
	assert.Nil(sp)
	assert.Error(err)
}

func TestWeights(t *testing.T) {
	assert := assert.New(t)

	w, err := Weights(2, 2.0)
	assert.NoError(err)
	assert.EqualValues([]float64{0.5, 0.125, 0.125, 0.125, 0.125}, w)
	assert.InDelta(1.0, floats.Sum(w), 1e-9)

	// negative lambda yields a negative mean weight but still sums to 1
	w, err = Weights(2, -1.0)
	assert.NoError(err)
	assert.True(w[0] < 0)
	assert.InDelta(1.0, floats.Sum(w), 1e-9)

	// invalid dimension
	w, err = Weights(0, 2.0)
	assert.Nil(w)
	assert.Error(err)

	// n + lambda must be positive
	w, err = Weights(2, -2.0)
	assert.Nil(w)
	assert.Error(err)
}

// The unscented transform of a linear function reconstructs the mean and
// covariance exactly.
func TestTransform(t *testing.T) {
	assert := assert.New(t)

	x := mat.NewVecDense(2, []float64{1.0, -1.0})
	cov := mat.NewSymDense(2, []float64{0.5, 0.1, 0.1, 0.25})

	ident := func(s mat.Vector) (mat.Vector, error) {
		out := &mat.VecDense{}
		out.CloneFromVec(s)
		return out, nil
	}

	mean, tcov, sp, tsp, err := Transform(x, cov, ident, 2.0)
	assert.NoError(err)
	assert.NotNil(sp)
	assert.NotNil(tsp)

	assert.True(mat.EqualApprox(x, mean, 1e-9))
	assert.True(mat.EqualApprox(cov, tcov, 1e-9))
	assert.True(mat.EqualApprox(sp, tsp, 1e-9))
}

func TestPredict(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r, c)
	assert.NotNil(f)
	assert.NoError(err)

	x := mat.VecDenseCopyOf(ic.State())
	est, err := f.Predict(x, u)
	assert.NotNil(est)
	assert.NoError(err)

	// linear dynamics: predicted mean is x + u
	assert.InDelta(-0.25, est.Val().AtVec(0), 1e-9)
	assert.InDelta(0.5, est.Val().AtVec(1), 1e-9)

	// predicted covariance is P + Q
	cov := est.Cov()
	assert.InDelta(0.2, cov.At(0, 0), 1e-9)
	assert.InDelta(0.05, cov.At(0, 1), 1e-9)

	// invalid state vector
	est, err = f.Predict(mat.NewVecDense(3, nil), u)
	assert.Nil(est)
	assert.Error(err)
}

// With linear dynamics the UKF is exact, so one predict/correct cycle must
// reproduce the linear Kalman filter posterior of the same 2D scenario.
func TestRunScenario(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r, c)
	assert.NotNil(f)
	assert.NoError(err)

	x := mat.VecDenseCopyOf(ic.State())
	est, err := f.Run(x, u, z)
	assert.NotNil(est)
	assert.NoError(err)

	assert.InDelta(-0.4889, est.Val().AtVec(0), 1e-4)
	assert.InDelta(0.6223, est.Val().AtVec(1), 1e-4)

	cov := est.Cov()
	assert.InDelta(0.0367, cov.At(0, 0), 1e-4)
	assert.InDelta(-0.0115, cov.At(0, 1), 1e-4)
	assert.InDelta(0.0505, cov.At(1, 1), 1e-4)
}

func TestUpdate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r, c)
	assert.NotNil(f)
	assert.NoError(err)

	x := mat.VecDenseCopyOf(ic.State())
	est, err := f.Update(x, u, z)
	assert.NotNil(est)
	assert.NoError(err)

	// invalid state vector
	est, err = f.Update(mat.NewVecDense(3, nil), u, z)
	assert.Nil(est)
	assert.Error(err)

	// invalid measurement vector
	est, err = f.Update(x, u, mat.NewVecDense(3, nil))
	assert.Nil(est)
	assert.Error(err)
}

// Updated covariance must remain symmetric.
func TestCovSymmetry(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r, c)
	assert.NoError(err)

	est, err := f.Run(mat.VecDenseCopyOf(ic.State()), u, z)
	assert.NoError(err)

	cov := est.Cov()
	n := cov.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			assert.InDelta(cov.At(i, j), cov.At(j, i), 1e-12)
		}
	}
}

// UKF is deterministic given lambda.
func TestRunDeterminism(t *testing.T) {
	assert := assert.New(t)

	f1, err := New(okModel, ic, q, r, c)
	assert.NoError(err)
	f2, err := New(okModel, ic, q, r, c)
	assert.NoError(err)

	est1, err := f1.Run(mat.VecDenseCopyOf(ic.State()), u, z)
	assert.NoError(err)
	est2, err := f2.Run(mat.VecDenseCopyOf(ic.State()), u, z)
	assert.NoError(err)

	assert.Equal(est1.Val(), est2.Val())
	assert.Equal(est1.Cov(), est2.Cov())
}

func TestCovGainLambda(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r, c)
	assert.NotNil(f)
	assert.NoError(err)

	assert.Equal(2.0, f.Lambda())
	assert.NotNil(f.Model())

	cov := f.Cov()
	assert.NotNil(cov)

	err = f.SetCov(nil)
	assert.Error(err)

	err = f.SetCov(mat.NewSymDense(30, nil))
	assert.Error(err)

	err = f.SetCov(mat.NewSymDense(cov.SymmetricDim(), nil))
	assert.NoError(err)

	assert.NotNil(f.Gain())
}
