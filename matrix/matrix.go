package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RowSums returns a slice containing m row sums.
// It panics if m is nil.
func RowSums(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	sum := make([]float64, rows)

	for i := 0; i < rows; i++ {
		sum[i] = floats.Sum(m.RawRowView(i))
	}

	return sum
}

// ColSums returns a slice containing m column sums.
// It panics if m is nil.
func ColSums(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	sum := make([]float64, cols)

	for i := 0; i < cols; i++ {
		sum[i] = mat.Sum(m.ColView(i))
	}

	return sum
}

// Symmetrize projects a square matrix onto the space of symmetric matrices:
// (m + m') / 2. Covariance matrices drift off symmetry under floating point
// arithmetic; they must be symmetrized before factorization or sampling.
// It returns error if m is not square.
func Symmetrize(m mat.Matrix) (*mat.SymDense, error) {
	rows, cols := m.Dims()
	if rows != cols {
		return nil, fmt.Errorf("invalid matrix dimensions: [%d x %d]", rows, cols)
	}

	s := mat.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := i; j < cols; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s, nil
}

// SqrtPSD returns a square root S of a symmetric positive semi-definite
// matrix p such that S*S' equals p. It attempts Cholesky factorization first
// and falls back to the symmetric square root via SVD when p is singular.
// It returns error if p can't be factorized.
func SqrtPSD(p mat.Symmetric) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(p); ok {
		l := &mat.TriDense{}
		chol.LTo(l)

		s := &mat.Dense{}
		s.CloneFrom(l)

		return s, nil
	}

	// Cholesky requires positive definite input; SVD handles the PSD case
	var svd mat.SVD
	if ok := svd.Factorize(p, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	u := &mat.Dense{}
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)

	s := &mat.Dense{}
	s.Mul(u, diag)

	return s, nil
}
