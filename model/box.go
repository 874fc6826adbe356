package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Box is a bounded axis-aligned box domain in R^n.
type Box struct {
	min *mat.VecDense
	max *mat.VecDense
}

// NewBox creates a box domain with the given lower and upper bounds.
// It returns error if the bounds dimensions disagree or if any lower bound
// exceeds its upper bound.
func NewBox(min, max mat.Vector) (*Box, error) {
	if min.Len() != max.Len() {
		return nil, fmt.Errorf("invalid bounds dimensions: %d != %d", min.Len(), max.Len())
	}

	for i := 0; i < min.Len(); i++ {
		if min.AtVec(i) > max.AtVec(i) {
			return nil, fmt.Errorf("invalid bounds: min %v > max %v", min.AtVec(i), max.AtVec(i))
		}
	}

	lo := &mat.VecDense{}
	lo.CloneFromVec(min)
	hi := &mat.VecDense{}
	hi.CloneFromVec(max)

	return &Box{min: lo, max: hi}, nil
}

// Dim returns the box dimension.
func (b *Box) Dim() int {
	return b.min.Len()
}

// Contains reports whether x lies inside the box.
// It panics if x dimension differs from the box dimension.
func (b *Box) Contains(x mat.Vector) bool {
	if x.Len() != b.Dim() {
		panic(fmt.Sprintf("invalid vector dimension: %d", x.Len()))
	}

	for i := 0; i < x.Len(); i++ {
		if x.AtVec(i) < b.min.AtVec(i) || x.AtVec(i) > b.max.AtVec(i) {
			return false
		}
	}

	return true
}

// Clamp returns a copy of x with every component clipped to the box bounds.
// It panics if x dimension differs from the box dimension.
func (b *Box) Clamp(x mat.Vector) *mat.VecDense {
	if x.Len() != b.Dim() {
		panic(fmt.Sprintf("invalid vector dimension: %d", x.Len()))
	}

	out := &mat.VecDense{}
	out.CloneFromVec(x)

	for i := 0; i < out.Len(); i++ {
		if out.AtVec(i) < b.min.AtVec(i) {
			out.SetVec(i, b.min.AtVec(i))
		}
		if out.AtVec(i) > b.max.AtVec(i) {
			out.SetVec(i, b.max.AtVec(i))
		}
	}

	return out
}
