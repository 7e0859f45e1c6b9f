// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

// Operator is a linear operator y = A*x of a square system.
type Operator interface {
	// Dims returns the dimensions of the operator.
	Dims() (r, c int)

	// MulVecTo computes dst = A*x.
	MulVecTo(dst, x []float64)
}

// TransOperator is an Operator that can also apply its transpose.
type TransOperator interface {
	Operator

	// MulTransVecTo computes dst = A^T*x.
	MulTransVecTo(dst, x []float64)
}

// DiagonalExtractor is an Operator that can extract its main diagonal.
type DiagonalExtractor interface {
	Diagonal(dst []float64)
}

// Versioner is implemented by operators whose values can change after a
// solver has been initialized. The version must change on every mutation.
type Versioner interface {
	Version() uint64
}

// OperatorFunc adapts a matrix-vector product function to an n×n
// Operator.
type OperatorFunc struct {
	N      int
	MatVec func(dst, x []float64)
}

// Dims implements the Operator interface.
func (o OperatorFunc) Dims() (r, c int) { return o.N, o.N }

// MulVecTo implements the Operator interface.
func (o OperatorFunc) MulVecTo(dst, x []float64) { o.MatVec(dst, x) }

// Filter applies boundary-condition constraints to vectors in place.
type Filter interface {
	FilterRHS(v []float64)
	FilterSol(v []float64)
	FilterDef(v []float64)
	FilterCor(v []float64)
}

// NoFilter is a Filter that leaves all vectors unchanged.
type NoFilter struct{}

func (NoFilter) FilterRHS([]float64) {}
func (NoFilter) FilterSol([]float64) {}
func (NoFilter) FilterDef([]float64) {}
func (NoFilter) FilterCor([]float64) {}

func filterOrNone(f Filter) Filter {
	if f == nil {
		return NoFilter{}
	}
	return f
}

func dim(a Operator) int {
	if a == nil {
		panic("solver: nil operator")
	}
	r, c := a.Dims()
	if r != c {
		panic("solver: operator not square")
	}
	return r
}

func operatorVersion(a Operator) (uint64, bool) {
	v, ok := a.(Versioner)
	if !ok {
		return 0, false
	}
	return v.Version(), true
}

func reuse(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	return v[:n]
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}

const dlamchE = 1.0 / (1 << 53)
