// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/solver/sparse"
)

// applyOnce initializes p, applies it to def and releases it.
func applyOnce(t *testing.T, p Solver, def []float64) []float64 {
	t.Helper()
	require.NoError(t, Init(p), p.Name())
	defer Done(p)
	cor := make([]float64, len(def))
	st, err := p.Apply(cor, def)
	require.NoError(t, err, p.Name())
	require.Equal(t, StatusSuccess, st, p.Name())
	return cor
}

// pcgIterations returns the number of PCG iterations needed to solve tc
// with the preconditioner p.
func pcgIterations(t *testing.T, tc testCase, p Solver) int {
	t.Helper()
	s := NewPCG(tc.a, nil, p)
	s.MaxIter = 1000
	require.NoError(t, Init(s))
	defer Done(s)
	x := make([]float64, len(tc.b))
	st, err := Solve(s, x, tc.b, tc.a, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, st)
	return s.NumIter()
}

func randomVector(n int, rnd *rand.Rand) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rnd.NormFloat64()
	}
	return v
}

func TestJacobiDiagonalMatrix(t *testing.T) {
	a := sparse.Identity(6)
	a.Scale(2)
	def := []float64{1, -2, 3, -4, 5, -6}
	cor := applyOnce(t, NewJacobi(a, nil, 1), def)
	assert.Equal(t, []float64{0.5, -1, 1.5, -2, 2.5, -3}, cor)

	tc := newTestCase("diag", a)
	assert.Equal(t, 1, pcgIterations(t, tc, NewJacobi(a, nil, 1)))
}

func TestJacobiBlock(t *testing.T) {
	// Two 2×2 diagonal blocks coupled by an off-diagonal block.
	a := sparse.NewBCSR(2, 2, 2,
		[]int{0, 2, 3},
		[]int{0, 1, 1},
		[]float64{
			4, 1, 2, 3, // (0,0)
			1, 0, 0, 1, // (0,1)
			5, 2, 1, 3, // (1,1)
		})
	def := []float64{1, 2, 3, 4}
	cor := applyOnce(t, NewJacobi(a, nil, 0.5), def)

	want := make([]float64, 4)
	for bi, blk := range [][]float64{{4, 1, 2, 3}, {5, 2, 1, 3}} {
		var x mat.VecDense
		require.NoError(t, x.SolveVec(mat.NewDense(2, 2, blk), mat.NewVecDense(2, def[2*bi:2*bi+2])))
		want[2*bi] = 0.5 * x.AtVec(0)
		want[2*bi+1] = 0.5 * x.AtVec(1)
	}
	if dist := floats.Distance(cor, want, math.Inf(1)); dist > 1e-14 {
		t.Errorf("unexpected block Jacobi correction, |want-got|=%v", dist)
	}
}

func TestJacobiSingular(t *testing.T) {
	a := sparse.NewCSR(2, 2, []int{0, 1, 2}, []int{1, 0}, []float64{1, 1})
	err := Init(NewJacobi(a, nil, 1))
	var sme *SingularMatrixError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, 0, sme.Row)
	assert.Equal(t, "Jacobi", sme.Solver)

	err = NewJacobi(OperatorFunc{N: 2, MatVec: a.MulVecTo}, nil, 1).InitSymbolic()
	var ims *InvalidMatrixStructureError
	assert.True(t, errors.As(err, &ims))
}

func TestSimplePreconds(t *testing.T) {
	a := sparse.Poisson1D(4)
	def := []float64{1, 2, 3, 4}

	cor := applyOnce(t, NewScale(a, nil, 3), def)
	assert.Equal(t, []float64{3, 6, 9, 12}, cor)

	cor = applyOnce(t, NewDiagonal(a, nil, []float64{1, 0.5, 2, -1}), def)
	assert.Equal(t, []float64{1, 1, 6, -4}, cor)

	cor = applyOnce(t, NewMatrixPrecond(a, nil, a), def)
	want := make([]float64, 4)
	a.MulVecTo(want, def)
	assert.Equal(t, want, cor)
}

func TestFilterApplied(t *testing.T) {
	a := sparse.Poisson1D(5)
	f := sparse.NewUnitFilter([]int{0, 4}, nil)
	cor := applyOnce(t, NewScale(a, f, 1), []float64{1, 1, 1, 1, 1})
	assert.Equal(t, []float64{0, 1, 1, 1, 0}, cor)
}

func TestSOR(t *testing.T) {
	// For a lower triangular matrix Gauss-Seidel is exact.
	coo := sparse.NewCOO(4, 4)
	for i := 0; i < 4; i++ {
		coo.Append(i, i, float64(i+2))
		if i > 0 {
			coo.Append(i, i-1, -1)
		}
	}
	a := coo.CSR()
	def := []float64{1, 2, 3, 4}
	cor := applyOnce(t, NewSOR(a, nil, 1), def)
	assert.Less(t, relResidual(a, cor, def), 1e-15)

	for _, w := range []float64{0, 2, -1} {
		err := NewSOR(a, nil, w).InitSymbolic()
		var ce *ConfigError
		assert.True(t, errors.As(err, &ce), "omega=%v", w)
	}
}

func TestSSORSymmetric(t *testing.T) {
	a := sparse.Poisson2D(4)
	n, _ := a.Dims()
	p := NewSSOR(a, nil, 1.3)
	require.NoError(t, Init(p))
	defer Done(p)

	m := mat.NewDense(n, n, nil)
	e := make([]float64, n)
	col := make([]float64, n)
	for j := 0; j < n; j++ {
		e[j] = 1
		_, err := p.Apply(col, e)
		require.NoError(t, err)
		m.SetCol(j, col)
		e[j] = 0
	}
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			assert.InDelta(t, m.At(i, j), m.At(j, i), 1e-14, "(%d,%d)", i, j)
		}
	}

	tc := newTestCase("poisson2D", sparse.Poisson2D(10))
	plain := pcgIterations(t, tc, nil)
	ssor := pcgIterations(t, tc, NewSSOR(tc.a, nil, 1.5))
	assert.Less(t, ssor, plain)
}

func TestILU(t *testing.T) {
	// ILU(0) of a tridiagonal matrix is its exact LU factorization.
	tc := newTestCase("poisson1D", sparse.Poisson1D(20))
	cor := applyOnce(t, NewILU(tc.a, nil, 0), tc.b)
	if dist := floats.Distance(cor, tc.want, math.Inf(1)); dist > 1e-10 {
		t.Errorf("ILU(0) of a tridiagonal matrix is not exact, |want-got|=%v", dist)
	}

	// With enough fill the factorization is complete.
	tc = newTestCase("poisson2D", sparse.Poisson2D(4))
	cor = applyOnce(t, NewILU(tc.a, nil, 16), tc.b)
	if dist := floats.Distance(cor, tc.want, math.Inf(1)); dist > 1e-10 {
		t.Errorf("ILU(16) is not exact, |want-got|=%v", dist)
	}

	tc = newTestCase("poisson2D", sparse.Poisson2D(12))
	ilu0 := pcgIterations(t, tc, NewILU(tc.a, nil, 0))
	ilu2 := pcgIterations(t, tc, NewILU(tc.a, nil, 2))
	plain := pcgIterations(t, tc, nil)
	assert.Less(t, ilu0, plain)
	assert.LessOrEqual(t, ilu2, ilu0)
}

func TestILUMissingDiagonal(t *testing.T) {
	// The pattern lacks the (1,1) entry, which becomes a zero pivot.
	a := sparse.NewCSR(2, 2, []int{0, 1, 2}, []int{0, 0}, []float64{1, 1})
	err := Init(NewILU(a, nil, 0))
	var sme *SingularMatrixError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, 1, sme.Row)
}

func TestILUBlock(t *testing.T) {
	// A block tridiagonal matrix with 2×2 blocks.
	const nb = 5
	var rowPtr, colIdx []int
	var val []float64
	rowPtr = append(rowPtr, 0)
	for bi := 0; bi < nb; bi++ {
		if bi > 0 {
			colIdx = append(colIdx, bi-1)
			val = append(val, -1, 0, 0, -1)
		}
		colIdx = append(colIdx, bi)
		val = append(val, 4, 1, 1, 4)
		if bi < nb-1 {
			colIdx = append(colIdx, bi+1)
			val = append(val, -1, 0, 0, -1)
		}
		rowPtr = append(rowPtr, len(colIdx))
	}
	b := sparse.NewBCSR(nb, nb, 2, rowPtr, colIdx, val)
	def := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cor := applyOnce(t, NewILU(b, nil, 2), def)
	assert.Less(t, relResidual(b, cor, def), 1e-12)
}

func TestDirect(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	tc := randomNonsym(30, rnd)
	cor := applyOnce(t, NewDirect(tc.a, nil), tc.b)
	if dist := floats.Distance(cor, tc.want, math.Inf(1)); dist > 1e-12 {
		t.Errorf("unexpected solution, |want-got|=%v", dist)
	}

	// A matrix-free operator is assembled from its action.
	op := OperatorFunc{N: 30, MatVec: tc.a.MulVecTo}
	cor = applyOnce(t, NewDirect(op, nil), tc.b)
	if dist := floats.Distance(cor, tc.want, math.Inf(1)); dist > 1e-12 {
		t.Errorf("unexpected matrix-free solution, |want-got|=%v", dist)
	}

	singular := sparse.NewCSR(2, 2, []int{0, 2, 4}, []int{0, 1, 0, 1}, []float64{1, 2, 2, 4})
	err := Init(NewDirect(singular, nil))
	var sme *SingularMatrixError
	assert.True(t, errors.As(err, &sme))
}

func TestPolynomial(t *testing.T) {
	a := sparse.Poisson1D(8)
	rnd := rand.New(rand.NewSource(1))
	def := randomVector(8, rnd)

	jac := applyOnce(t, NewJacobi(a, nil, 0.7), def)
	deg0 := applyOnce(t, NewPolynomial(a, nil, 0, 0.7), def)
	assert.Equal(t, jac, deg0)

	// Degree one: z + ω D^{-1}(def - A z) with z = ω D^{-1} def.
	d := make([]float64, 8)
	a.Diagonal(d)
	z := make([]float64, 8)
	for i := range z {
		z[i] = 0.7 * def[i] / d[i]
	}
	az := make([]float64, 8)
	a.MulVecTo(az, z)
	want := make([]float64, 8)
	for i := range want {
		want[i] = z[i] + 0.7*(def[i]-az[i])/d[i]
	}
	deg1 := applyOnce(t, NewPolynomial(a, nil, 1, 0.7), def)
	if dist := floats.Distance(deg1, want, math.Inf(1)); dist > 1e-14 {
		t.Errorf("unexpected degree one correction, |want-got|=%v", dist)
	}

	tc := newTestCase("poisson2D", sparse.Poisson2D(10))
	jacIt := pcgIterations(t, tc, NewJacobi(tc.a, nil, 1))
	polyIt := pcgIterations(t, tc, NewPolynomial(tc.a, nil, 3, 1))
	assert.Less(t, polyIt, jacIt)
}

func TestConvertPermutation(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	tc := randomNonsym(12, rnd)
	perm, err := NewPermutation(rnd.Perm(12))
	require.NoError(t, err)
	inner := NewDirect(tc.a.Submatrix(perm), nil)
	c := NewConvert(tc.a, nil, perm, inner)

	var names []string
	Walk(c, func(s Solver) { names = append(names, s.Name()) })
	assert.Equal(t, []string{"Convert", "Direct"}, names)

	cor := applyOnce(t, c, tc.b)
	if dist := floats.Distance(cor, tc.want, math.Inf(1)); dist > 1e-12 {
		t.Errorf("unexpected solution, |want-got|=%v", dist)
	}

	_, err = NewPermutation([]int{0, 2, 2})
	assert.Error(t, err)
	_, err = NewPermutation([]int{0, 3, 1})
	assert.Error(t, err)
}

func TestPreconditionerEvents(t *testing.T) {
	const n = 8
	a := sparse.Poisson1D(n)
	rnd := rand.New(rand.NewSource(1))
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	id, err := NewPermutation(span(0, n))
	require.NoError(t, err)
	m := saddleSystem(12, 4, 0.3, rnd)

	for _, test := range []struct {
		p Solver
		n int
	}{
		{NewDiagonal(a, nil, ones), n},
		{NewScale(a, nil, 0.5), n},
		{NewMatrixPrecond(a, nil, sparse.Identity(n)), n},
		{NewJacobi(a, nil, 1), n},
		{NewSOR(a, nil, 1.2), n},
		{NewSSOR(a, nil, 1.2), n},
		{NewILU(a, nil, 0), n},
		{NewPolynomial(a, nil, 2, 0.5), n},
		{NewDirect(a, nil), n},
		{NewConvert(a, nil, id, NewDirect(a, nil)), n},
		{NewSchwarz(a, nil, [][]int{span(0, 5), span(3, n)}), n},
		{NewVanka(m, nil, VankaNodalFullMult, 1), 16},
		{newExactUzawa(m, UzawaFull), 16},
	} {
		name := test.p.Name()
		var own []Event
		Attach(test.p, ListenerFunc(func(e Event) {
			if e.Solver == name && (e.Kind == EventStartSolve || e.Kind == EventEndSolve) {
				own = append(own, e)
			}
		}))
		require.NoError(t, Init(test.p), name)
		def := randomVector(test.n, rnd)
		for range 2 {
			st, err := test.p.Apply(make([]float64, test.n), def)
			require.NoError(t, err, name)
			require.Equal(t, StatusSuccess, st, name)
		}
		Done(test.p)

		require.Len(t, own, 4, name)
		for i, e := range own {
			assert.Equal(t, -1, e.Level, name)
			if i%2 == 0 {
				assert.Equal(t, EventStartSolve, e.Kind, name)
				continue
			}
			assert.Equal(t, EventEndSolve, e.Kind, name)
			assert.Equal(t, StatusSuccess, e.Status, name)
		}
	}
}

func TestPreconditionerFailureEvents(t *testing.T) {
	a := sparse.Poisson1D(6)
	inner := sparse.Poisson1D(6)
	id, err := NewPermutation(span(0, 6))
	require.NoError(t, err)
	c := NewConvert(a, nil, id, NewDirect(inner, nil))

	var events []Event
	c.SetListener(ListenerFunc(func(e Event) { events = append(events, e) }))
	require.NoError(t, Init(c))
	defer Done(c)

	inner.Touch()
	st, err := c.Apply(make([]float64, 6), randomVector(6, rand.New(rand.NewSource(1))))
	assert.ErrorIs(t, err, ErrStaleOperator)
	assert.Equal(t, StatusUndefined, st)
	assert.Equal(t, StatusUndefined, c.Status())
	require.Len(t, events, 2)
	assert.Equal(t, EventStartSolve, events[0].Kind)
	assert.Equal(t, EventEndSolve, events[1].Kind)
	assert.Equal(t, StatusUndefined, events[1].Status)

	// Structural errors of the preconditioner itself end before the start.
	events = events[:0]
	_, err = c.Apply(make([]float64, 5), make([]float64, 5))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Empty(t, events)
}
