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

	"github.com/vladimir-ch/solver/sparse"
)

type testCase struct {
	name string
	a    *sparse.CSR
	b    []float64
	want []float64
}

// newTestCase returns the system a*x = b whose solution is a fixed
// nonconstant vector.
func newTestCase(name string, a *sparse.CSR) testCase {
	n, _ := a.Dims()
	want := make([]float64, n)
	for i := range want {
		want[i] = 1 + float64(i%7)/7
	}
	b := make([]float64, n)
	a.MulVecTo(b, want)
	return testCase{name: name, a: a, b: b, want: want}
}

// randomSPD returns a well-conditioned symmetric positive definite system.
func randomSPD(n int, rnd *rand.Rand) testCase {
	coo := sparse.NewCOO(n, n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rnd.Float64()
			if i == j {
				coo.Append(i, i, v+float64(n))
				continue
			}
			coo.Append(i, j, v)
			coo.Append(j, i, v)
		}
	}
	return newTestCase("randomSPD", coo.CSR())
}

// randomNonsym returns a diagonally dominant nonsymmetric system.
func randomNonsym(n int, rnd *rand.Rand) testCase {
	coo := sparse.NewCOO(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := rnd.Float64() - 0.3
			if i == j {
				v += float64(n)
			}
			coo.Append(i, j, v)
		}
	}
	return newTestCase("randomNonsym", coo.CSR())
}

// convDiff1D returns the central difference discretization of
// -u'' + beta u' on n interior nodes.
func convDiff1D(n int, beta float64) testCase {
	h := 1 / float64(n+1)
	coo := sparse.NewCOO(n, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			coo.Append(i, i-1, -1/(h*h)-beta/(2*h))
		}
		coo.Append(i, i, 2/(h*h))
		if i < n-1 {
			coo.Append(i, i+1, -1/(h*h)+beta/(2*h))
		}
	}
	return newTestCase("convDiff1D", coo.CSR())
}

func relResidual(a Operator, x, b []float64) float64 {
	r := make([]float64, len(b))
	a.MulVecTo(r, x)
	floats.SubTo(r, b, r)
	return floats.Norm(r, 2) / floats.Norm(b, 2)
}

func TestSolveExactStart(t *testing.T) {
	tc := newTestCase("poisson1D", sparse.Poisson1D(20))
	s := NewPCG(tc.a, nil, nil)
	require.NoError(t, Init(s))
	defer Done(s)

	x := append([]float64(nil), tc.want...)
	st, err := Solve(s, x, tc.b, tc.a, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st)
	assert.Equal(t, 0, s.NumIter())
	assert.Equal(t, tc.want, x)
}

func TestSolveNonCorrector(t *testing.T) {
	tc := newTestCase("poisson1D", sparse.Poisson1D(12))
	s := NewDirect(tc.a, nil)
	require.NoError(t, Init(s))
	defer Done(s)

	x := make([]float64, len(tc.b))
	for i := range x {
		x[i] = 5
	}
	st, err := Solve(s, x, tc.b, tc.a, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st)
	if dist := floats.Distance(x, tc.want, math.Inf(1)); dist > 1e-10 {
		t.Errorf("unexpected solution, |want-got|=%v", dist)
	}
}

func TestInitDoneReproducible(t *testing.T) {
	tc := newTestCase("poisson2D", sparse.Poisson2D(6))
	s := NewGMRES(tc.a, nil, NewSSOR(tc.a, nil, 1.2), 10)
	n := len(tc.b)

	var first []float64
	for run := 0; run < 3; run++ {
		require.NoError(t, Init(s))
		cor := make([]float64, n)
		st, err := s.Apply(cor, tc.b)
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, st)
		Done(s)
		if first == nil {
			first = cor
			continue
		}
		assert.Equal(t, first, cor, "run %d differs from the first one", run)
	}
}

func TestStaleOperator(t *testing.T) {
	a := sparse.Poisson1D(10)
	tc := newTestCase("poisson1D", a)
	s := NewPCG(a, nil, NewJacobi(a, nil, 1))
	require.NoError(t, Init(s))
	defer Done(s)
	cor := make([]float64, len(tc.b))

	a.Scale(2)
	a.Touch()
	st, err := s.Apply(cor, tc.b)
	assert.ErrorIs(t, err, ErrStaleOperator)
	assert.Equal(t, StatusUndefined, st)
	assert.True(t, IsStructural(err))

	require.NoError(t, s.InitNumeric())
	st, err = s.Apply(cor, tc.b)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, st)
	// The solution of 2A*x = b is want/2.
	floats.Scale(2, cor)
	if dist := floats.Distance(cor, tc.want, math.Inf(1)); dist > 1e-5 {
		t.Errorf("unexpected solution after re-initialization, |want-got|=%v", dist)
	}
}

func TestApplyErrors(t *testing.T) {
	a := sparse.Poisson1D(8)
	s := NewPCG(a, nil, nil)
	cor := make([]float64, 8)
	def := make([]float64, 8)

	st, err := s.Apply(cor, def)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, StatusUndefined, st)

	require.NoError(t, Init(s))
	defer Done(s)
	st, err = s.Apply(cor[:3], def)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, StatusUndefined, st)

	_, err = Solve(s, make([]float64, 3), def, a, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNaNDiverges(t *testing.T) {
	tc := newTestCase("poisson1D", sparse.Poisson1D(8))
	tc.b[3] = math.NaN()
	s := NewPCG(tc.a, nil, nil)
	require.NoError(t, Init(s))
	defer Done(s)

	x := make([]float64, len(tc.b))
	st, err := Solve(s, x, tc.b, tc.a, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusDiverged, st)
	assert.Equal(t, StatusDiverged, s.Status())
	for _, v := range x {
		assert.Zero(t, v, "x must not be updated by a diverged solve")
	}
}

func TestBreakdown(t *testing.T) {
	a := sparse.NewCSR(2, 2, []int{0, 1, 2}, []int{1, 0}, []float64{1, 1})
	s := NewPCG(a, nil, nil)
	require.NoError(t, Init(s))
	defer Done(s)

	cor := make([]float64, 2)
	st, err := s.Apply(cor, []float64{1, 0})
	assert.Equal(t, StatusAborted, st)
	var se *SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "PCG", se.Solver)
	assert.False(t, IsStructural(err))
}

func TestTransposeRequired(t *testing.T) {
	a := sparse.Poisson1D(5)
	op := OperatorFunc{N: 5, MatVec: a.MulVecTo}
	for _, s := range []*Iterative{NewBiCG(op, nil, nil), NewPCGNR(op, nil, nil, nil)} {
		err := s.InitSymbolic()
		var ims *InvalidMatrixStructureError
		assert.True(t, errors.As(err, &ims), "%s: want InvalidMatrixStructureError, got %v", s.Name(), err)
		assert.True(t, IsStructural(err))
	}
}

func TestInnerFailureAborts(t *testing.T) {
	tc := newTestCase("poisson1D", sparse.Poisson1D(10))
	bad := OperatorFunc{N: 10, MatVec: func(dst, x []float64) {
		tc.a.MulVecTo(dst, x)
		dst[0] = math.NaN()
	}}
	// The inner solver diverges on its first iteration.
	inner := NewPCG(bad, nil, nil)
	s := NewFGMRES(tc.a, nil, inner, 5)
	require.NoError(t, Init(s))
	defer Done(s)

	cor := make([]float64, len(tc.b))
	st, err := s.Apply(cor, tc.b)
	assert.Equal(t, StatusAborted, st)
	assert.Equal(t, StatusDiverged, inner.Status())
	var se *SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "FGMRES", se.Solver)
}

func TestWalkAttach(t *testing.T) {
	tc := newTestCase("poisson1D", sparse.Poisson1D(16))
	inner := NewPCG(tc.a, nil, NewJacobi(tc.a, nil, 1))
	inner.MaxIter = 3
	s := NewFGMRES(tc.a, nil, inner, 16)

	var names []string
	Walk(s, func(s Solver) { names = append(names, s.Name()) })
	assert.Equal(t, []string{"FGMRES", "PCG", "Jacobi"}, names)

	var events []Event
	Attach(s, ListenerFunc(func(e Event) { events = append(events, e) }))
	require.NoError(t, Init(s))
	defer Done(s)
	cor := make([]float64, len(tc.b))
	st, err := s.Apply(cor, tc.b)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, st)

	count := make(map[EventKind]map[string]int)
	for _, e := range events {
		assert.Equal(t, -1, e.Level)
		if count[e.Kind] == nil {
			count[e.Kind] = make(map[string]int)
		}
		count[e.Kind][e.Solver]++
		if e.Kind == EventCallPrecond && e.Solver == "FGMRES" {
			assert.Equal(t, "PCG", e.Target)
			assert.True(t, e.Status.Acceptable())
		}
	}
	assert.Equal(t, 1, count[EventStartSolve]["FGMRES"])
	assert.Equal(t, 1, count[EventEndSolve]["FGMRES"])
	assert.Equal(t, count[EventCallPrecond]["FGMRES"], count[EventStartSolve]["PCG"])
	assert.Equal(t, count[EventStartSolve]["PCG"], count[EventEndSolve]["PCG"])
	assert.Positive(t, count[EventCallPrecond]["PCG"])
	assert.Positive(t, count[EventDefect]["FGMRES"])

	last := events[len(events)-1]
	assert.Equal(t, EventEndSolve, last.Kind)
	assert.Equal(t, "FGMRES", last.Solver)
	assert.Equal(t, StatusSuccess, last.Status)
	assert.Equal(t, s.NumIter(), last.Iter)
}

func TestStats(t *testing.T) {
	tc := newTestCase("poisson1D", sparse.Poisson1D(16))
	s := NewPCG(tc.a, nil, nil)
	require.NoError(t, Init(s))
	defer Done(s)
	cor := make([]float64, len(tc.b))
	_, err := s.Apply(cor, tc.b)
	require.NoError(t, err)

	stats := s.Stats()
	require.Len(t, stats, s.NumIter()+1)
	assert.Equal(t, floats.Norm(tc.b, 2), stats[0].Defect)
	for i, st := range stats {
		assert.Equal(t, i, st.Iter)
	}
	assert.Equal(t, s.DefCur(), stats[len(stats)-1].Defect)
	assert.LessOrEqual(t, s.DefCur(), s.TolRel*s.DefInit())
}

func TestStatus(t *testing.T) {
	for _, st := range []Status{StatusSuccess, StatusMaxIter, StatusStagnated} {
		assert.True(t, st.Acceptable(), st.String())
		assert.True(t, st.Terminal(), st.String())
	}
	for _, st := range []Status{StatusAborted, StatusDiverged} {
		assert.False(t, st.Acceptable(), st.String())
		assert.True(t, st.Terminal(), st.String())
	}
	for _, st := range []Status{StatusUndefined, StatusProgress} {
		assert.False(t, st.Acceptable(), st.String())
		assert.False(t, st.Terminal(), st.String())
	}
	st, ok := ParseStatus("max_iter")
	assert.True(t, ok)
	assert.Equal(t, StatusMaxIter, st)
	_, ok = ParseStatus("bogus")
	assert.False(t, ok)
}
