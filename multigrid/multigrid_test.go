// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package multigrid

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver"
	"github.com/vladimir-ch/solver/sparse"
)

// levelSizes returns the numbers of interior nodes per direction of a
// uniformly refined hierarchy with nc coarsest nodes, finest first.
func levelSizes(nc, levels int) []int {
	s := make([]int, levels)
	s[levels-1] = nc
	for k := levels - 2; k >= 0; k-- {
		s[k] = 2*s[k+1] + 1
	}
	return s
}

type gallery struct {
	op   func(n int) *sparse.CSR
	prol func(nc int) *sparse.CSR
	rest func(nc int) *sparse.CSR
	// omega is the Jacobi damping of the smoothers.
	omega float64
}

var (
	poisson1D = gallery{sparse.Poisson1D, sparse.Prolongation1D, sparse.Restriction1D, 2.0 / 3}
	poisson2D = gallery{sparse.Poisson2D, sparse.Prolongation2D, sparse.Restriction2D, 0.8}
)

// hierarchy returns a Poisson hierarchy with Jacobi smoothers and a direct
// coarse solver together with the level matrices.
func (g gallery) hierarchy(nc, levels, steps int) (*Hierarchy, []*sparse.CSR) {
	sizes := levelSizes(nc, levels)
	mats := make([]*sparse.CSR, levels)
	h := &Hierarchy{}
	for k, n := range sizes {
		a := g.op(n)
		mats[k] = a
		var p, r solver.Operator
		if k < levels-1 {
			p, r = g.prol(sizes[k+1]), g.rest(sizes[k+1])
		}
		lv := NewLevel(a, nil, p, r, solver.NewJacobi(a, nil, g.omega))
		lv.PreSteps, lv.PostSteps = steps, steps
		h.Levels = append(h.Levels, lv)
	}
	h.Coarse = solver.NewDirect(mats[levels-1], nil)
	return h, mats
}

func randomVector(n int, rnd *rand.Rand) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rnd.NormFloat64()
	}
	return v
}

func defectNorm(a solver.Operator, cor, def []float64) float64 {
	r := make([]float64, len(def))
	a.MulVecTo(r, cor)
	floats.Sub(r, def)
	return floats.Norm(r, 2)
}

func TestTransferConstants(t *testing.T) {
	for _, nc := range []int{1, 3, 8} {
		nf := 2*nc + 1
		p, r := sparse.Prolongation1D(nc), sparse.Restriction1D(nc)

		fine := make([]float64, nf)
		floats.AddConst(1, fine)
		coarse := make([]float64, nc)
		r.MulVecTo(coarse, fine)
		for j, v := range coarse {
			assert.InDelta(t, 1, v, 1e-15, "nc=%d, coarse node %d", nc, j)
		}

		p.MulVecTo(fine, coarse)
		for i, v := range fine {
			want := 1.0
			if i == 0 || i == nf-1 {
				// Linear interpolation towards the zero boundary value.
				want = 0.5
			}
			assert.InDelta(t, want, v, 1e-15, "nc=%d, fine node %d", nc, i)
		}
	}

	// The same holds for the tensor product transfers on interior nodes.
	nc := 3
	nf := 2*nc + 1
	fine := make([]float64, nf*nf)
	floats.AddConst(1, fine)
	coarse := make([]float64, nc*nc)
	sparse.Restriction2D(nc).MulVecTo(coarse, fine)
	for j, v := range coarse {
		assert.InDelta(t, 1, v, 1e-15, "coarse node %d", j)
	}
	sparse.Prolongation2D(nc).MulVecTo(fine, coarse)
	for iy := 1; iy < nf-1; iy++ {
		for ix := 1; ix < nf-1; ix++ {
			assert.InDelta(t, 1, fine[iy*nf+ix], 1e-15, "fine node (%d,%d)", ix, iy)
		}
	}
}

func TestTwoLevelExactCoarse(t *testing.T) {
	h, mats := poisson1D.hierarchy(15, 2, 1)
	mg := NewMultiGrid(h, V)

	var smooth, coarse int
	mg.Listener = solver.ListenerFunc(func(e solver.Event) {
		switch e.Kind {
		case solver.EventCallSmoother:
			assert.Equal(t, 0, e.Level)
			smooth++
		case solver.EventCallCoarseSolver:
			assert.Equal(t, 1, e.Level)
			assert.Equal(t, "Direct", e.Target)
			coarse++
		}
	})

	a := mats[0]
	s := solver.NewRichardson(a, nil, mg, 1)
	s.MaxIter = 50
	require.NoError(t, solver.Init(s))
	defer solver.Done(s)

	rnd := rand.New(rand.NewSource(1))
	b := randomVector(31, rnd)
	x := make([]float64, 31)
	st, err := solver.Solve(s, x, b, a, nil)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
	assert.LessOrEqual(t, s.NumIter(), 20)
	assert.Less(t, defectNorm(a, x, b), 1e-7*floats.Norm(b, 2))

	// One pre- and one post-smoothing step and one coarse solve per cycle.
	assert.Equal(t, 2*s.NumIter(), smooth)
	assert.Equal(t, s.NumIter(), coarse)
}

func TestSingleCycleContraction(t *testing.T) {
	h, mats := poisson1D.hierarchy(31, 2, 1)
	mg := NewMultiGrid(h, V)
	require.NoError(t, solver.Init(mg))
	defer solver.Done(mg)

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 5; i++ {
		def := randomVector(63, rnd)
		cor := make([]float64, 63)
		st, err := mg.Apply(cor, def)
		require.NoError(t, err)
		require.Equal(t, solver.StatusSuccess, st)
		assert.Less(t, defectNorm(mats[0], cor, def), 0.5*floats.Norm(def, 2))

		stats := mg.Stats()
		require.Len(t, stats, 2)
		assert.Equal(t, floats.Norm(def, 2), stats[0].Defect)
		assert.Equal(t, 1, stats[1].Iter)
		assert.InDelta(t, defectNorm(mats[0], cor, def), stats[1].Defect, 1e-12)
		assert.Less(t, stats[1].Defect, stats[0].Defect)
	}
}

func TestCycles(t *testing.T) {
	for _, test := range []struct {
		cycle  Cycle
		coarse int
		// rest is the number of restrictions per level and cycle.
		rest []int
	}{
		{V, 1, []int{1, 1, 1}},
		{W, 8, []int{1, 2, 4}},
		{F, 4, []int{1, 2, 3}},
	} {
		h, mats := poisson2D.hierarchy(3, 4, 2)
		mg := NewMultiGrid(h, test.cycle)

		var coarse int
		rest := make([]int, 3)
		mg.Listener = solver.ListenerFunc(func(e solver.Event) {
			switch e.Kind {
			case solver.EventCallCoarseSolver:
				coarse++
			case solver.EventRestriction:
				rest[e.Level]++
			case solver.EventStartSolve, solver.EventEndSolve:
				assert.Equal(t, -1, e.Level)
			}
		})

		a := mats[0]
		s := solver.NewRichardson(a, nil, mg, 1)
		s.MaxIter = 60
		require.NoError(t, solver.Init(s), test.cycle.String())
		n, _ := a.Dims()
		b := randomVector(n, rand.New(rand.NewSource(1)))
		x := make([]float64, n)
		st, err := solver.Solve(s, x, b, a, nil)
		solver.Done(s)
		require.NoError(t, err, test.cycle.String())
		assert.Equal(t, solver.StatusSuccess, st, test.cycle.String())

		iters := s.NumIter()
		assert.Equal(t, test.coarse*iters, coarse, test.cycle.String())
		for k := range rest {
			assert.Equal(t, test.rest[k]*iters, rest[k], "%v cycle, level %d", test.cycle, k)
		}
	}
}

func TestPreconditionedCG(t *testing.T) {
	h, mats := poisson2D.hierarchy(3, 4, 1)
	a := mats[0]
	s := solver.NewPCG(a, nil, NewMultiGrid(h, V))
	require.NoError(t, solver.Init(s))
	defer solver.Done(s)

	n, _ := a.Dims()
	b := randomVector(n, rand.New(rand.NewSource(1)))
	x := make([]float64, n)
	st, err := solver.Solve(s, x, b, a, nil)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
	assert.LessOrEqual(t, s.NumIter(), 15)
}

func TestAdaptiveCoarseCorrection(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	def := randomVector(31, rnd)

	// Without post-smoothing the defect after a cycle is the defect of
	// the damped coarse correction.
	cycle := func(adapt AdaptCGC) ([]float64, *sparse.CSR) {
		h, mats := poisson1D.hierarchy(15, 2, 1)
		h.Levels[0].PostSteps = 0
		// A poor coarse solver so that the undamped correction is not
		// optimal.
		h.Coarse = solver.NewScale(mats[1], nil, 1e-3)
		mg := NewMultiGrid(h, V)
		mg.Adapt = adapt
		require.NoError(t, solver.Init(mg))
		defer solver.Done(mg)
		cor := make([]float64, 31)
		st, err := mg.Apply(cor, def)
		require.NoError(t, err)
		require.Equal(t, solver.StatusSuccess, st)
		return cor, mats[0]
	}

	fixed, a := cycle(AdaptFixed)
	minDef, _ := cycle(AdaptMinDefect)
	minEn, _ := cycle(AdaptMinEnergy)
	assert.Less(t, defectNorm(a, minDef, def), defectNorm(a, fixed, def))

	exact := solver.NewDirect(a, nil)
	require.NoError(t, solver.Init(exact))
	xs := make([]float64, 31)
	_, err := exact.Apply(xs, def)
	require.NoError(t, err)
	energy := func(cor []float64) float64 {
		e := make([]float64, 31)
		floats.SubTo(e, xs, cor)
		ae := make([]float64, 31)
		a.MulVecTo(ae, e)
		return floats.Dot(e, ae)
	}
	assert.Less(t, energy(minEn), energy(fixed))

	for _, adapt := range []AdaptCGC{AdaptFixed, AdaptMinEnergy, AdaptMinDefect} {
		h, mats := poisson1D.hierarchy(7, 3, 1)
		mg := NewMultiGrid(h, V)
		mg.Adapt = adapt
		s := solver.NewRichardson(mats[0], nil, mg, 1)
		s.MaxIter = 60
		require.NoError(t, solver.Init(s), adapt.String())
		b := randomVector(31, rnd)
		x := make([]float64, 31)
		st, err := solver.Solve(s, x, b, mats[0], nil)
		solver.Done(s)
		require.NoError(t, err, adapt.String())
		assert.Equal(t, solver.StatusSuccess, st, adapt.String())
	}
}

func TestSingleLevel(t *testing.T) {
	a := sparse.Poisson1D(10)
	mg := NewMultiGrid(NewHierarchy(solver.NewDirect(a, nil), NewLevel(a, nil, nil, nil, nil)), W)
	require.NoError(t, solver.Init(mg))
	defer solver.Done(mg)

	def := randomVector(10, rand.New(rand.NewSource(1)))
	cor := make([]float64, 10)
	st, err := mg.Apply(cor, def)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
	assert.Less(t, defectNorm(a, cor, def), 1e-10*floats.Norm(def, 2))
}

func TestCoarseSmootherFallback(t *testing.T) {
	h, _ := poisson1D.hierarchy(7, 2, 1)
	h.Coarse = nil
	h.Levels[1].PreSteps = 3
	mg := NewMultiGrid(h, V)

	calls := make([]int, 2)
	mg.Listener = solver.ListenerFunc(func(e solver.Event) {
		assert.NotEqual(t, solver.EventCallCoarseSolver, e.Kind)
		if e.Kind == solver.EventCallSmoother {
			calls[e.Level]++
		}
	})
	require.NoError(t, solver.Init(mg))
	defer solver.Done(mg)

	def := randomVector(15, rand.New(rand.NewSource(1)))
	cor := make([]float64, 15)
	st, err := mg.Apply(cor, def)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
	assert.Equal(t, []int{2, 3}, calls)
}

// failing is a solver whose Apply always ends with a fixed result.
type failing struct {
	st  solver.Status
	err error
}

func (f *failing) Name() string                                    { return "failing" }
func (f *failing) InitSymbolic() error                             { return nil }
func (f *failing) InitNumeric() error                              { return nil }
func (f *failing) Apply(cor, def []float64) (solver.Status, error) { return f.st, f.err }
func (f *failing) DoneNumeric()                                    {}
func (f *failing) DoneSymbolic()                                   {}
func (f *failing) Status() solver.Status                           { return f.st }

func TestCoarseFailure(t *testing.T) {
	errBoom := errors.New("boom")
	for _, coarse := range []*failing{
		{solver.StatusAborted, errBoom},
		{solver.StatusDiverged, nil},
		{solver.StatusAborted, &solver.SingularMatrixError{Solver: "failing", Row: 3}},
	} {
		h, mats := poisson1D.hierarchy(7, 3, 1)
		h.Coarse = coarse
		mg := NewMultiGrid(h, V)
		require.NoError(t, solver.Init(mg))

		def := randomVector(31, rand.New(rand.NewSource(1)))
		cor := make([]float64, 31)
		floats.AddConst(1, cor)
		st, err := mg.Apply(cor, def)
		assert.Equal(t, solver.StatusAborted, st)
		assert.Equal(t, solver.StatusAborted, mg.Status())
		var se *solver.SolverError
		require.True(t, errors.As(err, &se), "%v", err)
		assert.Equal(t, "MultiGrid", se.Solver)
		if coarse.err != nil {
			assert.True(t, errors.Is(err, coarse.err))
		}
		assert.Equal(t, make([]float64, 31), cor)

		// The failure propagates as an aborted outer solve.
		s := solver.NewRichardson(mats[0], nil, mg, 1)
		require.NoError(t, solver.Init(s))
		x := make([]float64, 31)
		st, err = solver.Solve(s, x, def, mats[0], nil)
		assert.Equal(t, solver.StatusAborted, st)
		assert.Error(t, err)
		var sme *solver.SingularMatrixError
		if errors.As(coarse.err, &sme) {
			assert.True(t, errors.As(err, &sme))
		}
		solver.Done(s)
	}
}

// mulOnly hides all methods of a matrix but Dims and MulVecTo.
type mulOnly struct {
	m *sparse.CSR
}

func (o mulOnly) Dims() (r, c int)          { return o.m.Dims() }
func (o mulOnly) MulVecTo(dst, x []float64) { o.m.MulVecTo(dst, x) }

func TestHierarchyStructure(t *testing.T) {
	a := sparse.Poisson1D(7)
	ac := sparse.Poisson1D(3)
	coarse := solver.NewDirect(ac, nil)
	coarseLevel := NewLevel(ac, nil, nil, nil, nil)
	tests := []struct {
		name string
		h    *Hierarchy
	}{
		{"no levels", NewHierarchy(coarse)},
		{"no prolongation", NewHierarchy(coarse, NewLevel(a, nil, nil, nil, nil), coarseLevel)},
		{"wrong prolongation", NewHierarchy(coarse, NewLevel(a, nil, sparse.Prolongation1D(2), nil, nil), coarseLevel)},
		{"wrong restriction", NewHierarchy(coarse, NewLevel(a, nil, sparse.Prolongation1D(3), sparse.Restriction1D(2), nil), coarseLevel)},
		{"no transpose", NewHierarchy(coarse, NewLevel(a, nil, mulOnly{sparse.Prolongation1D(3)}, nil, nil), coarseLevel)},
	}
	for _, test := range tests {
		err := NewMultiGrid(test.h, V).InitSymbolic()
		var ims *solver.InvalidMatrixStructureError
		assert.True(t, errors.As(err, &ims), "%s: %v", test.name, err)
	}

	h := NewHierarchy(nil, NewLevel(a, nil, sparse.Prolongation1D(3), nil, nil), NewLevel(ac, nil, nil, nil, nil))
	err := NewMultiGrid(h, V).InitSymbolic()
	var ce *solver.ConfigError
	assert.True(t, errors.As(err, &ce), "%v", err)

	// Without a restriction the transpose of the prolongation is used.
	h = NewHierarchy(coarse, NewLevel(a, nil, sparse.Prolongation1D(3), nil, solver.NewJacobi(a, nil, 0.5)), NewLevel(ac, nil, nil, nil, nil))
	mg := NewMultiGrid(h, V)
	require.NoError(t, solver.Init(mg))
	cor := make([]float64, 7)
	_, err = mg.Apply(cor, randomVector(7, rand.New(rand.NewSource(1))))
	assert.NoError(t, err)
	solver.Done(mg)
}

func TestStaleLevelOperator(t *testing.T) {
	h, mats := poisson1D.hierarchy(3, 3, 1)
	mg := NewMultiGrid(h, V)
	require.NoError(t, solver.Init(mg))
	defer solver.Done(mg)

	cor := make([]float64, 15)
	def := randomVector(15, rand.New(rand.NewSource(1)))
	_, err := mg.Apply(cor, def)
	require.NoError(t, err)

	mats[1].Scale(2)
	st, err := mg.Apply(cor, def)
	assert.Equal(t, solver.StatusUndefined, st)
	assert.True(t, errors.Is(err, solver.ErrStaleOperator))

	_, err = mg.Apply(cor[:3], def)
	assert.True(t, solver.IsStructural(err))
}

func TestTimings(t *testing.T) {
	h, _ := poisson1D.hierarchy(3, 3, 1)
	mg := NewMultiGrid(h, V)

	levels := make(map[int]int)
	var totals int
	mg.Listener = solver.ListenerFunc(func(e solver.Event) {
		switch e.Kind {
		case solver.EventLevelTimings:
			levels[e.Level]++
			assert.Len(t, e.Timings, 5)
		case solver.EventTimings:
			assert.Equal(t, -1, e.Level)
			totals++
		}
	})
	require.NoError(t, solver.Init(mg))
	defer solver.Done(mg)

	def := randomVector(15, rand.New(rand.NewSource(1)))
	cor := make([]float64, 15)
	for i := 0; i < 2; i++ {
		_, err := mg.Apply(cor, def)
		require.NoError(t, err)
	}
	assert.Equal(t, map[int]int{0: 2, 1: 2, 2: 2}, levels)
	assert.Equal(t, 2, totals)

	tm := mg.Timings()
	require.Len(t, tm, 3)
	assert.Zero(t, tm[0].Coarse)
	assert.Zero(t, tm[2].Restriction)
	mg.ResetTimings()
	for _, lt := range mg.Timings() {
		assert.Zero(t, lt.Total())
	}
}

func TestConfigure(t *testing.T) {
	h, _ := poisson1D.hierarchy(3, 2, 1)
	mg := NewMultiGrid(h, V)
	require.NoError(t, mg.Configure(map[string]string{
		"cycle":     "w",
		"adapt_cgc": "min_defect",
		"cgc_omega": "0.5",
	}))
	assert.Equal(t, W, mg.Cycle)
	assert.Equal(t, AdaptMinDefect, mg.Adapt)
	assert.Equal(t, 0.5, mg.Omega)

	for _, kv := range []map[string]string{
		{"cycle": "X"},
		{"adapt_cgc": "best"},
		{"smoother": "jacobi"},
	} {
		var ce *solver.ConfigError
		assert.True(t, errors.As(mg.Configure(kv), &ce), "%v", kv)
	}
}

func TestAttach(t *testing.T) {
	h, mats := poisson1D.hierarchy(3, 3, 1)
	mg := NewMultiGrid(h, F)
	s := solver.NewFGMRES(mats[0], nil, mg, 10)

	var names []string
	solver.Walk(s, func(s solver.Solver) { names = append(names, s.Name()) })
	// FGMRES, MultiGrid, two Jacobi smoothers and the coarse solver. The
	// coarsest smoother is not used but still part of the tree.
	assert.Equal(t, []string{"FGMRES", "MultiGrid", "Jacobi", "Jacobi", "Jacobi", "Direct"}, names)

	var mgEvents int
	solver.Attach(s, solver.ListenerFunc(func(e solver.Event) {
		if e.Solver == "MultiGrid" {
			mgEvents++
		}
	}))
	assert.NotNil(t, mg.Listener)
	require.NoError(t, solver.Init(s))
	defer solver.Done(s)
	b := randomVector(15, rand.New(rand.NewSource(1)))
	x := make([]float64, 15)
	st, err := solver.Solve(s, x, b, mats[0], nil)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
	assert.Positive(t, mgEvents)
	assert.False(t, math.IsNaN(floats.Norm(x, 2)))
}
