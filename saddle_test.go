// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimir-ch/solver/sparse"
)

// saddleSystem returns a saddle-point matrix with an SPD velocity block
// and a random coupling block B of full column rank, with D = B^T. If
// density is one, every velocity is coupled to every pressure.
func saddleSystem(nu, np int, density float64, rnd *rand.Rand) *sparse.SaddlePoint {
	a := sparse.Poisson1D(nu)
	a.Scale(1 / float64((nu+1)*(nu+1)))
	coo := sparse.NewCOO(nu, np)
	for i := 0; i < nu; i++ {
		for j := 0; j < np; j++ {
			if i%np == j || rnd.Float64() < density {
				coo.Append(i, j, rnd.NormFloat64())
			}
		}
	}
	b := coo.CSR()
	return sparse.NewSaddlePoint(a, b, b.Transpose())
}

func TestUzawaTypeStrings(t *testing.T) {
	for _, typ := range []UzawaType{UzawaDiagonal, UzawaLower, UzawaUpper, UzawaFull} {
		got, err := ParseUzawaType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseUzawaType("bogus")
	assert.Error(t, err)
}

func newExactUzawa(m *sparse.SaddlePoint, typ UzawaType) *Uzawa {
	sa := NewDirect(m.A, nil)
	ss := NewDirect(SchurOperator(m, sa), nil)
	return NewUzawa(m, nil, typ, sa, ss)
}

func TestUzawaFullExact(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	m := saddleSystem(12, 4, 0.3, rnd)
	u := newExactUzawa(m, UzawaFull)

	var calls []EventKind
	Attach(u, ListenerFunc(func(e Event) {
		if e.Solver == "Uzawa" {
			calls = append(calls, e.Kind)
		}
	}))
	def := randomVector(16, rnd)
	cor := applyOnce(t, u, def)
	assert.Less(t, relResidual(m, cor, def), 1e-10)
	assert.Equal(t, []EventKind{EventStartSolve, EventCallUzawaA, EventCallUzawaS, EventCallUzawaA, EventEndSolve}, calls)
}

func TestUzawaPreconditioner(t *testing.T) {
	// With exact inner solvers the preconditioned matrix has three distinct
	// eigenvalues for the diagonal variant and is a shifted nilpotent
	// matrix of index two for the triangular ones.
	for _, test := range []struct {
		typ     UzawaType
		maxIter int
	}{
		{UzawaDiagonal, 4},
		{UzawaLower, 3},
		{UzawaUpper, 3},
		{UzawaFull, 1},
	} {
		rnd := rand.New(rand.NewSource(1))
		m := saddleSystem(20, 6, 0.3, rnd)
		s := NewFGMRES(m, nil, newExactUzawa(m, test.typ), 20)
		require.NoError(t, Init(s), test.typ.String())
		b := randomVector(26, rnd)
		x := make([]float64, 26)
		st, err := Solve(s, x, b, m, nil)
		Done(s)
		require.NoError(t, err, test.typ.String())
		assert.Equal(t, StatusSuccess, st, test.typ.String())
		assert.LessOrEqual(t, s.NumIter(), test.maxIter, test.typ.String())
		assert.Less(t, relResidual(m, x, b), 1e-7, test.typ.String())
	}
}

func TestUzawaStructure(t *testing.T) {
	a := sparse.Poisson1D(4)
	u := NewUzawa(a, nil, UzawaFull, NewDirect(a, nil), NewDirect(a, nil))
	err := u.InitSymbolic()
	var ims *InvalidMatrixStructureError
	assert.True(t, errors.As(err, &ims))
}

func TestVankaTypeStrings(t *testing.T) {
	for typ := VankaNodalDiagMult; typ <= VankaBlockFullAdd; typ++ {
		got, err := ParseVankaType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseVankaType("bogus")
	assert.Error(t, err)
}

func TestVankaSinglePatchExact(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	m := saddleSystem(10, 3, 1, rnd)
	v := NewVanka(m, nil, VankaBlockFullMult, 1)
	v.Blocks = [][]int{{0, 1, 2}}
	def := randomVector(13, rnd)
	cor := applyOnce(t, v, def)
	assert.Less(t, relResidual(m, cor, def), 1e-10)

	// The additive variant of a single patch is exact as well.
	v = NewVanka(m, nil, VankaBlockFullAdd, 1)
	v.Blocks = [][]int{{0, 1, 2}}
	cor = applyOnce(t, v, def)
	assert.Less(t, relResidual(m, cor, def), 1e-10)
}

func TestVankaPreconditioner(t *testing.T) {
	for typ := VankaNodalDiagMult; typ <= VankaBlockFullAdd; typ++ {
		rnd := rand.New(rand.NewSource(1))
		m := saddleSystem(16, 5, 0.2, rnd)
		s := NewFGMRES(m, nil, NewVanka(m, nil, typ, 1), 21)
		require.NoError(t, Init(s), typ.String())
		b := randomVector(21, rnd)
		x := make([]float64, 21)
		st, err := Solve(s, x, b, m, nil)
		Done(s)
		require.NoError(t, err, typ.String())
		assert.Equal(t, StatusSuccess, st, typ.String())
		assert.Less(t, relResidual(m, x, b), 1e-7, typ.String())
	}
}

func TestVankaSingularPatch(t *testing.T) {
	a := sparse.Poisson1D(4)
	// Pressure 1 is not coupled to any velocity.
	b := sparse.NewCSR(4, 2, []int{0, 1, 2, 2, 2}, []int{0, 0}, []float64{1, 1})
	m := sparse.NewSaddlePoint(a, b, b.Transpose())

	err := Init(NewVanka(m, nil, VankaNodalFullMult, 1))
	var vfe *VankaFactorError
	require.True(t, errors.As(err, &vfe))
	assert.Equal(t, 1, vfe.Patch)
	var sme *SingularMatrixError
	assert.True(t, errors.As(err, &sme))

	v := NewVanka(m, nil, VankaNodalFullMult, 1)
	v.Policy = VankaRegularize
	require.NoError(t, Init(v))
	Done(v)

	err = NewVanka(a, nil, VankaNodalFullMult, 1).InitSymbolic()
	var ims *InvalidMatrixStructureError
	assert.True(t, errors.As(err, &ims))
}
