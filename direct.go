// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Direct solves the system exactly by a dense LU factorization with partial
// pivoting. It is meant for small systems, typically the coarsest level of
// a multigrid hierarchy.
//
// InitNumeric fails with a *SingularMatrixError if the estimated condition
// number exceeds MaxCond.
type Direct struct {
	precond

	// MaxCond is the largest accepted condition number. If it is zero,
	// 1/ε is used.
	MaxCond float64

	lu    mat.LU
	dense *mat.Dense
	x, b  *mat.VecDense
}

// NewDirect returns a Direct solver for the system a.
func NewDirect(a Operator, f Filter) *Direct {
	return &Direct{precond: newPrecond("Direct", a, f)}
}

// InitSymbolic implements the Solver interface.
func (p *Direct) InitSymbolic() error {
	p.dense = mat.NewDense(p.n, p.n, nil)
	p.x = mat.NewVecDense(p.n, nil)
	p.b = mat.NewVecDense(p.n, nil)
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *Direct) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	denseOf(p.dense, p.a)
	p.lu.Factorize(p.dense)
	maxCond := p.MaxCond
	if maxCond == 0 {
		maxCond = 1 / dlamchE
	}
	if c := p.lu.Cond(); math.IsInf(c, 0) || math.IsNaN(c) || c > maxCond {
		return &SingularMatrixError{Solver: p.name, Row: -1, Cond: c}
	}
	p.initNumeric(p.a)
	return nil
}

// denseOf stores the operator a into dst. Operators that are not a
// mat.Matrix are applied to the unit vectors.
func denseOf(dst *mat.Dense, a Operator) {
	if m, ok := a.(mat.Matrix); ok {
		dst.Copy(m)
		return
	}
	n, _ := dst.Dims()
	e := make([]float64, n)
	col := make([]float64, n)
	for j := 0; j < n; j++ {
		e[j] = 1
		a.MulVecTo(col, e)
		dst.SetCol(j, col)
		e[j] = 0
	}
}

// Apply implements the Solver interface.
func (p *Direct) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	copy(p.b.RawVector().Data, def)
	if err := p.lu.SolveVecTo(p.x, false, p.b); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return p.fail(err)
		}
	}
	copy(cor, p.x.RawVector().Data)
	return p.success(cor)
}
