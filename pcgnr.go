// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// PCGNR implements the Conjugate Gradient method on the normal equations
//  A^T A x = A^T b
// for general non-singular A. The preconditioner of the normal equations is
// applied in two stages: the left preconditioner approximates A^{-T} and is
// applied first, the right preconditioner approximates A^{-1}. For a
// symmetric A both may be the same solver.
//
// The residual norm reported is the norm of b - A*x.
//
// PCGNR needs MatVec, MatTransVec, PSolveL and PSolveR operations.
type PCGNR struct {
	first  bool
	resume int
	gamma  float64

	s, t, z, p, w []float64
}

// NewPCGNR returns an Iterative solver running PCGNR with the left and
// right preconditioners pl and pr. Both may be nil.
func NewPCGNR(a Operator, f Filter, pl, pr Solver) *Iterative {
	s := NewIterative("PCGNR", a, f, &PCGNR{}, nil)
	s.PrecondL = pl
	s.PrecondR = pr
	return s
}

func (*PCGNR) needsTranspose() bool { return true }

// Init implements the Method interface.
func (cg *PCGNR) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	cg.s = reuse(cg.s, dim)
	cg.t = reuse(cg.t, dim)
	cg.z = reuse(cg.z, dim)
	cg.p = reuse(cg.p, dim)
	cg.w = reuse(cg.w, dim)
	cg.first = true
	cg.resume = 1
}

// Iterate implements the Method interface.
func (cg *PCGNR) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch cg.resume {
	case 1:
		ctx.Src, ctx.Dst = r, cg.s
		cg.resume = 2
		return MatTransVec, nil
		// s = A^T r

	case 2:
		ctx.Src, ctx.Dst = cg.s, cg.t
		cg.resume = 3
		return PSolveL, nil

	case 3:
		ctx.Src, ctx.Dst = cg.t, cg.z
		cg.resume = 4
		return PSolveR, nil

	case 4:
		gamma := floats.Dot(cg.s, cg.z)
		if cg.first {
			copy(cg.p, cg.z)
		} else {
			if cg.gamma == 0 {
				cg.resume = 0
				return NoOperation, errors.New("s·z breakdown")
			}
			floats.AddScaledTo(cg.p, cg.z, gamma/cg.gamma, cg.p)
		}
		cg.gamma = gamma
		ctx.Src, ctx.Dst = cg.p, cg.w
		cg.resume = 5
		return MatVec, nil
		// w = A p

	case 5:
		ww := floats.Dot(cg.w, cg.w)
		if ww == 0 {
			cg.resume = 0
			return NoOperation, errors.New("Ap·Ap breakdown")
		}
		alpha := cg.gamma / ww
		floats.AddScaled(ctx.X, alpha, cg.p)
		floats.AddScaled(r, -alpha, cg.w)
		ctx.ResidualNorm = floats.Norm(r, 2)
		cg.first = false
		cg.resume = 1
		return EndIteration, nil

	default:
		panic("solver: PCGNR.Init not called")
	}
}
