// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// RBiCGSTAB implements a reordered right preconditioned BiCGSTAB. The inner
// products are grouped so that an iteration needs three global reductions
// instead of four: rt·v, the fused t·s and t·t, and the fused rt·r and |r|
// of the new residual. In exact arithmetic it produces the same iterates as
// BiCGSTAB with PrecondRight.
//
// RBiCGSTAB needs MatVec and PSolve operations.
type RBiCGSTAB struct {
	first  bool
	resume int

	rho, rhoPrev float64
	alpha, omega float64

	rt, p, v, t []float64
	phat, s     []float64
	shat        []float64
}

// NewRBiCGStab returns an Iterative solver running RBiCGSTAB.
func NewRBiCGStab(a Operator, f Filter, p Solver) *Iterative {
	return NewIterative("RBiCGStab", a, f, &RBiCGSTAB{}, p)
}

// Init implements the Method interface.
func (b *RBiCGSTAB) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	for _, v := range []*[]float64{&b.rt, &b.p, &b.v, &b.t, &b.phat, &b.s, &b.shat} {
		*v = reuse(*v, dim)
	}
	b.first = true
	b.resume = 1
}

// Iterate implements the Method interface.
func (b *RBiCGSTAB) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch b.resume {
	case 1:
		if b.first {
			copy(b.rt, r)
			b.rho = floats.Dot(b.rt, r)
			copy(b.p, r)
		} else {
			if math.Abs(b.omega) < dlamchE*dlamchE {
				b.resume = 0
				return NoOperation, errors.New("omega breakdown")
			}
			beta := (b.rho / b.rhoPrev) * (b.alpha / b.omega)
			floats.AddScaled(b.p, -b.omega, b.v)
			floats.AddScaledTo(b.p, r, beta, b.p)
		}
		if math.Abs(b.rho) < dlamchE*dlamchE {
			b.resume = 0
			return NoOperation, errors.New("rho breakdown")
		}
		ctx.Src, ctx.Dst = b.p, b.phat
		b.resume = 2
		return PSolve, nil

	case 2:
		ctx.Src, ctx.Dst = b.phat, b.v
		b.resume = 3
		return MatVec, nil

	case 3:
		sigma := floats.Dot(b.rt, b.v)
		if sigma == 0 {
			b.resume = 0
			return NoOperation, errors.New("rt·v breakdown")
		}
		b.alpha = b.rho / sigma
		floats.AddScaledTo(b.s, r, -b.alpha, b.v)
		ctx.Src, ctx.Dst = b.s, b.shat
		b.resume = 4
		return PSolve, nil

	case 4:
		ctx.Src, ctx.Dst = b.shat, b.t
		b.resume = 5
		return MatVec, nil

	case 5:
		var ts, tt float64
		for i, ti := range b.t {
			ts += ti * b.s[i]
			tt += ti * ti
		}
		b.omega = 0
		if tt != 0 {
			b.omega = ts / tt
		}
		floats.AddScaled(ctx.X, b.alpha, b.phat)
		floats.AddScaled(ctx.X, b.omega, b.shat)
		floats.AddScaledTo(r, b.s, -b.omega, b.t)
		var rho, rr float64
		for i, ri := range r {
			rho += b.rt[i] * ri
			rr += ri * ri
		}
		b.rhoPrev = b.rho
		b.rho = rho
		ctx.ResidualNorm = math.Sqrt(rr)
		b.first = false
		b.resume = 1
		return EndIteration, nil

	default:
		panic("solver: RBiCGSTAB.Init not called")
	}
}
