// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// PCR implements the preconditioned Conjugate Residual method for symmetric,
// possibly indefinite, matrices and a symmetric positive definite
// preconditioner. It minimizes the residual in the norm induced by the
// preconditioner.
//
// PCR needs MatVec and PSolve operations.
type PCR struct {
	resume int
	gamma  float64

	z, p, az, ap, q []float64
}

// NewPCR returns an Iterative solver running PCR.
func NewPCR(a Operator, f Filter, p Solver) *Iterative {
	return NewIterative("PCR", a, f, &PCR{}, p)
}

// Init implements the Method interface.
func (cr *PCR) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	cr.z = reuse(cr.z, dim)
	cr.p = reuse(cr.p, dim)
	cr.az = reuse(cr.az, dim)
	cr.ap = reuse(cr.ap, dim)
	cr.q = reuse(cr.q, dim)
	cr.resume = 1
}

// Iterate implements the Method interface.
func (cr *PCR) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch cr.resume {
	case 1:
		ctx.Src, ctx.Dst = r, cr.z
		cr.resume = 2
		return PSolve, nil

	case 2:
		copy(cr.p, cr.z)
		ctx.Src, ctx.Dst = cr.z, cr.az
		cr.resume = 3
		return MatVec, nil

	case 3:
		copy(cr.ap, cr.az)
		cr.gamma = floats.Dot(cr.z, cr.az)
		return cr.precondAp(ctx)

	case 4:
		den := floats.Dot(cr.ap, cr.q)
		if den == 0 {
			cr.resume = 0
			return NoOperation, errors.New("Ap·M^{-1}Ap breakdown")
		}
		alpha := cr.gamma / den
		floats.AddScaled(ctx.X, alpha, cr.p)
		floats.AddScaled(r, -alpha, cr.ap)
		floats.AddScaled(cr.z, -alpha, cr.q)
		ctx.ResidualNorm = floats.Norm(r, 2)
		cr.resume = 5
		return EndIteration, nil

	case 5:
		ctx.Src, ctx.Dst = cr.z, cr.az
		cr.resume = 6
		return MatVec, nil

	case 6:
		gamma := floats.Dot(cr.z, cr.az)
		if cr.gamma == 0 {
			cr.resume = 0
			return NoOperation, errors.New("z·Az breakdown")
		}
		beta := gamma / cr.gamma
		cr.gamma = gamma
		floats.AddScaledTo(cr.p, cr.z, beta, cr.p)
		floats.AddScaledTo(cr.ap, cr.az, beta, cr.ap)
		return cr.precondAp(ctx)

	default:
		panic("solver: PCR.Init not called")
	}
}

func (cr *PCR) precondAp(ctx *Context) (Operation, error) {
	ctx.Src, ctx.Dst = cr.ap, cr.q
	cr.resume = 4
	return PSolve, nil
}
