// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// PipePCG implements the pipelined preconditioned Conjugate Gradient method
// of Ghysels and Vanroose. Both inner products of an iteration are computed
// in a single reduction that can overlap with the preconditioner and the
// operator application. The recurrences for A*p, M^{-1}*A*p and
// A*M^{-1}*A*p make it less stable than PCG for very small tolerances.
//
// PipePCG needs MatVec and PSolve operations.
type PipePCG struct {
	first    bool
	resume   int
	gamma    float64
	delta    float64
	gammaOld float64
	alphaOld float64

	u, w, m, n []float64
	z, q, s, p []float64
}

// NewPipePCG returns an Iterative solver running PipePCG.
func NewPipePCG(a Operator, f Filter, p Solver) *Iterative {
	return NewIterative("PipePCG", a, f, &PipePCG{}, p)
}

// Init implements the Method interface.
func (pp *PipePCG) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	for _, v := range []*[]float64{&pp.u, &pp.w, &pp.m, &pp.n, &pp.z, &pp.q, &pp.s, &pp.p} {
		*v = reuse(*v, dim)
	}
	pp.first = true
	pp.resume = 1
}

// Iterate implements the Method interface.
func (pp *PipePCG) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch pp.resume {
	case 1:
		ctx.Src, ctx.Dst = r, pp.u
		pp.resume = 2
		return PSolve, nil
		// u_0 = M^{-1} r_0

	case 2:
		ctx.Src, ctx.Dst = pp.u, pp.w
		pp.resume = 3
		return MatVec, nil
		// w_0 = A u_0

	case 3:
		pp.gamma = floats.Dot(r, pp.u)
		pp.delta = floats.Dot(pp.w, pp.u)
		ctx.Src, ctx.Dst = pp.w, pp.m
		pp.resume = 4
		return PSolve, nil
		// m = M^{-1} w

	case 4:
		ctx.Src, ctx.Dst = pp.m, pp.n
		pp.resume = 5
		return MatVec, nil
		// n = A m

	case 5:
		var alpha, beta float64
		if pp.first {
			if pp.delta == 0 {
				pp.resume = 0
				return NoOperation, errors.New("w·u breakdown")
			}
			alpha = pp.gamma / pp.delta
			copy(pp.z, pp.n)
			copy(pp.q, pp.m)
			copy(pp.s, pp.w)
			copy(pp.p, pp.u)
		} else {
			beta = pp.gamma / pp.gammaOld
			den := pp.delta - beta*pp.gamma/pp.alphaOld
			if den == 0 {
				pp.resume = 0
				return NoOperation, errors.New("step length breakdown")
			}
			alpha = pp.gamma / den
			floats.AddScaledTo(pp.z, pp.n, beta, pp.z)
			floats.AddScaledTo(pp.q, pp.m, beta, pp.q)
			floats.AddScaledTo(pp.s, pp.w, beta, pp.s)
			floats.AddScaledTo(pp.p, pp.u, beta, pp.p)
		}
		floats.AddScaled(ctx.X, alpha, pp.p)
		floats.AddScaled(r, -alpha, pp.s)
		floats.AddScaled(pp.u, -alpha, pp.q)
		floats.AddScaled(pp.w, -alpha, pp.z)
		pp.gammaOld = pp.gamma
		pp.alphaOld = alpha
		pp.first = false
		ctx.ResidualNorm = floats.Norm(r, 2)
		pp.resume = 3
		return EndIteration, nil

	default:
		panic("solver: PipePCG.Init not called")
	}
}
