// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// GroppPCG implements Gropp's asynchronous variant of the preconditioned
// Conjugate Gradient method. It keeps the vectors s = A*p and q = M^{-1}*s
// as recurrences so that each inner product can overlap with an operator
// or preconditioner application. In exact arithmetic it produces the same
// iterates as PCG.
//
// GroppPCG needs MatVec and PSolve operations.
type GroppPCG struct {
	resume   int
	gamma    float64
	gammaNew float64
	delta    float64

	z, p, s, q, w []float64
}

// NewGroppPCG returns an Iterative solver running GroppPCG.
func NewGroppPCG(a Operator, f Filter, p Solver) *Iterative {
	return NewIterative("GroppPCG", a, f, &GroppPCG{}, p)
}

// Init implements the Method interface.
func (g *GroppPCG) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	g.z = reuse(g.z, dim)
	g.p = reuse(g.p, dim)
	g.s = reuse(g.s, dim)
	g.q = reuse(g.q, dim)
	g.w = reuse(g.w, dim)
	g.resume = 1
}

// Iterate implements the Method interface.
func (g *GroppPCG) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch g.resume {
	case 1:
		ctx.Src, ctx.Dst = r, g.z
		g.resume = 2
		return PSolve, nil
		// z_0 = M^{-1} r_0

	case 2:
		copy(g.p, g.z)
		g.gamma = floats.Dot(r, g.z)
		ctx.Src, ctx.Dst = g.p, g.s
		g.resume = 3
		return MatVec, nil
		// s_0 = A p_0

	case 3:
		return g.precondS(ctx)

	case 4:
		if g.delta == 0 {
			g.resume = 0
			return NoOperation, errors.New("p·s breakdown")
		}
		alpha := g.gamma / g.delta
		floats.AddScaled(ctx.X, alpha, g.p)
		floats.AddScaled(r, -alpha, g.s)
		floats.AddScaled(g.z, -alpha, g.q)
		g.gammaNew = floats.Dot(r, g.z)
		ctx.ResidualNorm = floats.Norm(r, 2)
		g.resume = 5
		return EndIteration, nil

	case 5:
		ctx.Src, ctx.Dst = g.z, g.w
		g.resume = 6
		return MatVec, nil
		// w = A z

	case 6:
		beta := g.gammaNew / g.gamma
		floats.AddScaledTo(g.p, g.z, beta, g.p)
		floats.AddScaledTo(g.s, g.w, beta, g.s)
		g.gamma = g.gammaNew
		return g.precondS(ctx)

	default:
		panic("solver: GroppPCG.Init not called")
	}
}

func (g *GroppPCG) precondS(ctx *Context) (Operation, error) {
	g.delta = floats.Dot(g.p, g.s)
	ctx.Src, ctx.Dst = g.s, g.q
	g.resume = 4
	return PSolve, nil
}
