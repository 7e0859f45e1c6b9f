// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"gonum.org/v1/gonum/floats"
)

// PMR implements the preconditioned Minimal Residual iteration. In each
// iteration the preconditioned residual z = M^{-1}*r is used as the search
// direction with the step length that minimizes the Euclidean norm of the
// new residual. PMR converges for matrices with a positive definite
// symmetric part.
//
// PMR needs MatVec and PSolve operations.
type PMR struct {
	resume int

	z, q []float64
}

// NewPMR returns an Iterative solver running PMR.
func NewPMR(a Operator, f Filter, p Solver) *Iterative {
	return NewIterative("PMR", a, f, &PMR{}, p)
}

// Init implements the Method interface.
func (mr *PMR) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	mr.z = reuse(mr.z, dim)
	mr.q = reuse(mr.q, dim)
	mr.resume = 1
}

// Iterate implements the Method interface.
func (mr *PMR) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch mr.resume {
	case 1:
		ctx.Src, ctx.Dst = r, mr.z
		mr.resume = 2
		return PSolve, nil

	case 2:
		ctx.Src, ctx.Dst = mr.z, mr.q
		mr.resume = 3
		return MatVec, nil

	case 3:
		// A zero q leaves x and r unchanged; stagnation or the iteration
		// limit ends the solve.
		if qq := floats.Dot(mr.q, mr.q); qq > 0 {
			alpha := floats.Dot(mr.q, r) / qq
			floats.AddScaled(ctx.X, alpha, mr.z)
			floats.AddScaled(r, -alpha, mr.q)
		}
		ctx.ResidualNorm = floats.Norm(r, 2)
		mr.resume = 1
		return EndIteration, nil

	default:
		panic("solver: PMR.Init not called")
	}
}
