// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// PCG implements the preconditioned Conjugate Gradient iterative method for
// solving the system of linear equations
//  Ax = b,
// where A is a symmetric positive definite matrix and the preconditioner is
// symmetric positive definite.
//
// PCG needs MatVec and PSolve operations.
type PCG struct {
	first        bool
	resume       int
	rho, rhoPrev float64

	z, p, ap []float64
}

// NewPCG returns an Iterative solver running PCG.
func NewPCG(a Operator, f Filter, p Solver) *Iterative {
	return NewIterative("PCG", a, f, &PCG{}, p)
}

// Init implements the Method interface.
func (cg *PCG) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	cg.z = reuse(cg.z, dim)
	cg.p = reuse(cg.p, dim)
	cg.ap = reuse(cg.ap, dim)
	cg.first = true
	cg.resume = 1
}

// Iterate implements the Method interface.
func (cg *PCG) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch cg.resume {
	case 1:
		ctx.Src = r
		ctx.Dst = cg.z
		cg.resume = 2
		return PSolve, nil
		// Solve M z = r_{i-1}

	case 2:
		cg.rho = floats.Dot(r, cg.z) // ρ_i = r_{i-1} · z
		if !cg.first {
			// p_i = z + β p_{i-1} with β = ρ_i / ρ_{i-1}
			floats.AddScaledTo(cg.p, cg.z, cg.rho/cg.rhoPrev, cg.p)
		} else {
			copy(cg.p, cg.z) // p_i = z
		}
		ctx.Src = cg.p
		ctx.Dst = cg.ap
		cg.resume = 3
		return MatVec, nil
		// Compute Ap_i

	case 3:
		pap := floats.Dot(cg.p, cg.ap)
		if pap == 0 {
			cg.resume = 0
			return NoOperation, errors.New("p·Ap breakdown")
		}
		alpha := cg.rho / pap                // α = ρ_i / (p_i · Ap_i)
		floats.AddScaled(r, -alpha, cg.ap)   // r_i = r_{i-1} - α Ap_i
		floats.AddScaled(ctx.X, alpha, cg.p) // x_i = x_{i-1} + α p_i
		ctx.ResidualNorm = floats.Norm(r, 2)
		cg.rhoPrev = cg.rho
		cg.first = false
		cg.resume = 1
		return EndIteration, nil

	default:
		panic("solver: PCG.Init not called")
	}
}
