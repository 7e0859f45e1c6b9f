// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// RGCR implements the restarted Generalized Conjugate Residual method with
// right preconditioning. The search directions are orthogonalized in the
// A^T A inner product against all directions of the current cycle, the
// preconditioner may change between iterations.
//
// RGCR needs MatVec and PSolve operations.
type RGCR struct {
	// Restart is the number of search directions kept. If it is not
	// positive, 20 is used.
	Restart int

	resume int
	k, m   int

	p, q [][]float64
}

// NewRGCR returns an Iterative solver running RGCR restarted every restart
// iterations.
func NewRGCR(a Operator, f Filter, p Solver, restart int) *Iterative {
	return NewIterative("RGCR", a, f, &RGCR{Restart: restart}, p)
}

func (g *RGCR) configure(key, value string) (bool, error) {
	if key != "krylov_dim" {
		return false, nil
	}
	n, err := parsePositive(value)
	g.Restart = n
	return true, err
}

// Init implements the Method interface.
func (g *RGCR) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	g.m = restartDim(g.Restart, dim)
	g.p = reuseVecs(g.p, g.m, dim)
	g.q = reuseVecs(g.q, g.m, dim)
	g.k = 0
	g.resume = 1
}

// Iterate implements the Method interface.
func (g *RGCR) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch g.resume {
	case 1:
		ctx.Src, ctx.Dst = r, g.p[g.k]
		g.resume = 2
		return PSolve, nil
		// p_k = M^{-1} r

	case 2:
		ctx.Src, ctx.Dst = g.p[g.k], g.q[g.k]
		g.resume = 3
		return MatVec, nil
		// q_k = A p_k

	case 3:
		k := g.k
		pk, qk := g.p[k], g.q[k]
		for j := 0; j < k; j++ {
			beta := floats.Dot(qk, g.q[j])
			floats.AddScaled(qk, -beta, g.q[j])
			floats.AddScaled(pk, -beta, g.p[j])
		}
		nq := floats.Norm(qk, 2)
		if nq == 0 {
			g.resume = 0
			return NoOperation, errors.New("search direction breakdown")
		}
		floats.Scale(1/nq, qk)
		floats.Scale(1/nq, pk)
		alpha := floats.Dot(r, qk)
		floats.AddScaled(ctx.X, alpha, pk)
		floats.AddScaled(r, -alpha, qk)
		ctx.ResidualNorm = floats.Norm(r, 2)
		g.k = (k + 1) % g.m
		g.resume = 1
		return EndIteration, nil

	default:
		panic("solver: RGCR.Init not called")
	}
}
