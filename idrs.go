// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// IDRS implements the Induced Dimension Reduction method IDR(s) with
// biorthogonalization of van Gijzen and Sonneveld and right
// preconditioning. Each of the s+1 steps of a cycle is one iteration.
//
// The shadow space is spanned by s orthonormalized pseudo-random vectors
// generated from a fixed seed, so that repeated solves produce identical
// iterates.
//
// IDRS needs MatVec and PSolve operations.
type IDRS struct {
	// S is the dimension of the shadow space. If it is not positive, 4 is
	// used.
	S int

	// Seed is the seed of the shadow space.
	Seed uint64

	first  bool
	resume int
	s, k   int
	omega  float64

	pp  [][]float64 // Shadow space.
	g   [][]float64
	u   [][]float64
	m   [][]float64 // s×s lower triangular.
	f   []float64
	c   []float64
	v   []float64
	vt  []float64
	tmp []float64
}

// NewIDRS returns an Iterative solver running IDR(s).
func NewIDRS(a Operator, f Filter, p Solver, s int) *Iterative {
	return NewIterative("IDRS", a, f, &IDRS{S: s, Seed: 1}, p)
}

func (d *IDRS) configure(key, value string) (bool, error) {
	if key != "s" {
		return false, nil
	}
	n, err := parsePositive(value)
	d.S = n
	return true, err
}

// Init implements the Method interface.
func (d *IDRS) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	s := d.S
	if s <= 0 {
		s = 4
	}
	s = min(s, dim)
	if s != d.s || len(d.pp) == 0 || len(d.pp[0]) != dim {
		d.pp = shadowSpace(s, dim, d.Seed)
	}
	d.s = s
	d.g = reuseVecs(d.g, s, dim)
	d.u = reuseVecs(d.u, s, dim)
	d.m = reuseVecs(d.m, s, s)
	d.f = reuse(d.f, s)
	d.c = reuse(d.c, s)
	d.v = reuse(d.v, dim)
	d.vt = reuse(d.vt, dim)
	d.tmp = reuse(d.tmp, dim)
	d.first = true
	d.resume = 1
}

// shadowSpace returns s orthonormal vectors of length n.
func shadowSpace(s, n int, seed uint64) [][]float64 {
	rnd := rand.New(rand.NewPCG(seed, seed))
	p := make([][]float64, s)
	for i := range p {
		p[i] = make([]float64, n)
		for j := range p[i] {
			p[i][j] = rnd.NormFloat64()
		}
		for j := 0; j < i; j++ {
			floats.AddScaled(p[i], -floats.Dot(p[i], p[j]), p[j])
		}
		floats.Scale(1/floats.Norm(p[i], 2), p[i])
	}
	return p
}

// Iterate implements the Method interface.
func (d *IDRS) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	s := d.s
	switch d.resume {
	case 1:
		if d.first {
			for i := 0; i < s; i++ {
				zero(d.g[i])
				zero(d.u[i])
				zero(d.m[i])
				d.m[i][i] = 1
			}
			d.omega = 1
			d.first = false
		}
		for i := 0; i < s; i++ {
			d.f[i] = floats.Dot(d.pp[i], r)
		}
		d.k = 0
		fallthrough

	case 2:
		k := d.k
		// Solve the lower triangular system M[k:s,k:s] c = f[k:s].
		for i := k; i < s; i++ {
			sum := d.f[i]
			for j := k; j < i; j++ {
				sum -= d.m[i][j] * d.c[j]
			}
			if d.m[i][i] == 0 {
				d.resume = 0
				return NoOperation, errors.New("singular projected system")
			}
			d.c[i] = sum / d.m[i][i]
		}
		copy(d.v, r)
		for i := k; i < s; i++ {
			floats.AddScaled(d.v, -d.c[i], d.g[i])
		}
		ctx.Src, ctx.Dst = d.v, d.vt
		d.resume = 3
		return PSolve, nil

	case 3:
		k := d.k
		floats.ScaleTo(d.tmp, d.omega, d.vt)
		for i := k; i < s; i++ {
			floats.AddScaled(d.tmp, d.c[i], d.u[i])
		}
		copy(d.u[k], d.tmp)
		ctx.Src, ctx.Dst = d.u[k], d.g[k]
		d.resume = 4
		return MatVec, nil

	case 4:
		k := d.k
		for i := 0; i < k; i++ {
			alpha := floats.Dot(d.pp[i], d.g[k]) / d.m[i][i]
			floats.AddScaled(d.g[k], -alpha, d.g[i])
			floats.AddScaled(d.u[k], -alpha, d.u[i])
		}
		for i := k; i < s; i++ {
			d.m[i][k] = floats.Dot(d.pp[i], d.g[k])
		}
		if d.m[k][k] == 0 {
			d.resume = 0
			return NoOperation, errors.New("biorthogonalization breakdown")
		}
		beta := d.f[k] / d.m[k][k]
		floats.AddScaled(r, -beta, d.g[k])
		floats.AddScaled(ctx.X, beta, d.u[k])
		for i := k + 1; i < s; i++ {
			d.f[i] -= beta * d.m[i][k]
		}
		ctx.ResidualNorm = floats.Norm(r, 2)
		d.k++
		if d.k < s {
			d.resume = 2
		} else {
			d.resume = 5
		}
		return EndIteration, nil

	case 5:
		// Dimension reduction step.
		ctx.Src, ctx.Dst = r, d.vt
		d.resume = 6
		return PSolve, nil

	case 6:
		ctx.Src, ctx.Dst = d.vt, d.v
		d.resume = 7
		return MatVec, nil
		// t = A M^{-1} r

	case 7:
		t := d.v
		tt := floats.Dot(t, t)
		if tt == 0 {
			d.resume = 0
			return NoOperation, errors.New("t·t breakdown")
		}
		tr := floats.Dot(t, r)
		d.omega = tr / tt
		// Maintain convergence: limit the angle between t and r.
		const kappa = 0.7
		if rho := math.Abs(tr) / (math.Sqrt(tt) * floats.Norm(r, 2)); rho < kappa && rho > 0 {
			d.omega *= kappa / rho
		}
		if d.omega == 0 {
			d.resume = 0
			return NoOperation, errors.New("omega breakdown")
		}
		floats.AddScaled(ctx.X, d.omega, d.vt)
		floats.AddScaled(r, -d.omega, t)
		ctx.ResidualNorm = floats.Norm(r, 2)
		d.resume = 1
		return EndIteration, nil

	default:
		panic("solver: IDRS.Init not called")
	}
}
