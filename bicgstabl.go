// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// BiCGSTABL implements the BiCGStab(ℓ) method of Sleijpen and Fokkema with
// right preconditioning. Each iteration performs ℓ BiCG steps followed by a
// minimal residual polynomial of degree ℓ, which improves the convergence
// over BiCGSTAB for matrices with complex eigenvalues.
//
// One iteration of BiCGSTABL is one outer cycle with 2ℓ operator and 2ℓ+1
// preconditioner applications. The residual norm reported is the norm of
// the true residual.
//
// BiCGSTABL needs MatVec and PSolve operations.
type BiCGSTABL struct {
	// L is the degree ℓ of the minimal residual polynomial. If it is not
	// positive, 2 is used.
	L int

	first  bool
	resume int
	l, j   int

	rho0, alpha, omega float64

	rt  []float64
	r   [][]float64 // r̂_0, ..., r̂_ℓ
	u   [][]float64 // û_0, ..., û_ℓ
	xt  []float64   // Update of the preconditioned unknown in this cycle.
	tmp []float64

	tau        [][]float64
	sigma      []float64
	g, gp, gpp []float64
}

// NewBiCGStabL returns an Iterative solver running BiCGSTABL of degree l.
func NewBiCGStabL(a Operator, f Filter, p Solver, l int) *Iterative {
	return NewIterative("BiCGStabL", a, f, &BiCGSTABL{L: l}, p)
}

func (b *BiCGSTABL) configure(key, value string) (bool, error) {
	if key != "l" {
		return false, nil
	}
	n, err := parsePositive(value)
	b.L = n
	return true, err
}

// Init implements the Method interface.
func (b *BiCGSTABL) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	l := b.L
	if l <= 0 {
		l = 2
	}
	b.l = l
	b.rt = reuse(b.rt, dim)
	b.xt = reuse(b.xt, dim)
	b.tmp = reuse(b.tmp, dim)
	b.r = reuseVecs(b.r, l+1, dim)
	b.u = reuseVecs(b.u, l+1, dim)
	b.tau = reuseVecs(b.tau, l+1, l+1)
	b.sigma = reuse(b.sigma, l+1)
	b.g = reuse(b.g, l+1)
	b.gp = reuse(b.gp, l+1)
	b.gpp = reuse(b.gpp, l+1)
	b.first = true
	b.resume = 1
}

// Iterate implements the Method interface.
func (b *BiCGSTABL) Iterate(ctx *Context) (Operation, error) {
	switch b.resume {
	case 1:
		if b.first {
			copy(b.r[0], ctx.Residual)
			copy(b.rt, ctx.Residual)
			zero(b.u[0])
			b.rho0, b.alpha, b.omega = 1, 0, 1
			b.first = false
		}
		zero(b.xt)
		b.rho0 *= -b.omega
		b.j = 0
		fallthrough

	case 2:
		// BiCG part.
		j := b.j
		rho1 := floats.Dot(b.r[j], b.rt)
		if math.Abs(b.rho0) < dlamchE*dlamchE {
			b.resume = 0
			return NoOperation, errors.New("rho breakdown")
		}
		beta := b.alpha * rho1 / b.rho0
		b.rho0 = rho1
		for i := 0; i <= j; i++ {
			floats.AddScaledTo(b.u[i], b.r[i], -beta, b.u[i])
		}
		ctx.Src, ctx.Dst = b.u[j], b.tmp
		b.resume = 3
		return PSolve, nil

	case 3:
		ctx.Src, ctx.Dst = b.tmp, b.u[b.j+1]
		b.resume = 4
		return MatVec, nil
		// û_{j+1} = A M^{-1} û_j

	case 4:
		j := b.j
		gamma := floats.Dot(b.u[j+1], b.rt)
		if gamma == 0 {
			b.resume = 0
			return NoOperation, errors.New("gamma breakdown")
		}
		b.alpha = b.rho0 / gamma
		for i := 0; i <= j; i++ {
			floats.AddScaled(b.r[i], -b.alpha, b.u[i+1])
		}
		ctx.ResidualNorm = floats.Norm(b.r[0], 2)
		b.resume = 8
		return CheckResidualNorm, nil

	case 8:
		if ctx.Converged {
			// Leave the cycle early with x updated by the BiCG part.
			floats.AddScaled(b.xt, b.alpha, b.u[0])
			ctx.Src, ctx.Dst = b.xt, b.tmp
			b.resume = 7
			return PSolve, nil
		}
		ctx.Src, ctx.Dst = b.r[b.j], b.tmp
		b.resume = 5
		return PSolve, nil

	case 5:
		ctx.Src, ctx.Dst = b.tmp, b.r[b.j+1]
		b.resume = 6
		return MatVec, nil
		// r̂_{j+1} = A M^{-1} r̂_j

	case 6:
		floats.AddScaled(b.xt, b.alpha, b.u[0])
		b.j++
		if b.j < b.l {
			b.resume = 2
			return NoOperation, nil
		}
		if err := b.minimize(); err != nil {
			b.resume = 0
			return NoOperation, err
		}
		ctx.Src, ctx.Dst = b.xt, b.tmp
		b.resume = 7
		return PSolve, nil

	case 7:
		floats.Add(ctx.X, b.tmp)
		copy(ctx.Residual, b.r[0])
		ctx.ResidualNorm = floats.Norm(b.r[0], 2)
		b.resume = 1
		return EndIteration, nil

	default:
		panic("solver: BiCGSTABL.Init not called")
	}
}

// minimize performs the minimal residual part of a cycle.
func (b *BiCGSTABL) minimize() error {
	l := b.l
	r, u, tau := b.r, b.u, b.tau
	for j := 1; j <= l; j++ {
		for i := 1; i < j; i++ {
			tau[i][j] = floats.Dot(r[j], r[i]) / b.sigma[i]
			floats.AddScaled(r[j], -tau[i][j], r[i])
		}
		b.sigma[j] = floats.Dot(r[j], r[j])
		if b.sigma[j] == 0 {
			return errors.New("sigma breakdown")
		}
		b.gp[j] = floats.Dot(r[0], r[j]) / b.sigma[j]
	}

	b.g[l] = b.gp[l]
	b.omega = b.g[l]
	for j := l - 1; j >= 1; j-- {
		sum := 0.0
		for i := j + 1; i <= l; i++ {
			sum += tau[j][i] * b.g[i]
		}
		b.g[j] = b.gp[j] - sum
	}
	for j := 1; j < l; j++ {
		sum := 0.0
		for i := j + 1; i < l; i++ {
			sum += tau[j][i] * b.g[i+1]
		}
		b.gpp[j] = b.g[j+1] + sum
	}

	floats.AddScaled(b.xt, b.g[1], r[0])
	floats.AddScaled(r[0], -b.gp[l], r[l])
	floats.AddScaled(u[0], -b.g[l], u[l])
	for j := 1; j < l; j++ {
		floats.AddScaled(u[0], -b.g[j], u[j])
		floats.AddScaled(b.xt, b.gpp[j], r[j])
		floats.AddScaled(r[0], -b.gp[j], r[j])
	}
	return nil
}

func reuseVecs(v [][]float64, m, n int) [][]float64 {
	if cap(v) < m {
		v = append(v[:cap(v)], make([][]float64, m-cap(v))...)
	}
	v = v[:m]
	for i := range v {
		v[i] = reuse(v[i], n)
	}
	return v
}
