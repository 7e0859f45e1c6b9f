// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// PrecondVariant selects the side on which a preconditioner is applied.
type PrecondVariant int

const (
	// PrecondRight solves A M^{-1} y = b, x = M^{-1} y. The residual
	// tracked is the true residual b - A*x.
	PrecondRight PrecondVariant = iota
	// PrecondLeft solves M^{-1} A x = M^{-1} b. The residual tracked is
	// the preconditioned residual M^{-1}(b - A*x).
	PrecondLeft
)

func (v PrecondVariant) String() string {
	switch v {
	case PrecondRight:
		return "right"
	case PrecondLeft:
		return "left"
	}
	return "unknown"
}

// ParsePrecondVariant returns the variant called name.
func ParsePrecondVariant(name string) (PrecondVariant, error) {
	switch name {
	case "right", "":
		return PrecondRight, nil
	case "left":
		return PrecondLeft, nil
	}
	return 0, fmt.Errorf("unknown preconditioner variant %q", name)
}

// BiCGSTAB implements the BiConjugate Gradient STABilized iterative method with
// preconditioning for solving the system of linear equations
//  Ax = b,
// where A is a non-symmetric matrix. For symmetric positive definite systems
// use PCG.
//
// BiCGSTAB needs MatVec and PSolve operations. With PrecondLeft it also
// commands SetInitialNorm, the stopping criteria then refer to the
// preconditioned residual.
type BiCGSTAB struct {
	Variant PrecondVariant

	first  bool
	resume int

	rho, rhoPrev float64
	alpha        float64
	omega        float64

	rt   []float64
	p    []float64
	v    []float64
	t    []float64
	phat []float64
	s    []float64
	shat []float64
	tmp  []float64
}

// NewBiCGStab returns an Iterative solver running BiCGSTAB with the given
// preconditioning variant.
func NewBiCGStab(a Operator, f Filter, p Solver, v PrecondVariant) *Iterative {
	return NewIterative("BiCGStab", a, f, &BiCGSTAB{Variant: v}, p)
}

func (b *BiCGSTAB) configure(key, value string) (bool, error) {
	if key != "precon_variant" {
		return false, nil
	}
	v, err := ParsePrecondVariant(value)
	b.Variant = v
	return true, err
}

// Init implements the Method interface.
func (b *BiCGSTAB) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}

	b.rt = reuse(b.rt, dim)
	b.p = reuse(b.p, dim)
	b.v = reuse(b.v, dim)
	b.t = reuse(b.t, dim)
	b.phat = reuse(b.phat, dim)
	b.s = reuse(b.s, dim)
	b.shat = reuse(b.shat, dim)
	b.tmp = reuse(b.tmp, dim)
	b.first = true
	b.resume = 1
	if b.Variant == PrecondLeft {
		b.resume = 11
	}
}

// Iterate implements the Method interface.
func (b *BiCGSTAB) Iterate(ctx *Context) (Operation, error) {
	if b.Variant == PrecondLeft {
		return b.iterateLeft(ctx)
	}
	switch b.resume {
	case 1:
		if b.first {
			copy(b.rt, ctx.Residual)
		} else if math.Abs(b.omega) < dlamchE*dlamchE {
			b.resume = 0
			return NoOperation, errors.New("omega breakdown")
		}
		b.rho = floats.Dot(b.rt, ctx.Residual)
		if math.Abs(b.rho) < dlamchE*dlamchE {
			b.resume = 0 // Calling Iterate again without Init will panic.
			return NoOperation, errors.New("rho breakdown")
		}
		b.updateP(ctx.Residual)
		ctx.Src = b.p
		ctx.Dst = b.phat
		b.resume = 2
		return PSolve, nil
		// Solve M p^_i = p_i.

	case 2:
		ctx.Src = b.phat
		ctx.Dst = b.v
		b.resume = 3
		return MatVec, nil
		// Compute Ap^_i -> v_i.

	case 3:
		rtv := floats.Dot(b.rt, b.v)
		if rtv == 0 {
			b.resume = 0
			return NoOperation, errors.New("rt·v breakdown")
		}
		b.alpha = b.rho / rtv
		// Early check for tolerance.
		floats.AddScaled(ctx.Residual, -b.alpha, b.v)
		copy(b.s, ctx.Residual)
		ctx.ResidualNorm = floats.Norm(ctx.Residual, 2)
		b.resume = 4
		return CheckResidualNorm, nil

	case 4:
		if ctx.Converged {
			floats.AddScaled(ctx.X, b.alpha, b.phat)
			b.resume = 0 // Calling Iterate again without Init will panic.
			return EndIteration, nil
		}
		ctx.Src = ctx.Residual
		ctx.Dst = b.shat
		b.resume = 5
		return PSolve, nil
		// Solve M s^_i = r_i.

	case 5:
		ctx.Src = b.shat
		ctx.Dst = b.t
		b.resume = 6
		return MatVec, nil
		// Compute As^_i -> t_i.

	case 6:
		b.omega = b.stabilize()
		floats.AddScaled(ctx.X, b.alpha, b.phat)
		floats.AddScaled(ctx.X, b.omega, b.shat)
		floats.AddScaled(ctx.Residual, -b.omega, b.t)
		ctx.ResidualNorm = floats.Norm(ctx.Residual, 2)
		b.rhoPrev = b.rho
		b.first = false
		b.resume = 1
		return EndIteration, nil

	default:
		panic("solver: BiCGSTAB.Init not called")
	}
}

// iterateLeft runs the left preconditioned variant. Context.Residual holds
// the preconditioned residual after the first step.
func (b *BiCGSTAB) iterateLeft(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch b.resume {
	case 11:
		copy(b.tmp, r)
		ctx.Src = b.tmp
		ctx.Dst = r
		b.resume = 12
		return PSolve, nil
		// r^_0 = M^{-1} r_0

	case 12:
		copy(b.rt, r)
		ctx.ResidualNorm = floats.Norm(r, 2)
		b.resume = 13
		return SetInitialNorm, nil

	case 13:
		if !b.first && math.Abs(b.omega) < dlamchE*dlamchE {
			b.resume = 0
			return NoOperation, errors.New("omega breakdown")
		}
		b.rho = floats.Dot(b.rt, r)
		if math.Abs(b.rho) < dlamchE*dlamchE {
			b.resume = 0
			return NoOperation, errors.New("rho breakdown")
		}
		b.updateP(r)
		ctx.Src = b.p
		ctx.Dst = b.tmp
		b.resume = 14
		return MatVec, nil

	case 14:
		ctx.Src = b.tmp
		ctx.Dst = b.v
		b.resume = 15
		return PSolve, nil
		// v_i = M^{-1} A p_i

	case 15:
		rtv := floats.Dot(b.rt, b.v)
		if rtv == 0 {
			b.resume = 0
			return NoOperation, errors.New("rt·v breakdown")
		}
		b.alpha = b.rho / rtv
		floats.AddScaledTo(b.s, r, -b.alpha, b.v)
		ctx.ResidualNorm = floats.Norm(b.s, 2)
		b.resume = 16
		return CheckResidualNorm, nil

	case 16:
		if ctx.Converged {
			floats.AddScaled(ctx.X, b.alpha, b.p)
			copy(r, b.s)
			b.resume = 0
			return EndIteration, nil
		}
		ctx.Src = b.s
		ctx.Dst = b.tmp
		b.resume = 17
		return MatVec, nil

	case 17:
		ctx.Src = b.tmp
		ctx.Dst = b.t
		b.resume = 18
		return PSolve, nil
		// t_i = M^{-1} A s_i

	case 18:
		b.omega = b.stabilize()
		floats.AddScaled(ctx.X, b.alpha, b.p)
		floats.AddScaled(ctx.X, b.omega, b.s)
		floats.AddScaledTo(r, b.s, -b.omega, b.t)
		ctx.ResidualNorm = floats.Norm(r, 2)
		b.rhoPrev = b.rho
		b.first = false
		b.resume = 13
		return EndIteration, nil

	default:
		panic("solver: BiCGSTAB.Init not called")
	}
}

func (b *BiCGSTAB) updateP(r []float64) {
	if b.first {
		copy(b.p, r)
		return
	}
	beta := (b.rho / b.rhoPrev) * (b.alpha / b.omega)
	floats.AddScaled(b.p, -b.omega, b.v) // p_i -= ω * v_i
	floats.Scale(beta, b.p)              // p_i *= β
	floats.Add(b.p, r)                   // p_i += r_i
}

// stabilize returns ω = (t·s)/(t·t), or 0 if t vanishes.
func (b *BiCGSTAB) stabilize() float64 {
	tt := floats.Dot(b.t, b.t)
	if tt == 0 {
		return 0
	}
	return floats.Dot(b.t, b.s) / tt
}
