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

// Shadow selects the initial shadow residual of the bi-Lanczos methods.
type Shadow int

const (
	// ShadowResidual starts the shadow sequence from the initial residual.
	ShadowResidual Shadow = iota
	// ShadowRandom starts it from a pseudo-random unit vector.
	ShadowRandom
)

var shadowNames = [...]string{
	ShadowResidual: "residual",
	ShadowRandom:   "random",
}

func (s Shadow) String() string {
	if s < 0 || int(s) >= len(shadowNames) {
		return fmt.Sprintf("Shadow(%d)", int(s))
	}
	return shadowNames[s]
}

// ParseShadow returns the Shadow named s.
func ParseShadow(s string) (Shadow, error) {
	for v, name := range shadowNames {
		if name == s {
			return Shadow(v), nil
		}
	}
	return 0, fmt.Errorf("unknown shadow residual %q", s)
}

// BiCG implements the preconditioned biconjugate gradient method for
// non-symmetric systems. It runs the recurrences of PCG on A and, coupled
// with them, on A^T for a shadow residual. For symmetric positive definite
// systems use PCG.
//
// The preconditioner is assumed to be symmetric; it is applied to both the
// residual and the shadow residual.
//
// BiCG needs MatVec, MatTransVec and PSolve operations.
type BiCG struct {
	// Shadow is the initial shadow residual.
	Shadow Shadow
	// Seed seeds the random shadow residual.
	Seed uint64

	first  bool
	resume int
	rho    float64

	rt, z, zt, p, pt, q, qt []float64
}

// NewBiCG returns an Iterative solver running BiCG.
func NewBiCG(a Operator, f Filter, p Solver) *Iterative {
	return NewIterative("BiCG", a, f, &BiCG{Seed: 1}, p)
}

func (*BiCG) needsTranspose() bool { return true }

func (b *BiCG) configure(key, value string) (bool, error) {
	if key != "shadow" {
		return false, nil
	}
	var err error
	b.Shadow, err = ParseShadow(value)
	return true, err
}

// Init implements the Method interface.
func (b *BiCG) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	for _, v := range []*[]float64{&b.rt, &b.z, &b.zt, &b.p, &b.pt, &b.q, &b.qt} {
		*v = reuse(*v, dim)
	}
	b.first = true
	b.resume = 1
}

// Iterate implements the Method interface.
func (b *BiCG) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch b.resume {
	case 1:
		if b.first {
			if b.Shadow == ShadowRandom {
				copy(b.rt, shadowSpace(1, len(r), b.Seed)[0])
			} else {
				copy(b.rt, r)
			}
		}
		ctx.Src, ctx.Dst = r, b.z
		b.resume = 2
		return PSolve, nil

	case 2:
		ctx.Src, ctx.Dst = b.rt, b.zt
		b.resume = 3
		return PSolve, nil

	case 3:
		rho := floats.Dot(b.z, b.rt)
		if math.Abs(rho) < dlamchE*dlamchE {
			b.resume = 0
			return NoOperation, errors.New("rho breakdown")
		}
		if b.first {
			copy(b.p, b.z)
			copy(b.pt, b.zt)
		} else {
			beta := rho / b.rho
			floats.AddScaledTo(b.p, b.z, beta, b.p)
			floats.AddScaledTo(b.pt, b.zt, beta, b.pt)
		}
		b.rho = rho
		b.first = false
		ctx.Src, ctx.Dst = b.p, b.q
		b.resume = 4
		return MatVec, nil

	case 4:
		ctx.Src, ctx.Dst = b.pt, b.qt
		b.resume = 5
		return MatTransVec, nil

	case 5:
		ptq := floats.Dot(b.pt, b.q)
		if ptq == 0 {
			b.resume = 0
			return NoOperation, errors.New("pt·q breakdown")
		}
		alpha := b.rho / ptq
		floats.AddScaled(ctx.X, alpha, b.p)
		floats.AddScaled(r, -alpha, b.q)
		floats.AddScaled(b.rt, -alpha, b.qt)
		ctx.ResidualNorm = floats.Norm(r, 2)
		b.resume = 1
		return EndIteration, nil

	default:
		panic("solver: BiCG.Init not called")
	}
}
