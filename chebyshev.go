// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// Chebyshev implements the preconditioned Chebyshev iteration. It needs an
// interval [MinEV, MaxEV] containing the spectrum of M^{-1}A that is to be
// damped. If MaxEV is zero, the largest eigenvalue λ of M^{-1}A is
// estimated by PowerIter steps of the power method the first time the
// method runs after the operator was initialized, and the interval is set
// to [MinFraction·λ, MaxFraction·λ].
//
// The defaults damp the upper part of the spectrum, which makes Chebyshev
// a smoother. To use it as a solver set MinFraction close to the ratio of
// the smallest to the largest eigenvalue.
//
// Chebyshev needs MatVec and PSolve operations.
type Chebyshev struct {
	MinEV, MaxEV float64

	MinFraction float64
	MaxFraction float64
	PowerIter   int

	resume int
	lmin   float64
	lmax   float64
	theta  float64
	delta  float64
	sigma  float64
	rho    float64
	power  int
	lambda float64

	z, d, ad []float64
	v, w     []float64
}

// NewChebyshev returns an Iterative solver running Chebyshev with the
// eigenvalue interval estimated by the power method.
func NewChebyshev(a Operator, f Filter, p Solver) *Iterative {
	return NewIterative("Chebyshev", a, f, &Chebyshev{
		MinFraction: 0.3,
		MaxFraction: 1.1,
		PowerIter:   20,
	}, p)
}

func (c *Chebyshev) configure(key, value string) (bool, error) {
	var err error
	switch key {
	case "fraction_min_ev":
		c.MinFraction, err = strconv.ParseFloat(value, 64)
	case "fraction_max_ev":
		c.MaxFraction, err = strconv.ParseFloat(value, 64)
	case "min_ev":
		c.MinEV, err = strconv.ParseFloat(value, 64)
	case "max_ev":
		c.MaxEV, err = strconv.ParseFloat(value, 64)
	case "power_iter":
		c.PowerIter, err = parsePositive(value)
	default:
		return false, nil
	}
	return true, err
}

func (c *Chebyshev) resetNumeric() {
	c.lambda = 0
}

// Init implements the Method interface.
func (c *Chebyshev) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	c.z = reuse(c.z, dim)
	c.d = reuse(c.d, dim)
	c.ad = reuse(c.ad, dim)
	c.v = reuse(c.v, dim)
	c.w = reuse(c.w, dim)
	switch {
	case c.MaxEV != 0:
		c.resume = 20
	case c.lambda != 0:
		c.resume = 20
	default:
		c.resume = 10
	}
}

// Iterate implements the Method interface.
func (c *Chebyshev) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch c.resume {
	case 10:
		// Power method for the largest eigenvalue of M^{-1}A.
		rnd := rand.New(rand.NewPCG(1, 1))
		for i := range c.v {
			c.v[i] = rnd.Float64() + 0.5
		}
		floats.Scale(1/floats.Norm(c.v, 2), c.v)
		c.power = 0
		fallthrough

	case 11:
		ctx.Src, ctx.Dst = c.v, c.w
		c.resume = 12
		return MatVec, nil

	case 12:
		ctx.Src, ctx.Dst = c.w, c.z
		c.resume = 13
		return PSolve, nil

	case 13:
		c.lambda = floats.Dot(c.v, c.z)
		nz := floats.Norm(c.z, 2)
		c.power++
		if nz == 0 || c.power >= max(c.PowerIter, 1) {
			c.resume = 20
			return NoOperation, nil
		}
		floats.ScaleTo(c.v, 1/nz, c.z)
		c.resume = 11
		return NoOperation, nil

	case 20:
		if err := c.interval(); err != nil {
			c.resume = 0
			return NoOperation, err
		}
		c.theta = (c.lmax + c.lmin) / 2
		c.delta = (c.lmax - c.lmin) / 2
		c.sigma = c.theta / c.delta
		c.rho = 1 / c.sigma
		ctx.Src, ctx.Dst = r, c.z
		c.resume = 21
		return PSolve, nil

	case 21:
		floats.ScaleTo(c.d, 1/c.theta, c.z)
		fallthrough

	case 22:
		floats.Add(ctx.X, c.d)
		ctx.Src, ctx.Dst = c.d, c.ad
		c.resume = 23
		return MatVec, nil

	case 23:
		floats.Sub(r, c.ad)
		ctx.ResidualNorm = floats.Norm(r, 2)
		c.resume = 24
		return EndIteration, nil

	case 24:
		ctx.Src, ctx.Dst = r, c.z
		c.resume = 25
		return PSolve, nil

	case 25:
		rho := 1 / (2*c.sigma - c.rho)
		floats.Scale(rho*c.rho, c.d)
		floats.AddScaled(c.d, 2*rho/c.delta, c.z)
		c.rho = rho
		c.resume = 22
		return NoOperation, nil

	default:
		panic("solver: Chebyshev.Init not called")
	}
}

func (c *Chebyshev) interval() error {
	if c.MaxEV != 0 {
		c.lmin, c.lmax = c.MinEV, c.MaxEV
	} else {
		if !(c.lambda > 0) || math.IsInf(c.lambda, 0) {
			return errors.New("eigenvalue estimate not positive")
		}
		c.lmin, c.lmax = c.MinFraction*c.lambda, c.MaxFraction*c.lambda
	}
	if !(c.lmin >= 0 && c.lmin < c.lmax) {
		return errors.New("invalid eigenvalue interval")
	}
	return nil
}
