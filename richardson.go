// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// Richardson implements the damped preconditioned Richardson iteration
//  x_{k+1} = x_k + ω M^{-1} (b - A x_k).
// With a Jacobi preconditioner and a fixed number of iterations it is the
// classic damped Jacobi smoother.
//
// Richardson needs PSolve and ComputeResidual operations.
type Richardson struct {
	// Omega is the damping parameter ω.
	Omega float64

	resume int

	z []float64
}

// NewRichardson returns an Iterative solver running Richardson with
// damping omega.
func NewRichardson(a Operator, f Filter, p Solver, omega float64) *Iterative {
	return NewIterative("Richardson", a, f, &Richardson{Omega: omega}, p)
}

func (ri *Richardson) configure(key, value string) (bool, error) {
	if key != "omega" {
		return false, nil
	}
	var err error
	ri.Omega, err = strconv.ParseFloat(value, 64)
	return true, err
}

// Init implements the Method interface.
func (ri *Richardson) Init(dim int) {
	if dim <= 0 {
		panic("solver: dimension not positive")
	}
	ri.z = reuse(ri.z, dim)
	ri.resume = 1
}

// Iterate implements the Method interface.
func (ri *Richardson) Iterate(ctx *Context) (Operation, error) {
	switch ri.resume {
	case 1:
		ctx.Src, ctx.Dst = ctx.Residual, ri.z
		ri.resume = 2
		return PSolve, nil

	case 2:
		floats.AddScaled(ctx.X, ri.Omega, ri.z)
		ri.resume = 3
		return ComputeResidual, nil

	case 3:
		ctx.ResidualNorm = floats.Norm(ctx.Residual, 2)
		ri.resume = 1
		return EndIteration, nil

	default:
		panic("solver: Richardson.Init not called")
	}
}
