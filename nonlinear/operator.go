// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nonlinear implements nonlinear conjugate gradient and steepest
// descent solvers together with the line searches they use.
//
// The solvers find a stationary point of F(x) - b·x, that is they solve
// the nonlinear system ∇F(x) = b. For F(x) = ½xᵀAx they solve the linear
// system A*x = b and can be used wherever a solver.Solver is expected.
package nonlinear

import (
	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver"
)

// Operator is a twice differentiable functional F.
type Operator interface {
	// Dim returns the dimension of the domain of F.
	Dim() int

	// Value returns F(x).
	Value(x []float64) float64

	// Gradient computes dst = ∇F(x).
	Gradient(dst, x []float64)

	// HessVec computes dst = ∇²F(x)*v.
	HessVec(dst, x, v []float64)
}

// objective is F(x) - b·x for an Operator F.
type objective struct {
	Operator
	b []float64
}

func (o *objective) Value(x []float64) float64 {
	return o.Operator.Value(x) - floats.Dot(o.b, x)
}

func (o *objective) Gradient(dst, x []float64) {
	o.Operator.Gradient(dst, x)
	floats.Sub(dst, o.b)
}

// Quadratic is the functional F(x) = ½xᵀAx for a symmetric operator A.
// Solving ∇F(x) = b with it is solving the linear system A*x = b.
type Quadratic struct {
	A solver.Operator

	ax []float64
}

// Dim implements the Operator interface.
func (q *Quadratic) Dim() int {
	n, _ := q.A.Dims()
	return n
}

// Value implements the Operator interface.
func (q *Quadratic) Value(x []float64) float64 {
	if len(q.ax) != len(x) {
		q.ax = make([]float64, len(x))
	}
	q.A.MulVecTo(q.ax, x)
	return floats.Dot(x, q.ax) / 2
}

// Gradient implements the Operator interface.
func (q *Quadratic) Gradient(dst, x []float64) { q.A.MulVecTo(dst, x) }

// HessVec implements the Operator interface.
func (q *Quadratic) HessVec(dst, _, v []float64) { q.A.MulVecTo(dst, v) }
