// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
)

// GMRES implements the restarted Generalized Minimal RESidual method with
// left preconditioning for solving the system of linear equations
//  Ax = b,
// where A is a general non-singular matrix.
//
// Each Arnoldi step is one iteration. The residual norm reported is the
// estimate of the preconditioned residual norm available from the least
// squares problem; the relative stopping criteria refer to the initial
// preconditioned residual.
//
// GMRES needs MatVec, PSolve, ComputeResidual and SetInitialNorm
// operations.
type GMRES struct {
	// Restart is the restart parameter. If it is not positive, 20 is
	// used. It is capped at the dimension of the system.
	Restart int

	resume  int
	first   bool
	pending bool

	w  []float64
	av []float64

	v   []float64
	ldv int
	hess
}

// NewGMRES returns an Iterative solver running GMRES restarted every
// restart iterations.
func NewGMRES(a Operator, f Filter, p Solver, restart int) *Iterative {
	return NewIterative("GMRES", a, f, &GMRES{Restart: restart}, p)
}

func (g *GMRES) configure(key, value string) (bool, error) {
	if key != "krylov_dim" {
		return false, nil
	}
	n, err := parsePositive(value)
	g.Restart = n
	return true, err
}

// Init implements the Method interface.
func (g *GMRES) Init(dim int) {
	if dim <= 0 {
		panic("solver: invalid dim")
	}
	k := restartDim(g.Restart, dim)
	g.w = reuse(g.w, dim)
	g.av = reuse(g.av, dim)
	g.ldv = dim
	g.v = reuse(g.v, g.ldv*(k+1))
	g.hess.alloc(k)

	g.first = true
	g.pending = false
	g.resume = 1
}

// Iterate implements the Method interface.
func (g *GMRES) Iterate(ctx *Context) (Operation, error) {
	n := len(ctx.X)
	ldv := g.ldv
	switch g.resume {
	case 1:
		// Construct the first column of V.
		ctx.Src = ctx.Residual
		ctx.Dst = g.v[:n]
		g.resume = 2
		return PSolve, nil
		// Solve M V[:,0] = r.

	case 2:
		rnorm := floats.Norm(g.v[:n], 2)
		ctx.ResidualNorm = rnorm
		if g.first {
			g.first = false
			g.resume = 3
			return SetInitialNorm, nil
		}
		fallthrough

	case 3:
		rnorm := ctx.ResidualNorm
		if rnorm == 0 {
			// The preconditioned residual vanished, x is exact.
			ctx.Converged = true
			g.resume = 0
			return EndIteration, nil
		}
		floats.Scale(1/rnorm, g.v[:n])
		g.hess.reset(rnorm)
		g.pending = true
		fallthrough

	case 4:
		i := g.k
		ctx.Src = g.v[i*ldv : i*ldv+n]
		ctx.Dst = g.av
		g.resume = 5
		return MatVec, nil
		// Compute A V[:,i].

	case 5:
		ctx.Src = g.av
		ctx.Dst = g.w
		g.resume = 6
		return PSolve, nil
		// Solve M w = A V[:,i].

	case 6:
		i := g.k
		wnorm := g.hess.orthogonalize(g.w, func(j int) []float64 { return g.v[j*ldv : j*ldv+n] })
		vip1 := g.v[(i+1)*ldv : (i+1)*ldv+n]
		copy(vip1, g.w)
		if wnorm != 0 {
			floats.Scale(1/wnorm, vip1)
		}
		ctx.ResidualNorm = g.hess.rotate()
		g.resume = 7
		return CheckResidualNorm, nil

	case 7:
		if ctx.Converged {
			// Compute final approximate solution x and finish.
			g.finish(ctx)
			g.resume = 0
			return EndIteration, nil
		}
		if g.k == g.m {
			g.finish(ctx)
			g.resume = 8
			return ComputeResidual, nil
		}
		g.resume = 4
		return EndIteration, nil

	case 8:
		g.resume = 1
		return EndIteration, nil

	default:
		panic("solver: GMRES.Init not called")
	}
}

// finish adds the Krylov correction of the current cycle to x.
func (g *GMRES) finish(ctx *Context) {
	if !g.pending {
		return
	}
	g.pending = false
	n := len(ctx.X)
	for j, yj := range g.hess.solve() {
		floats.AddScaled(ctx.X, yj, g.v[j*g.ldv:j*g.ldv+n])
	}
}

// FGMRES implements the restarted flexible GMRES method with right
// preconditioning. The preconditioned basis vectors are stored, which
// allows the preconditioner to change between iterations, e.g. when it is
// itself an iterative solver. The residual norm reported is the estimate
// of the true residual norm.
//
// FGMRES needs MatVec, PSolve and ComputeResidual operations.
type FGMRES struct {
	// Restart is the restart parameter. If it is not positive, 20 is
	// used. It is capped at the dimension of the system.
	Restart int

	resume  int
	pending bool

	w []float64

	v, z []float64
	ldv  int
	hess
}

// NewFGMRES returns an Iterative solver running FGMRES restarted every
// restart iterations.
func NewFGMRES(a Operator, f Filter, p Solver, restart int) *Iterative {
	return NewIterative("FGMRES", a, f, &FGMRES{Restart: restart}, p)
}

func (g *FGMRES) configure(key, value string) (bool, error) {
	if key != "krylov_dim" {
		return false, nil
	}
	n, err := parsePositive(value)
	g.Restart = n
	return true, err
}

// Init implements the Method interface.
func (g *FGMRES) Init(dim int) {
	if dim <= 0 {
		panic("solver: invalid dim")
	}
	k := restartDim(g.Restart, dim)
	g.w = reuse(g.w, dim)
	g.ldv = dim
	g.v = reuse(g.v, g.ldv*(k+1))
	g.z = reuse(g.z, g.ldv*k)
	g.hess.alloc(k)
	g.pending = false
	g.resume = 1
}

// Iterate implements the Method interface.
func (g *FGMRES) Iterate(ctx *Context) (Operation, error) {
	n := len(ctx.X)
	ldv := g.ldv
	switch g.resume {
	case 1:
		rnorm := floats.Norm(ctx.Residual, 2)
		if rnorm == 0 {
			ctx.ResidualNorm = 0
			ctx.Converged = true
			g.resume = 0
			return EndIteration, nil
		}
		floats.ScaleTo(g.v[:n], 1/rnorm, ctx.Residual)
		g.hess.reset(rnorm)
		g.pending = true
		fallthrough

	case 2:
		i := g.k
		ctx.Src = g.v[i*ldv : i*ldv+n]
		ctx.Dst = g.z[i*ldv : i*ldv+n]
		g.resume = 3
		return PSolve, nil
		// Solve M Z[:,i] = V[:,i].

	case 3:
		i := g.k
		ctx.Src = g.z[i*ldv : i*ldv+n]
		ctx.Dst = g.w
		g.resume = 4
		return MatVec, nil
		// w = A Z[:,i]

	case 4:
		i := g.k
		wnorm := g.hess.orthogonalize(g.w, func(j int) []float64 { return g.v[j*ldv : j*ldv+n] })
		vip1 := g.v[(i+1)*ldv : (i+1)*ldv+n]
		copy(vip1, g.w)
		if wnorm != 0 {
			floats.Scale(1/wnorm, vip1)
		}
		ctx.ResidualNorm = g.hess.rotate()
		g.resume = 5
		return CheckResidualNorm, nil

	case 5:
		if ctx.Converged {
			g.finish(ctx)
			g.resume = 0
			return EndIteration, nil
		}
		if g.k == g.m {
			g.finish(ctx)
			g.resume = 6
			return ComputeResidual, nil
		}
		g.resume = 2
		return EndIteration, nil

	case 6:
		g.resume = 1
		return EndIteration, nil

	default:
		panic("solver: FGMRES.Init not called")
	}
}

func (g *FGMRES) finish(ctx *Context) {
	if !g.pending {
		return
	}
	g.pending = false
	n := len(ctx.X)
	for j, yj := range g.hess.solve() {
		floats.AddScaled(ctx.X, yj, g.z[j*g.ldv:j*g.ldv+n])
	}
}

func restartDim(restart, dim int) int {
	if restart <= 0 {
		restart = 20
	}
	return min(restart, dim)
}

// hess is the Hessenberg least squares problem of a GMRES cycle, reduced
// to upper triangular form by Givens rotations as the columns are added.
type hess struct {
	m int // Maximum number of columns.
	k int // Number of columns added.

	s    []float64
	y    []float64
	h    []float64
	ldh  int
	givs []givens
}

func (h *hess) alloc(m int) {
	h.m = m
	h.k = 0
	h.s = reuse(h.s, m+1)
	h.y = reuse(h.y, m)
	h.ldh = m + 1
	h.h = reuse(h.h, h.ldh*m)
	if cap(h.givs) < m {
		h.givs = make([]givens, m)
	} else {
		h.givs = h.givs[:m]
	}
}

// reset starts a new cycle with the residual norm beta.
func (h *hess) reset(beta float64) {
	h.k = 0
	zero(h.s)
	// Initialize s to the elementary vector e_1 scaled by beta.
	h.s[0] = beta
}

// orthogonalize constructs the next column of the upper Hessenberg matrix
// using the modified Gram-Schmidt process on w against the current basis
// and returns the norm of the orthogonalized w.
func (h *hess) orthogonalize(w []float64, basis func(j int) []float64) float64 {
	i := h.k
	for j := 0; j <= i; j++ {
		vj := basis(j)
		hji := floats.Dot(vj, w)
		h.h[j+i*h.ldh] = hji
		floats.AddScaled(w, -hji, vj)
	}
	wnorm := floats.Norm(w, 2)
	h.h[i+1+i*h.ldh] = wnorm // H[i+1,i] = |w|
	return wnorm
}

// rotate reduces the last column to upper triangular form, applies the new
// rotation to s and returns the residual norm estimate.
func (h *hess) rotate() float64 {
	i := h.k
	hi := h.h[i*h.ldh : i*h.ldh+h.m+1]

	// Apply (i-1) Givens rotation matrices to the i-th
	// column of H.
	for j := 0; j < i; j++ {
		hi[j], hi[j+1] = rotvec(hi[j], hi[j+1], h.givs[j])
	}
	// Compute the (i+1)st Givens rotation that zeroes H[i+1,i].
	h.givs[i] = drotg(hi[i], hi[i+1])
	// Apply the (i+1)st Givens rotation.
	hi[i], hi[i+1] = rotvec(hi[i], hi[i+1], h.givs[i])

	// Apply the (i+1)st Givens rotation to (s[i], s[i+1]).
	h.s[i], h.s[i+1] = rotvec(h.s[i], h.s[i+1], h.givs[i])
	h.k++
	return math.Abs(h.s[i+1])
}

// solve returns the coefficients y of the minimizer in the current basis.
func (h *hess) solve() []float64 {
	k := h.k
	y := h.y[:k]
	if k == 0 {
		return y
	}
	copy(y, h.s[:k])
	// Solve H*y = s for upper triangular H.
	// H is upper triangular but stored in column-major order while Dtrsv
	// expects row-major.
	bi := blas64.Implementation()
	bi.Dtrsv(blas.Lower, blas.Trans, blas.NonUnit, k, h.h, h.ldh, y, 1)
	return y
}

type givens struct {
	c, s float64
}

func drotg(a, b float64) givens {
	if b == 0 {
		return givens{c: 1, s: 0}
	}
	if math.Abs(b) > math.Abs(a) {
		tmp := -a / b
		s := 1 / math.Sqrt(1+tmp*tmp)
		return givens{c: tmp * s, s: s}
	}
	tmp := -b / a
	c := 1 / math.Sqrt(1+tmp*tmp)
	return givens{c: c, s: tmp * c}
}

func rotvec(x, y float64, g givens) (rx, ry float64) {
	rx = g.c*x - g.s*y
	ry = g.s*x + g.c*y
	return
}
