// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package multigrid

import (
	"fmt"

	"github.com/vladimir-ch/solver"
)

// Level is one level of a multigrid hierarchy.
type Level struct {
	// A is the system operator of the level.
	A solver.Operator
	// Filter is applied to the defects and corrections of the level. It
	// may be nil.
	Filter solver.Filter

	// P prolongates from the next coarser level to this one and R
	// restricts from this level to the next coarser one. Both are nil on
	// the coarsest level. If R is nil and P is a solver.TransOperator, the
	// transpose of P is used.
	P, R solver.Operator

	PreSmoother  solver.Solver
	PostSmoother solver.Solver
	// PreSteps and PostSteps are the number of smoothing steps before
	// and after the coarse grid correction.
	PreSteps  int
	PostSteps int

	n int
	// def is the defect the level is visited with and cor the correction
	// computed for it.
	def, cor []float64
	res, tmp []float64
	ac       []float64
	// rhs is the restricted defect and acc the accumulated correction of
	// all visits within one cycle of the finer level.
	rhs, acc []float64

	restrict solver.Operator
	version  uint64
	versions bool

	timings Timings
}

// NewLevel returns a level with the operator a, filter f, transfer
// operators p and r and smoother used for both pre- and post-smoothing
// with one step each.
func NewLevel(a solver.Operator, f solver.Filter, p, r solver.Operator, smoother solver.Solver) *Level {
	return &Level{
		A:            a,
		Filter:       f,
		P:            p,
		R:            r,
		PreSmoother:  smoother,
		PostSmoother: smoother,
		PreSteps:     1,
		PostSteps:    1,
	}
}

// Hierarchy is an ordered sequence of levels, the finest at index 0, and
// the solver of the coarsest level.
type Hierarchy struct {
	Levels []*Level
	// Coarse solves the system of the coarsest level. If it is nil, the
	// pre-smoother of the coarsest level is used instead.
	Coarse solver.Solver
}

// NewHierarchy returns a hierarchy of the given levels, finest first.
func NewHierarchy(coarse solver.Solver, levels ...*Level) *Hierarchy {
	return &Hierarchy{Levels: levels, Coarse: coarse}
}

// Size returns the number of levels.
func (h *Hierarchy) Size() int { return len(h.Levels) }

// solvers returns the distinct inner solvers of the hierarchy.
func (h *Hierarchy) solvers() []solver.Solver {
	var ss []solver.Solver
	seen := make(map[solver.Solver]bool)
	add := func(s solver.Solver) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true
		ss = append(ss, s)
	}
	for _, lv := range h.Levels {
		add(lv.PreSmoother)
		add(lv.PostSmoother)
	}
	add(h.Coarse)
	return ss
}

// validate checks the level count and the dimensions of the level and
// transfer operators.
func (h *Hierarchy) validate(name string) error {
	structure := func(format string, args ...interface{}) error {
		return &solver.InvalidMatrixStructureError{Solver: name, Reason: fmt.Sprintf(format, args...)}
	}
	if len(h.Levels) == 0 {
		return structure("hierarchy has no levels")
	}
	for k, lv := range h.Levels {
		if lv == nil || lv.A == nil {
			return structure("level %d has no operator", k)
		}
		r, c := lv.A.Dims()
		if r != c {
			return structure("operator of level %d is %d×%d", k, r, c)
		}
		lv.n = r
	}
	last := len(h.Levels) - 1
	for k, lv := range h.Levels[:last] {
		nf, nc := lv.n, h.Levels[k+1].n
		if lv.P == nil {
			return structure("level %d has no prolongation", k)
		}
		if r, c := lv.P.Dims(); r != nf || c != nc {
			return structure("prolongation of level %d is %d×%d, want %d×%d", k, r, c, nf, nc)
		}
		lv.restrict = lv.R
		if lv.restrict == nil {
			pt, ok := lv.P.(solver.TransOperator)
			if !ok {
				return structure("level %d has no restriction", k)
			}
			lv.restrict = transpose{pt}
		}
		if r, c := lv.restrict.Dims(); r != nc || c != nf {
			return structure("restriction of level %d is %d×%d, want %d×%d", k, r, c, nc, nf)
		}
	}
	if h.Coarse == nil && h.Levels[last].PreSmoother == nil {
		return &solver.ConfigError{Section: name, Key: "coarse", Reason: "no coarse solver and no smoother on the coarsest level"}
	}
	return nil
}

func (lv *Level) alloc() {
	if lv.Filter == nil {
		lv.Filter = solver.NoFilter{}
	}
	for _, v := range []*[]float64{&lv.def, &lv.cor, &lv.res, &lv.tmp, &lv.ac, &lv.rhs, &lv.acc} {
		if cap(*v) < lv.n {
			*v = make([]float64, lv.n)
		}
		*v = (*v)[:lv.n]
	}
}

// transpose applies the transpose of an operator.
type transpose struct {
	solver.TransOperator
}

func (t transpose) Dims() (r, c int) {
	c, r = t.TransOperator.Dims()
	return r, c
}

func (t transpose) MulVecTo(dst, x []float64) { t.MulTransVecTo(dst, x) }
