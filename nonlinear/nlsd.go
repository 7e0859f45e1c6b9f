// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nonlinear

import (
	"errors"

	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver"
)

// NLSD is the preconditioned nonlinear steepest descent method. Each
// iteration searches along the preconditioned defect.
type NLSD struct {
	driver

	Linesearch Linesearch
}

// NewNLSD returns a nonlinear steepest descent solver for op using the
// line search ls. The filter f and the preconditioner p may be nil.
func NewNLSD(op Operator, f solver.Filter, p solver.Solver, ls Linesearch) *NLSD {
	if ls == nil {
		panic("nonlinear: nil line search")
	}
	s := &NLSD{Linesearch: ls}
	s.driver = newDriver("NLSD", op, f, p, s)
	return s
}

// SetListener sets the listener of the solver and its line search.
func (s *NLSD) SetListener(l solver.Listener) {
	s.Listener = l
	s.Linesearch.SetListener(l)
}

func (s *NLSD) configure(string, string) (bool, error) { return false, nil }

func (s *NLSD) start() {}

func (s *NLSD) step() error {
	if err := s.search(s.Linesearch, s.p); err != nil {
		return err
	}
	return s.precondition()
}

// PSD is the preconditioned steepest descent method with the step length
// α = (r·p)/(p·H*p), where H is the Hessian of the operator at the
// current iterate. For quadratic functionals this is the exact
// minimizer along p.
type PSD struct {
	driver

	hp []float64
}

// NewPSD returns a preconditioned steepest descent solver for op. The
// filter f and the preconditioner p may be nil.
func NewPSD(op Operator, f solver.Filter, p solver.Solver) *PSD {
	s := &PSD{}
	s.driver = newDriver("PSD", op, f, p, s)
	return s
}

// SetListener sets the listener of the solver.
func (s *PSD) SetListener(l solver.Listener) { s.Listener = l }

func (s *PSD) configure(string, string) (bool, error) { return false, nil }

func (s *PSD) start() {
	if len(s.hp) != len(s.x) {
		s.hp = make([]float64, len(s.x))
	}
}

func (s *PSD) step() error {
	s.Op.HessVec(s.hp, s.x, s.p)
	curv := floats.Dot(s.p, s.hp)
	if !(curv > 0) {
		return errors.New("nonpositive curvature")
	}
	alpha := floats.Dot(s.r, s.p) / curv
	floats.AddScaled(s.x, alpha, s.p)
	s.defect()
	return s.precondition()
}
