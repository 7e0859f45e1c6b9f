// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver/sparse"
)

// UzawaType selects the block factorization used by Uzawa.
type UzawaType int

const (
	// UzawaDiagonal applies diag(A, S)^{-1}.
	UzawaDiagonal UzawaType = iota
	// UzawaLower applies the inverse of the block lower triangle [A 0; D S].
	UzawaLower
	// UzawaUpper applies the inverse of the block upper triangle [A B; 0 S].
	UzawaUpper
	// UzawaFull applies the inverse of the full block LDU factorization.
	UzawaFull
)

var uzawaStrings = [...]string{
	UzawaDiagonal: "diagonal",
	UzawaLower:    "lower",
	UzawaUpper:    "upper",
	UzawaFull:     "full",
}

func (t UzawaType) String() string {
	if t < 0 || int(t) >= len(uzawaStrings) {
		return "unknown"
	}
	return uzawaStrings[t]
}

// ParseUzawaType returns the UzawaType called name.
func ParseUzawaType(name string) (UzawaType, error) {
	for t, s := range uzawaStrings {
		if s == name {
			return UzawaType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown Uzawa type %q", name)
}

// Uzawa is the Schur complement preconditioner for saddle-point systems
//  [A B] [u]   [f]
//  [D 0] [p] = [g]
// with the Schur complement S = -D A^{-1} B. SolverA approximates A^{-1} on
// the velocity space and SolverS approximates S^{-1} on the pressure space.
// With exact inner solvers UzawaFull is the exact inverse.
//
// The operator must be a *sparse.SaddlePoint.
type Uzawa struct {
	precond
	Type    UzawaType
	SolverA Solver
	SolverS Solver

	m      *sparse.SaddlePoint
	nu, np int
	tu, tp []float64
	fu, gp []float64
}

// NewUzawa returns an Uzawa preconditioner of type t.
func NewUzawa(a Operator, f Filter, t UzawaType, sa, ss Solver) *Uzawa {
	if sa == nil || ss == nil {
		panic("solver: nil Uzawa inner solver")
	}
	return &Uzawa{precond: newPrecond("Uzawa", a, f), Type: t, SolverA: sa, SolverS: ss}
}

// Children implements the Parent interface.
func (p *Uzawa) Children() []Solver { return []Solver{p.SolverA, p.SolverS} }

// InitSymbolic implements the Solver interface.
func (p *Uzawa) InitSymbolic() error {
	m, ok := p.a.(*sparse.SaddlePoint)
	if !ok {
		return &InvalidMatrixStructureError{Solver: p.name, Reason: "operator is not a saddle-point matrix"}
	}
	p.m = m
	p.nu, p.np = m.Split()
	for _, s := range p.Children() {
		if err := s.InitSymbolic(); err != nil {
			return err
		}
	}
	p.tu = reuse(p.tu, p.nu)
	p.fu = reuse(p.fu, p.nu)
	p.tp = reuse(p.tp, p.np)
	p.gp = reuse(p.gp, p.np)
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *Uzawa) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	for _, s := range p.Children() {
		if err := s.InitNumeric(); err != nil {
			return err
		}
	}
	p.initNumeric(p.a)
	return nil
}

// DoneNumeric implements the Solver interface.
func (p *Uzawa) DoneNumeric() {
	for _, s := range p.Children() {
		s.DoneNumeric()
	}
	p.numeric = false
}

// DoneSymbolic implements the Solver interface.
func (p *Uzawa) DoneSymbolic() {
	for _, s := range p.Children() {
		s.DoneSymbolic()
	}
	p.numeric = false
	p.symbolic = false
}

// Apply implements the Solver interface.
func (p *Uzawa) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	nu := p.nu
	f, g := def[:nu], def[nu:]
	u, pr := cor[:nu], cor[nu:]
	m := p.m

	var err error
	switch p.Type {
	case UzawaDiagonal:
		if err = p.solveA(u, f); err == nil {
			err = p.solveS(pr, g)
		}
	case UzawaLower:
		if err = p.solveA(u, f); err == nil {
			// p = S^{-1}(g - D u)
			m.D.MulVecTo(p.gp, u)
			floats.SubTo(p.gp, g, p.gp)
			err = p.solveS(pr, p.gp)
		}
	case UzawaUpper:
		if err = p.solveS(pr, g); err == nil {
			// u = A^{-1}(f - B p)
			m.B.MulVecTo(p.fu, pr)
			floats.SubTo(p.fu, f, p.fu)
			err = p.solveA(u, p.fu)
		}
	case UzawaFull:
		if err = p.solveA(p.tu, f); err == nil {
			m.D.MulVecTo(p.gp, p.tu)
			floats.SubTo(p.gp, g, p.gp)
			if err = p.solveS(pr, p.gp); err == nil {
				m.B.MulVecTo(p.fu, pr)
				floats.SubTo(p.fu, f, p.fu)
				err = p.solveA(u, p.fu)
			}
		}
	default:
		err = &ConfigError{Section: p.name, Key: "type", Reason: "unknown Uzawa type"}
	}
	if err != nil {
		return p.fail(err)
	}
	return p.success(cor)
}

func (p *Uzawa) solveA(u, f []float64) error {
	return p.call(EventCallUzawaA, 0, p.SolverA, u, f)
}

func (p *Uzawa) solveS(pr, g []float64) error {
	return p.call(EventCallUzawaS, 0, p.SolverS, pr, g)
}

// SchurOperator returns the pressure operator S = -D A^{-1} B of the
// saddle-point matrix m with A^{-1} applied by ainv. ainv must be
// initialized before the operator is used. If ainv fails, the result is
// filled with NaN so that an outer solver diverges.
func SchurOperator(m *sparse.SaddlePoint, ainv Solver) Operator {
	nu, np := m.Split()
	bu := make([]float64, nu)
	au := make([]float64, nu)
	return OperatorFunc{N: np, MatVec: func(dst, x []float64) {
		m.B.MulVecTo(bu, x)
		st, err := ainv.Apply(au, bu)
		if err != nil || !st.Acceptable() {
			for i := range dst {
				dst[i] = math.NaN()
			}
			return
		}
		m.D.MulVecTo(dst, au)
		floats.Scale(-1, dst)
	}}
}
