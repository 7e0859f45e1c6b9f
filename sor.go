// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"fmt"

	"github.com/vladimir-ch/solver/sparse"
)

// SOR is the successive over-relaxation preconditioner. It performs one
// forward sweep solving
//  (D/ω + L) cor = def,
// where D and L are the diagonal and the strictly lower triangular part of
// the operator. The operator must be a *sparse.CSR or a *sparse.BCSR, the
// latter is expanded to scalar storage.
type SOR struct {
	precond
	Omega float64

	m    *sparse.CSR
	diag []int
}

// NewSOR returns a SOR preconditioner with relaxation parameter omega,
// which must lie in (0,2).
func NewSOR(a Operator, f Filter, omega float64) *SOR {
	return &SOR{precond: newPrecond("SOR", a, f), Omega: omega}
}

// InitSymbolic implements the Solver interface.
func (p *SOR) InitSymbolic() error {
	if err := checkOmega(p.name, p.Omega); err != nil {
		return err
	}
	if err := relaxSymbolic(p.name, p.a); err != nil {
		return err
	}
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *SOR) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	var err error
	p.m, p.diag, err = relaxNumeric(p.name, p.a)
	if err != nil {
		return err
	}
	p.initNumeric(p.a)
	return nil
}

// Apply implements the Solver interface.
func (p *SOR) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	forwardSweep(p.m, p.diag, p.Omega, cor, def)
	return p.success(cor)
}

// SSOR is the symmetric successive over-relaxation preconditioner
//  M = ω/(2-ω) (D/ω + L) D^{-1} (D/ω + U).
// It is symmetric for symmetric operators and can precondition PCG.
type SSOR struct {
	precond
	Omega float64

	m    *sparse.CSR
	diag []int
}

// NewSSOR returns a SSOR preconditioner with relaxation parameter omega,
// which must lie in (0,2).
func NewSSOR(a Operator, f Filter, omega float64) *SSOR {
	return &SSOR{precond: newPrecond("SSOR", a, f), Omega: omega}
}

// InitSymbolic implements the Solver interface.
func (p *SSOR) InitSymbolic() error {
	if err := checkOmega(p.name, p.Omega); err != nil {
		return err
	}
	if err := relaxSymbolic(p.name, p.a); err != nil {
		return err
	}
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *SSOR) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	var err error
	p.m, p.diag, err = relaxNumeric(p.name, p.a)
	if err != nil {
		return err
	}
	p.initNumeric(p.a)
	return nil
}

// Apply implements the Solver interface.
func (p *SSOR) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	m, w := p.m, p.Omega
	forwardSweep(m, p.diag, w, cor, def)
	// cor = (2-ω)/ω D y
	for i := range cor {
		cor[i] *= (2 - w) / w * m.Val[p.diag[i]]
	}
	// Backward sweep solving (D/ω + U) cor = z in place.
	for i := len(cor) - 1; i >= 0; i-- {
		cols, vals := m.Row(i)
		s := cor[i]
		for k, j := range cols {
			if j > i {
				s -= vals[k] * cor[j]
			}
		}
		cor[i] = w * s / m.Val[p.diag[i]]
	}
	return p.success(cor)
}

func checkOmega(name string, w float64) error {
	if !(0 < w && w < 2) {
		return &ConfigError{Section: name, Key: "omega", Reason: fmt.Sprintf("%v not in (0,2)", w)}
	}
	return nil
}

func relaxSymbolic(name string, a Operator) error {
	switch a.(type) {
	case *sparse.CSR, *sparse.BCSR:
		return nil
	}
	return &InvalidMatrixStructureError{Solver: name, Reason: "operator is neither CSR nor BCSR"}
}

// relaxNumeric returns the scalar matrix of a and the positions of its
// diagonal entries.
func relaxNumeric(name string, a Operator) (*sparse.CSR, []int, error) {
	var m *sparse.CSR
	switch a := a.(type) {
	case *sparse.CSR:
		m = a
	case *sparse.BCSR:
		m = a.CSR()
	}
	diag := m.DiagIndex()
	for i, k := range diag {
		if k < 0 || m.Val[k] == 0 {
			return nil, nil, &SingularMatrixError{Solver: name, Row: i}
		}
	}
	return m, diag, nil
}

// forwardSweep solves (D/ω + L) cor = def.
func forwardSweep(m *sparse.CSR, diag []int, w float64, cor, def []float64) {
	for i := range cor {
		cols, vals := m.Row(i)
		s := def[i]
		for k, j := range cols {
			if j < i {
				s -= vals[k] * cor[j]
			}
		}
		cor[i] = w * s / m.Val[diag[i]]
	}
}
