// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import "fmt"

// Converter maps vectors between the layout of an outer system and the
// layout of the system an inner solver works on.
type Converter interface {
	// Forward stores the outer vector src in the inner layout dst.
	Forward(dst, src []float64)
	// Backward stores the inner vector src in the outer layout dst.
	Backward(dst, src []float64)
}

// Permutation is the Converter that reorders vectors: the inner entry i is
// the outer entry Permutation[i].
type Permutation []int

// NewPermutation returns perm as a Permutation after checking that it is a
// permutation of 0, ..., len(perm)-1.
func NewPermutation(perm []int) (Permutation, error) {
	seen := make([]bool, len(perm))
	for i, p := range perm {
		if p < 0 || len(perm) <= p || seen[p] {
			return nil, fmt.Errorf("solver: invalid permutation entry %d at %d", p, i)
		}
		seen[p] = true
	}
	return Permutation(perm), nil
}

// Forward implements the Converter interface.
func (p Permutation) Forward(dst, src []float64) {
	for i, j := range p {
		dst[i] = src[j]
	}
}

// Backward implements the Converter interface.
func (p Permutation) Backward(dst, src []float64) {
	for i, j := range p {
		dst[j] = src[i]
	}
}

// Convert applies an inner solver to a system stored in another layout:
//  cor = Backward(Inner(Forward(def))).
// The inner solver is set up and released together with Convert.
type Convert struct {
	precond
	Conv  Converter
	Inner Solver

	def, cor []float64
}

// NewConvert returns a Convert solver for the outer system a applying inner
// through conv.
func NewConvert(a Operator, f Filter, conv Converter, inner Solver) *Convert {
	if conv == nil || inner == nil {
		panic("solver: nil converter or inner solver")
	}
	return &Convert{precond: newPrecond("Convert", a, f), Conv: conv, Inner: inner}
}

// Children implements the Parent interface.
func (p *Convert) Children() []Solver { return []Solver{p.Inner} }

// InitSymbolic implements the Solver interface.
func (p *Convert) InitSymbolic() error {
	if err := p.Inner.InitSymbolic(); err != nil {
		return err
	}
	p.def = reuse(p.def, p.n)
	p.cor = reuse(p.cor, p.n)
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *Convert) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	if err := p.Inner.InitNumeric(); err != nil {
		return err
	}
	p.initNumeric(p.a)
	return nil
}

// DoneNumeric implements the Solver interface.
func (p *Convert) DoneNumeric() {
	p.Inner.DoneNumeric()
	p.numeric = false
}

// DoneSymbolic implements the Solver interface.
func (p *Convert) DoneSymbolic() {
	p.Inner.DoneSymbolic()
	p.numeric = false
	p.symbolic = false
}

// Apply implements the Solver interface.
func (p *Convert) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	p.Conv.Forward(p.def, def)
	st, err := p.Inner.Apply(p.cor, p.def)
	if err != nil {
		if IsStructural(err) {
			return p.finish(st, err)
		}
		return p.fail(err)
	}
	p.Conv.Backward(cor, p.cor)
	p.f.FilterCor(cor)
	return p.finish(st, nil)
}
