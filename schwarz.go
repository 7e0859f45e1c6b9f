// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vladimir-ch/solver/sparse"
)

// Schwarz is the additive Schwarz preconditioner
//  cor = sum_i R_i^T W_i S_i(R_i def),
// where R_i restricts to the unknowns of subdomain i, S_i is a local solver
// for the subdomain matrix A[idx_i, idx_i] and W_i are the partition of
// unity weights 1/multiplicity when Weighted is set.
//
// The local solves run concurrently. Schwarz owns the listeners of its
// local solvers: during Apply each of them reports to a private buffer, and
// the buffered events are passed to the listener of Schwarz in subdomain
// order once all local solves have returned. With a Comm of size greater
// than one,
// every rank holds its own subdomains of the same global system and the
// contributions are summed over all ranks, so every rank obtains the full
// correction.
//
// The operator must be a *sparse.CSR.
type Schwarz struct {
	precond

	// Subdomains are the unknowns of the local subdomains of this rank.
	Subdomains [][]int
	// NewLocal returns the solver of a subdomain. If nil, Direct is used.
	NewLocal func(a *sparse.CSR) Solver
	// Comm sums the contributions of all ranks. If nil, SerialComm is
	// used.
	Comm Comm
	// Weighted enables the partition of unity weights.
	Weighted bool

	locals []schwarzLocal
	weight []float64
}

type schwarzLocal struct {
	idx      []int
	a        *sparse.CSR
	s        Solver
	def, cor []float64
	st       Status
	elapsed  time.Duration
	events   eventBuffer
}

// eventBuffer is a Listener collecting the events of one local solve.
type eventBuffer []Event

func (b *eventBuffer) Notify(e Event) { *b = append(*b, e) }

// NewSchwarz returns a Schwarz preconditioner on the given subdomains.
func NewSchwarz(a Operator, f Filter, subdomains [][]int) *Schwarz {
	return &Schwarz{precond: newPrecond("Schwarz", a, f), Subdomains: subdomains}
}

// Children implements the Parent interface.
func (p *Schwarz) Children() []Solver {
	c := make([]Solver, 0, len(p.locals))
	for _, l := range p.locals {
		c = append(c, l.s)
	}
	return c
}

func (p *Schwarz) comm() Comm {
	if p.Comm == nil {
		return SerialComm{}
	}
	return p.Comm
}

// InitSymbolic implements the Solver interface. The local solvers are
// created here.
func (p *Schwarz) InitSymbolic() error {
	m, ok := p.a.(*sparse.CSR)
	if !ok {
		return &InvalidMatrixStructureError{Solver: p.name, Reason: "operator is not CSR"}
	}
	newLocal := p.NewLocal
	if newLocal == nil {
		newLocal = func(a *sparse.CSR) Solver { return NewDirect(a, nil) }
	}
	p.locals = p.locals[:0]
	mult := make([]float64, p.n)
	for _, idx := range p.Subdomains {
		if len(idx) == 0 {
			return &InvalidMatrixStructureError{Solver: p.name, Reason: "empty subdomain"}
		}
		for _, i := range idx {
			if i < 0 || p.n <= i {
				return &InvalidMatrixStructureError{Solver: p.name, Reason: "subdomain index out of range"}
			}
			mult[i]++
		}
		sub := m.Submatrix(idx)
		s := newLocal(sub)
		if err := s.InitSymbolic(); err != nil {
			return err
		}
		p.locals = append(p.locals, schwarzLocal{
			idx: idx,
			a:   sub,
			s:   s,
			def: make([]float64, len(idx)),
			cor: make([]float64, len(idx)),
		})
	}
	if err := p.comm().AllReduceSum(mult); err != nil {
		return err
	}
	p.weight = reuse(p.weight, p.n)
	for i, c := range mult {
		p.weight[i] = 1
		if p.Weighted && c > 0 {
			p.weight[i] = 1 / c
		}
	}
	p.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (p *Schwarz) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	m := p.a.(*sparse.CSR)
	for i := range p.locals {
		l := &p.locals[i]
		sub := m.Submatrix(l.idx)
		if len(sub.Val) != len(l.a.Val) {
			return &InvalidMatrixStructureError{Solver: p.name, Reason: "sparsity pattern changed"}
		}
		copy(l.a.Val, sub.Val)
		l.a.Touch()
		if err := l.s.InitNumeric(); err != nil {
			return err
		}
	}
	p.initNumeric(p.a)
	return nil
}

// DoneNumeric implements the Solver interface.
func (p *Schwarz) DoneNumeric() {
	for _, l := range p.locals {
		l.s.DoneNumeric()
	}
	p.numeric = false
}

// DoneSymbolic implements the Solver interface.
func (p *Schwarz) DoneSymbolic() {
	for _, l := range p.locals {
		l.s.DoneSymbolic()
	}
	p.locals = p.locals[:0]
	p.numeric = false
	p.symbolic = false
}

// Apply implements the Solver interface.
func (p *Schwarz) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range p.locals {
		l := &p.locals[i]
		l.events = l.events[:0]
		if ls, ok := l.s.(interface{ SetListener(Listener) }); ok {
			if p.Listener != nil {
				ls.SetListener(&l.events)
			} else {
				ls.SetListener(nil)
			}
		}
		g.Go(func() error {
			for k, j := range l.idx {
				l.def[k] = def[j]
			}
			start := time.Now()
			st, err := l.s.Apply(l.cor, l.def)
			l.st, l.elapsed = st, time.Since(start)
			if err != nil {
				return err
			}
			if !st.Acceptable() {
				return &innerStatusError{solver: l.s.Name(), status: st}
			}
			return nil
		})
	}
	err := g.Wait()
	for _, l := range p.locals {
		for _, e := range l.events {
			p.Listener.Notify(e)
		}
		emit(p.Listener, Event{
			Kind:    EventCallPrecond,
			Solver:  p.name,
			Target:  l.s.Name(),
			Status:  l.st,
			Elapsed: l.elapsed,
		})
	}
	if err != nil {
		return p.fail(err)
	}

	zero(cor)
	for _, l := range p.locals {
		for k, j := range l.idx {
			cor[j] += l.cor[k]
		}
	}
	if err := p.comm().AllReduceSum(cor); err != nil {
		return p.finish(StatusAborted, abort(p.name, 0, errors.Join(errors.New("reduction failed"), err)))
	}
	for i, w := range p.weight {
		cor[i] *= w
	}
	return p.success(cor)
}
