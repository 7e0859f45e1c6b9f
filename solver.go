// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Solver is the contract shared by all solvers and preconditioners.
//
// A Solver borrows the operator and filter it was constructed with. It is
// set up once per operator by InitSymbolic and InitNumeric, applied any
// number of times, and released by DoneNumeric and DoneSymbolic. Changing
// the operator invalidates the numeric state; Apply then fails with
// ErrStaleOperator until InitNumeric is called again.
//
// Apply solves A*cor = def approximately, starting from cor = 0, and
// returns the terminal status of the solve. A non-nil error accompanies
// either StatusAborted, for solve-time failures such as breakdowns or
// failed inner solvers, or StatusUndefined, for structural errors detected
// before any work was done.
//
// A Solver is not safe for concurrent use.
type Solver interface {
	Name() string

	InitSymbolic() error
	InitNumeric() error

	Apply(cor, def []float64) (Status, error)

	DoneNumeric()
	DoneSymbolic()

	// Status returns the status of the last Apply call.
	Status() Status
}

// Corrector is implemented by solvers that can start from a nonzero
// initial guess. Correct improves x for the system A*x = b.
type Corrector interface {
	Correct(x, b []float64) (Status, error)
}

// Parent is implemented by solvers that own or share inner solvers.
type Parent interface {
	Children() []Solver
}

// Init performs the symbolic and numeric initialization of s.
func Init(s Solver) error {
	if err := s.InitSymbolic(); err != nil {
		return err
	}
	if err := s.InitNumeric(); err != nil {
		s.DoneSymbolic()
		return err
	}
	return nil
}

// Done releases the numeric and symbolic state of s. It may be called
// repeatedly.
func Done(s Solver) {
	s.DoneNumeric()
	s.DoneSymbolic()
}

// Walk calls fn for s and, depth first, for every solver in the tree below
// it. Shared inner solvers are visited once per reference.
func Walk(s Solver, fn func(Solver)) {
	if s == nil {
		return
	}
	fn(s)
	if p, ok := s.(Parent); ok {
		for _, c := range p.Children() {
			Walk(c, fn)
		}
	}
}

// Attach sets l as the listener of every solver in the tree rooted at s.
func Attach(s Solver, l Listener) {
	Walk(s, func(s Solver) {
		if ls, ok := s.(interface{ SetListener(Listener) }); ok {
			ls.SetListener(l)
		}
	})
}

// Solve improves the solution x of the system A*x = b with s. Solvers
// implementing Corrector use x as the initial guess directly; for all other
// solvers the filtered defect b - A*x is computed, s is applied to it and
// the filtered correction is added to x.
//
// x is only updated if the resulting status is acceptable.
func Solve(s Solver, x, b []float64, a Operator, f Filter) (Status, error) {
	n := dim(a)
	if len(x) != n || len(b) != n {
		return StatusUndefined, ErrDimensionMismatch
	}
	if c, ok := s.(Corrector); ok {
		return c.Correct(x, b)
	}
	f = filterOrNone(f)
	def := make([]float64, n)
	a.MulVecTo(def, x)
	floats.SubTo(def, b, def)
	f.FilterDef(def)
	cor := make([]float64, n)
	st, err := s.Apply(cor, def)
	if st.Acceptable() {
		f.FilterCor(cor)
		floats.Add(x, cor)
	}
	return st, err
}

// base holds the bookkeeping shared by the solvers of this package.
type base struct {
	name string

	// Listener receives the events of the solver. It may be nil.
	Listener Listener

	status    Status
	symbolic  bool
	numeric   bool
	version   uint64
	versioned bool
}

// Name returns the name of the solver.
func (b *base) Name() string { return b.name }

// Status returns the status of the last Apply call.
func (b *base) Status() Status { return b.status }

// SetListener sets the listener of the solver.
func (b *base) SetListener(l Listener) { b.Listener = l }

func (b *base) initNumeric(a Operator) {
	b.numeric = true
	b.version, b.versioned = 0, false
	if a != nil {
		b.version, b.versioned = operatorVersion(a)
	}
}

// check validates the state of the solver and the lengths of the
// vectors before an Apply.
func (b *base) check(a Operator, n int, vs ...[]float64) error {
	if !b.numeric {
		return ErrNotInitialized
	}
	if b.versioned {
		if v, _ := operatorVersion(a); v != b.version {
			return ErrStaleOperator
		}
	}
	for _, v := range vs {
		if len(v) != n {
			return ErrDimensionMismatch
		}
	}
	return nil
}

func (b *base) begin() time.Time {
	b.status = StatusProgress
	emit(b.Listener, Event{Kind: EventStartSolve, Solver: b.name})
	return time.Now()
}

func (b *base) end(st Status, start time.Time, norm float64, iter int) {
	b.status = st
	emit(b.Listener, Event{
		Kind:    EventEndSolve,
		Solver:  b.name,
		Status:  st,
		Norm:    norm,
		Iter:    iter,
		Elapsed: time.Since(start),
	})
}

// call applies the inner solver s and reports the invocation as an event
// of kind k. A failed or unacceptable inner solve is returned as an error.
func (b *base) call(k EventKind, iter int, s Solver, cor, def []float64) error {
	start := time.Now()
	st, err := s.Apply(cor, def)
	emit(b.Listener, Event{
		Kind:    k,
		Solver:  b.name,
		Target:  s.Name(),
		Iter:    iter,
		Status:  st,
		Elapsed: time.Since(start),
	})
	if err != nil {
		return err
	}
	if !st.Acceptable() {
		return &innerStatusError{solver: s.Name(), status: st}
	}
	return nil
}

type innerStatusError struct {
	solver string
	status Status
}

func (e *innerStatusError) Error() string {
	return "inner solver " + e.solver + " returned status " + e.status.String()
}

// IsStructural reports whether err is a structural or configuration error
// rather than a solve-time failure.
func IsStructural(err error) bool {
	var ims *InvalidMatrixStructureError
	var ce *ConfigError
	return errors.Is(err, ErrStaleOperator) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.As(err, &ims) ||
		errors.As(err, &ce)
}
