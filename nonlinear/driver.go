// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nonlinear

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver"
)

// method is the per-iteration update of a nonlinear solver.
type method interface {
	// start prepares the first iteration. The defect and the
	// preconditioned defect of the initial guess are set.
	start()

	// step performs one iteration. It must leave the new iterate, its
	// defect and its preconditioned defect in the driver.
	step() error

	// configure sets the parameter key. It reports whether key is known.
	configure(key, value string) (bool, error)
}

// driver holds the iteration control shared by the nonlinear solvers.
//
// The defect of an iterate x is r = b - ∇F(x), the negative gradient of
// F(x) - b·x. Its norm is checked against the stopping criteria.
type driver struct {
	solver.Convergence

	// Listener receives the events of the solver. It may be nil.
	Listener solver.Listener

	Op Operator
	// Filter is applied to defects and search directions. It may be nil.
	Filter solver.Filter
	// Precond is a linear preconditioner applied to the defect. If it is
	// nil, the identity is used.
	Precond solver.Solver

	m      method
	name   string
	status solver.Status

	symbolic, numeric bool

	obj   objective
	x     []float64
	r, p  []float64
	g     []float64
	stats []solver.IterationStats
	begin time.Time
	// moved is cleared by a line search step that leaves x unchanged.
	moved bool
}

func newDriver(name string, op Operator, f solver.Filter, p solver.Solver, m method) driver {
	if op == nil {
		panic("nonlinear: nil operator")
	}
	if f == nil {
		f = solver.NoFilter{}
	}
	return driver{
		Convergence: solver.DefaultConvergence(),
		Op:          op,
		Filter:      f,
		Precond:     p,
		m:           m,
		name:        name,
	}
}

// Name implements the solver.Solver interface.
func (d *driver) Name() string { return d.name }

// Status implements the solver.Solver interface.
func (d *driver) Status() solver.Status { return d.status }

// Children implements the solver.Parent interface.
func (d *driver) Children() []solver.Solver {
	if d.Precond == nil {
		return nil
	}
	return []solver.Solver{d.Precond}
}

// Stats returns a copy of the iteration records of the last solve.
func (d *driver) Stats() []solver.IterationStats {
	return append([]solver.IterationStats(nil), d.stats...)
}

// NumIter returns the number of iterations of the last solve.
func (d *driver) NumIter() int { return d.Iter() }

// InitSymbolic implements the solver.Solver interface.
func (d *driver) InitSymbolic() error {
	n := d.Op.Dim()
	if d.Precond != nil {
		if r, c := dims(d.Precond); r >= 0 && (r != n || c != n) {
			return &solver.InvalidMatrixStructureError{Solver: d.name, Reason: "preconditioner dimension differs from operator"}
		}
		if err := d.Precond.InitSymbolic(); err != nil {
			return err
		}
	}
	for _, v := range []*[]float64{&d.x, &d.r, &d.p, &d.g, &d.obj.b} {
		*v = make([]float64, n)
	}
	d.obj.Operator = d.Op
	d.symbolic = true
	return nil
}

// InitNumeric implements the solver.Solver interface.
func (d *driver) InitNumeric() error {
	if !d.symbolic {
		return solver.ErrNotInitialized
	}
	if d.Precond != nil {
		if err := d.Precond.InitNumeric(); err != nil {
			return err
		}
	}
	d.numeric = true
	return nil
}

// DoneNumeric implements the solver.Solver interface.
func (d *driver) DoneNumeric() {
	if d.Precond != nil {
		d.Precond.DoneNumeric()
	}
	d.numeric = false
}

// DoneSymbolic implements the solver.Solver interface.
func (d *driver) DoneSymbolic() {
	if d.Precond != nil {
		d.Precond.DoneSymbolic()
	}
	d.symbolic = false
}

// Apply solves ∇F(cor) = def starting from cor = 0.
func (d *driver) Apply(cor, def []float64) (solver.Status, error) {
	for i := range cor {
		cor[i] = 0
	}
	return d.Correct(cor, def)
}

// Correct improves x for the system ∇F(x) = b using x as the initial
// guess. x is only updated if the resulting status is acceptable.
func (d *driver) Correct(x, b []float64) (solver.Status, error) {
	if err := d.check(x, b); err != nil {
		d.status = solver.StatusUndefined
		return d.status, err
	}
	d.status = solver.StatusProgress
	d.begin = time.Now()
	d.stats = d.stats[:0]
	d.emit(solver.Event{Kind: solver.EventStartSolve})

	copy(d.x, x)
	copy(d.obj.b, b)
	d.Filter.FilterSol(d.x)
	norm := d.defect()
	st := d.Start(norm)
	d.record(norm)

	var err error
	if st == solver.StatusProgress {
		st, err = d.iterate()
	}
	if st.Acceptable() {
		copy(x, d.x)
	}

	d.status = st
	d.emit(solver.Event{
		Kind:    solver.EventEndSolve,
		Status:  st,
		Iter:    d.Iter(),
		Norm:    d.DefCur(),
		Elapsed: time.Since(d.begin),
	})
	return st, err
}

func (d *driver) iterate() (solver.Status, error) {
	if err := d.precondition(); err != nil {
		return d.fail(err)
	}
	d.m.start()
	for {
		d.moved = true
		if err := d.m.step(); err != nil {
			return d.fail(err)
		}
		norm := floats.Norm(d.r, 2)
		st := d.Step(norm)
		d.record(norm)
		if st == solver.StatusProgress && !d.moved {
			// A step that leaves x unchanged ends the solve.
			st = solver.StatusStagnated
		}
		if st != solver.StatusProgress {
			return st, nil
		}
	}
}

func (d *driver) fail(err error) (solver.Status, error) {
	if solver.IsStructural(err) {
		return solver.StatusUndefined, err
	}
	return solver.StatusAborted, &solver.SolverError{Solver: d.name, Iter: d.Iter(), Err: err}
}

func (d *driver) check(x, b []float64) error {
	if !d.numeric {
		return solver.ErrNotInitialized
	}
	if len(x) != len(d.x) || len(b) != len(d.x) {
		return solver.ErrDimensionMismatch
	}
	return nil
}

// defect computes the filtered defect of the current iterate and returns
// its norm.
func (d *driver) defect() float64 {
	d.obj.Gradient(d.g, d.x)
	floats.ScaleTo(d.r, -1, d.g)
	d.Filter.FilterDef(d.r)
	return floats.Norm(d.r, 2)
}

// precondition computes the preconditioned defect p = M⁻¹r.
func (d *driver) precondition() error {
	if d.Precond == nil {
		copy(d.p, d.r)
		d.Filter.FilterCor(d.p)
		return nil
	}
	start := time.Now()
	st, err := d.Precond.Apply(d.p, d.r)
	d.emit(solver.Event{
		Kind:    solver.EventCallPrecond,
		Target:  d.Precond.Name(),
		Iter:    d.Iter(),
		Status:  st,
		Elapsed: time.Since(start),
	})
	if err != nil {
		return err
	}
	if !st.Acceptable() {
		return fmt.Errorf("nonlinear: preconditioner %s returned status %v", d.Precond.Name(), st)
	}
	d.Filter.FilterCor(d.p)
	return nil
}

// search runs ls along dir from the current iterate, moves the iterate to
// the point found and updates its defect.
func (d *driver) search(ls Linesearch, dir []float64) error {
	floats.ScaleTo(d.g, -1, d.r)
	_, st, err := ls.Search(&d.obj, d.x, dir, d.g)
	if err != nil {
		return err
	}
	if !st.Acceptable() {
		return fmt.Errorf("nonlinear: %s returned status %v", ls.Name(), st)
	}
	x, g := ls.Point()
	d.moved = !floats.Equal(d.x, x)
	copy(d.x, x)
	floats.ScaleTo(d.r, -1, g)
	d.Filter.FilterDef(d.r)
	return nil
}

func (d *driver) record(norm float64) {
	it := d.Iter()
	d.stats = append(d.stats, solver.IterationStats{
		Iter:    it,
		Defect:  norm,
		Elapsed: time.Since(d.begin),
	})
	d.emit(solver.Event{Kind: solver.EventDefect, Iter: it, Norm: norm})
}

func (d *driver) emit(e solver.Event) {
	e.Solver = d.name
	e.Level = -1
	solver.Emit(d.Listener, e)
}

// Configure sets stopping criteria and method parameters from key-value
// pairs. The stopping criteria keys are those of solver.Iterative.
// Unknown keys and malformed values are reported as a *solver.ConfigError.
func (d *driver) Configure(kv map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		v := kv[k]
		var err error
		switch k {
		case "max_iter":
			d.MaxIter, err = strconv.Atoi(v)
		case "min_iter":
			d.MinIter, err = strconv.Atoi(v)
		case "stag_iter":
			d.StagIter, err = strconv.Atoi(v)
		case "tol_rel":
			d.TolRel, err = strconv.ParseFloat(v, 64)
		case "tol_abs":
			d.TolAbs, err = strconv.ParseFloat(v, 64)
		case "div_rel":
			d.DivRel, err = strconv.ParseFloat(v, 64)
		case "div_abs":
			d.DivAbs, err = strconv.ParseFloat(v, 64)
		case "stag_rate":
			d.StagRate, err = strconv.ParseFloat(v, 64)
		default:
			var known bool
			known, err = d.m.configure(k, v)
			if !known {
				return &solver.ConfigError{Section: d.name, Key: k, Reason: "unknown key"}
			}
		}
		if err != nil {
			return &solver.ConfigError{Section: d.name, Key: k, Reason: err.Error()}
		}
	}
	return nil
}

// dims returns the dimensions of the operator of s if s exposes one, and
// -1 otherwise.
func dims(s solver.Solver) (r, c int) {
	if o, ok := s.(interface{ Dims() (r, c int) }); ok {
		return o.Dims()
	}
	return -1, -1
}
