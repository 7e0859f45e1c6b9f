// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package multigrid implements geometric multigrid cycles over a hierarchy
// of levels with arbitrary smoothers and coarse grid solvers.
//
// A MultiGrid performs one cycle per Apply and is meant to be used as a
// preconditioner. Wrapping it in solver.NewRichardson gives the classical
// multigrid iteration.
package multigrid

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver"
)

// Cycle is the recursion pattern of a multigrid cycle.
type Cycle int

const (
	// V visits the next coarser level once.
	V Cycle = iota
	// F visits the next coarser level with an F cycle followed by a V
	// cycle.
	F
	// W visits the next coarser level twice.
	W
)

func (c Cycle) String() string {
	switch c {
	case V:
		return "V"
	case F:
		return "F"
	case W:
		return "W"
	}
	return "unknown"
}

// ParseCycle returns the cycle named by s.
func ParseCycle(s string) (Cycle, error) {
	switch strings.ToUpper(s) {
	case "V":
		return V, nil
	case "F":
		return F, nil
	case "W":
		return W, nil
	}
	return 0, fmt.Errorf("multigrid: unknown cycle %q", s)
}

// visits returns the cycles of the visits of the next coarser level.
func (c Cycle) visits() []Cycle {
	switch c {
	case W:
		return []Cycle{W, W}
	case F:
		return []Cycle{F, V}
	}
	return []Cycle{V}
}

// AdaptCGC selects the damping of the coarse grid correction.
type AdaptCGC int

const (
	// AdaptFixed damps with the constant Omega.
	AdaptFixed AdaptCGC = iota
	// AdaptMinEnergy minimizes the energy norm of the error of the
	// corrected iterate.
	AdaptMinEnergy
	// AdaptMinDefect minimizes the Euclidean norm of the defect of the
	// corrected iterate.
	AdaptMinDefect
)

var adaptStrings = [...]string{
	AdaptFixed:     "fixed",
	AdaptMinEnergy: "min_energy",
	AdaptMinDefect: "min_defect",
}

func (a AdaptCGC) String() string {
	if a < 0 || int(a) >= len(adaptStrings) {
		return "unknown"
	}
	return adaptStrings[a]
}

// ParseAdaptCGC returns the coarse grid correction mode named by s.
func ParseAdaptCGC(s string) (AdaptCGC, error) {
	for a, str := range adaptStrings {
		if str == s {
			return AdaptCGC(a), nil
		}
	}
	return 0, fmt.Errorf("multigrid: unknown coarse grid correction %q", s)
}

// MultiGrid applies one multigrid cycle over a hierarchy.
//
// On each level but the coarsest the cycle pre-smooths, restricts the
// defect, visits the next coarser level as given by the cycle type,
// prolongates and adds the damped coarse correction, and post-smooths. On
// the coarsest level the coarse solver is applied. A failing smoother or
// coarse solver aborts the cycle.
type MultiGrid struct {
	name string

	// Listener receives the events of the solver. It may be nil.
	Listener solver.Listener

	Cycle Cycle
	Adapt AdaptCGC
	// Omega is the damping of the coarse grid correction for AdaptFixed
	// and the fallback of the adaptive modes.
	Omega float64

	h *Hierarchy

	status   solver.Status
	symbolic bool
	numeric  bool
	solvers  []solver.Solver
	iter     int
	stats    []solver.IterationStats
}

// NewMultiGrid returns a MultiGrid solver over h with the cycle c and an
// undamped coarse grid correction.
func NewMultiGrid(h *Hierarchy, c Cycle) *MultiGrid {
	if h == nil {
		panic("multigrid: nil hierarchy")
	}
	return &MultiGrid{name: "MultiGrid", Cycle: c, Omega: 1, h: h}
}

// Name implements the solver.Solver interface.
func (m *MultiGrid) Name() string { return m.name }

// Status implements the solver.Solver interface.
func (m *MultiGrid) Status() solver.Status { return m.status }

// SetListener sets the listener of the solver.
func (m *MultiGrid) SetListener(l solver.Listener) { m.Listener = l }

// Hierarchy returns the hierarchy of the solver.
func (m *MultiGrid) Hierarchy() *Hierarchy { return m.h }

// Children implements the solver.Parent interface.
func (m *MultiGrid) Children() []solver.Solver { return m.h.solvers() }

// InitSymbolic implements the solver.Solver interface.
func (m *MultiGrid) InitSymbolic() error {
	if err := m.h.validate(m.name); err != nil {
		return err
	}
	m.solvers = m.h.solvers()
	for _, s := range m.solvers {
		if err := s.InitSymbolic(); err != nil {
			return err
		}
	}
	for _, lv := range m.h.Levels {
		lv.alloc()
	}
	m.symbolic = true
	return nil
}

// InitNumeric implements the solver.Solver interface.
func (m *MultiGrid) InitNumeric() error {
	if !m.symbolic {
		return solver.ErrNotInitialized
	}
	for _, s := range m.solvers {
		if err := s.InitNumeric(); err != nil {
			return err
		}
	}
	for _, lv := range m.h.Levels {
		v, ok := lv.A.(solver.Versioner)
		lv.versions = ok
		if ok {
			lv.version = v.Version()
		}
	}
	m.numeric = true
	return nil
}

// DoneNumeric implements the solver.Solver interface.
func (m *MultiGrid) DoneNumeric() {
	for _, s := range m.solvers {
		s.DoneNumeric()
	}
	m.numeric = false
}

// DoneSymbolic implements the solver.Solver interface.
func (m *MultiGrid) DoneSymbolic() {
	for _, s := range m.solvers {
		s.DoneSymbolic()
	}
	m.symbolic = false
}

// Configure sets the parameters of the solver from key-value pairs. The
// keys are cycle (V, F or W), adapt_cgc (fixed, min_energy or min_defect)
// and cgc_omega.
func (m *MultiGrid) Configure(kv map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		v := kv[k]
		var err error
		switch k {
		case "cycle":
			m.Cycle, err = ParseCycle(v)
		case "adapt_cgc":
			m.Adapt, err = ParseAdaptCGC(v)
		case "cgc_omega":
			m.Omega, err = strconv.ParseFloat(v, 64)
		default:
			return &solver.ConfigError{Section: m.name, Key: k, Reason: "unknown key"}
		}
		if err != nil {
			return &solver.ConfigError{Section: m.name, Key: k, Reason: err.Error()}
		}
	}
	return nil
}

// Timings returns the per-level timings accumulated since the last call
// to ResetTimings.
func (m *MultiGrid) Timings() []Timings {
	t := make([]Timings, len(m.h.Levels))
	for k, lv := range m.h.Levels {
		t[k] = lv.timings
	}
	return t
}

// ResetTimings clears the per-level timings.
func (m *MultiGrid) ResetTimings() {
	for _, lv := range m.h.Levels {
		lv.timings = Timings{}
	}
}

func (m *MultiGrid) check(cor, def []float64) error {
	if !m.numeric {
		return solver.ErrNotInitialized
	}
	for _, lv := range m.h.Levels {
		if lv.versions && lv.A.(solver.Versioner).Version() != lv.version {
			return solver.ErrStaleOperator
		}
	}
	n := m.h.Levels[0].n
	if len(cor) != n || len(def) != n {
		return solver.ErrDimensionMismatch
	}
	return nil
}

// Stats returns the fine level defect norms of the last Apply, before and
// after the cycle.
func (m *MultiGrid) Stats() []solver.IterationStats {
	return append([]solver.IterationStats(nil), m.stats...)
}

// Apply implements the solver.Solver interface. It performs one cycle.
func (m *MultiGrid) Apply(cor, def []float64) (solver.Status, error) {
	if err := m.check(cor, def); err != nil {
		m.status = solver.StatusUndefined
		return m.status, err
	}
	m.status = solver.StatusProgress
	m.emit(solver.Event{Kind: solver.EventStartSolve, Level: -1})
	start := time.Now()
	before := m.Timings()

	fine := m.h.Levels[0]
	copy(fine.def, def)
	m.stats = append(m.stats[:0], solver.IterationStats{Defect: floats.Norm(def, 2)})
	st, err := solver.StatusSuccess, m.cycle(0, m.Cycle)
	norm := m.stats[0].Defect
	if err != nil {
		st = solver.StatusAborted
		if solver.IsStructural(err) {
			st = solver.StatusUndefined
		} else {
			err = &solver.SolverError{Solver: m.name, Iter: m.iter, Err: err}
		}
		for i := range cor {
			cor[i] = 0
		}
	} else {
		copy(cor, fine.cor)
		fine.Filter.FilterCor(cor)
		m.defect(0)
		norm = floats.Norm(fine.res, 2)
		m.stats = append(m.stats, solver.IterationStats{Iter: 1, Defect: norm, Elapsed: time.Since(start)})
	}
	m.iter++

	elapsed := time.Since(start)
	var total Timings
	for k, lv := range m.h.Levels {
		t := lv.timings.sub(before[k])
		total.add(t)
		m.emit(solver.Event{Kind: solver.EventLevelTimings, Level: k, Elapsed: t.Total(), Timings: t.Map()})
	}
	m.emit(solver.Event{Kind: solver.EventTimings, Level: -1, Elapsed: elapsed, Timings: total.Map()})

	m.status = st
	m.emit(solver.Event{Kind: solver.EventEndSolve, Level: -1, Status: st, Norm: norm, Iter: len(m.stats) - 1, Elapsed: elapsed})
	return st, err
}

func (m *MultiGrid) emit(e solver.Event) {
	e.Solver = m.name
	solver.Emit(m.Listener, e)
}

// cycle computes the correction of level k for its defect with a cycle of
// type c.
func (m *MultiGrid) cycle(k int, c Cycle) error {
	lv := m.h.Levels[k]
	zero(lv.cor)
	if k == len(m.h.Levels)-1 {
		return m.coarse(k)
	}

	if err := m.smooth(k, lv.PreSmoother, lv.PreSteps); err != nil {
		return err
	}
	m.defect(k)

	next := m.h.Levels[k+1]
	start := time.Now()
	lv.restrict.MulVecTo(next.rhs, lv.res)
	next.Filter.FilterDef(next.rhs)
	el := time.Since(start)
	lv.timings.Restriction += el
	m.emit(solver.Event{Kind: solver.EventRestriction, Level: k, Iter: m.iter, Elapsed: el})

	zero(next.acc)
	for i, v := range c.visits() {
		if i == 0 {
			copy(next.def, next.rhs)
		} else {
			start := time.Now()
			next.A.MulVecTo(next.def, next.acc)
			floats.SubTo(next.def, next.rhs, next.def)
			next.Filter.FilterDef(next.def)
			next.timings.Defect += time.Since(start)
		}
		if err := m.cycle(k+1, v); err != nil {
			return err
		}
		floats.Add(next.acc, next.cor)
	}

	start = time.Now()
	lv.P.MulVecTo(lv.tmp, next.acc)
	lv.Filter.FilterCor(lv.tmp)
	el = time.Since(start)
	lv.timings.Prolongation += el
	m.emit(solver.Event{Kind: solver.EventProlongation, Level: k, Iter: m.iter, Elapsed: el})

	floats.AddScaled(lv.cor, m.omega(lv), lv.tmp)

	return m.smooth(k, lv.PostSmoother, lv.PostSteps)
}

// omega returns the damping of the prolongated coarse correction lv.tmp
// for the defect lv.res.
func (m *MultiGrid) omega(lv *Level) float64 {
	var num, den float64
	switch m.Adapt {
	case AdaptMinEnergy:
		lv.A.MulVecTo(lv.ac, lv.tmp)
		lv.Filter.FilterDef(lv.ac)
		num = floats.Dot(lv.tmp, lv.res)
		den = floats.Dot(lv.tmp, lv.ac)
	case AdaptMinDefect:
		lv.A.MulVecTo(lv.ac, lv.tmp)
		lv.Filter.FilterDef(lv.ac)
		num = floats.Dot(lv.ac, lv.res)
		den = floats.Dot(lv.ac, lv.ac)
	default:
		return m.Omega
	}
	w := num / den
	if den == 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return m.Omega
	}
	return w
}

// defect computes lv.res = lv.def - A*lv.cor on level k.
func (m *MultiGrid) defect(k int) {
	lv := m.h.Levels[k]
	start := time.Now()
	lv.A.MulVecTo(lv.res, lv.cor)
	floats.SubTo(lv.res, lv.def, lv.res)
	lv.Filter.FilterDef(lv.res)
	lv.timings.Defect += time.Since(start)
}

// smooth applies steps smoothing steps with s on level k.
func (m *MultiGrid) smooth(k int, s solver.Solver, steps int) error {
	if s == nil {
		return nil
	}
	lv := m.h.Levels[k]
	for i := 0; i < steps; i++ {
		m.defect(k)
		start := time.Now()
		st, err := s.Apply(lv.tmp, lv.res)
		el := time.Since(start)
		lv.timings.Smoother += el
		m.emit(solver.Event{Kind: solver.EventCallSmoother, Target: s.Name(), Level: k, Iter: m.iter, Status: st, Elapsed: el})
		if err := inner(s, st, err); err != nil {
			return err
		}
		lv.Filter.FilterCor(lv.tmp)
		floats.Add(lv.cor, lv.tmp)
	}
	return nil
}

// coarse solves the system of the coarsest level k.
func (m *MultiGrid) coarse(k int) error {
	lv := m.h.Levels[k]
	if m.h.Coarse == nil {
		return m.smooth(k, lv.PreSmoother, max(lv.PreSteps, 1))
	}
	start := time.Now()
	st, err := m.h.Coarse.Apply(lv.cor, lv.def)
	el := time.Since(start)
	lv.timings.Coarse += el
	m.emit(solver.Event{Kind: solver.EventCallCoarseSolver, Target: m.h.Coarse.Name(), Level: k, Iter: m.iter, Status: st, Elapsed: el})
	if err := inner(m.h.Coarse, st, err); err != nil {
		return err
	}
	lv.Filter.FilterCor(lv.cor)
	return nil
}

func inner(s solver.Solver, st solver.Status, err error) error {
	if err != nil {
		return err
	}
	if !st.Acceptable() {
		return fmt.Errorf("multigrid: %s returned status %v", s.Name(), st)
	}
	return nil
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
