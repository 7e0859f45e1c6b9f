// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats provides consumers for the events emitted by solvers:
// recording, timing aggregation, logging, metrics, tracing and convergence
// plots.
package stats

import (
	"maps"
	"sync"
	"time"

	"github.com/vladimir-ch/solver"
)

// Recorder is a solver.Listener that stores every event it receives. It is
// safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []solver.Event
}

// Notify implements the solver.Listener interface.
func (r *Recorder) Notify(e solver.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []solver.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]solver.Event(nil), r.events...)
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = r.events[:0]
	r.mu.Unlock()
}

// Count returns the number of recorded events of kind k emitted by the
// solver name. An empty name matches all solvers.
func (r *Recorder) Count(name string, k solver.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, e := range r.events {
		if e.Kind == k && (name == "" || e.Solver == name) {
			n++
		}
	}
	return n
}

// Defects returns the defect norms reported by the solver name in the order
// they were recorded.
func (r *Recorder) Defects(name string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var d []float64
	for _, e := range r.events {
		if e.Kind == solver.EventDefect && e.Solver == name {
			d = append(d, e.Norm)
		}
	}
	return d
}

// Summary aggregates the recorded events.
func (r *Recorder) Summary() *Summary {
	s := NewSummary()
	for _, e := range r.Events() {
		s.Notify(e)
	}
	return s
}

// SolverSummary is the aggregate of the solves of one solver.
type SolverSummary struct {
	Solves int
	Iters  int
	// Elapsed is the total duration of the solves.
	Elapsed time.Duration
	// Statuses counts the terminal statuses.
	Statuses map[solver.Status]int
	// Calls is the total duration of the calls to inner solvers, keyed by
	// the name of the invoked solver.
	Calls map[string]time.Duration
	// Last is the final defect norm of the most recent solve.
	Last float64
}

// Summary is a solver.Listener that aggregates solve counts, iterations
// and timings per solver and multigrid timings per level. It is safe for
// concurrent use.
type Summary struct {
	mu      sync.Mutex
	solvers map[string]*SolverSummary
	levels  map[int]map[string]time.Duration
}

// NewSummary returns an empty Summary.
func NewSummary() *Summary {
	return &Summary{
		solvers: make(map[string]*SolverSummary),
		levels:  make(map[int]map[string]time.Duration),
	}
}

// Notify implements the solver.Listener interface.
func (s *Summary) Notify(e solver.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Kind {
	case solver.EventEndSolve:
		ss := s.solver(e.Solver)
		ss.Solves++
		ss.Iters += e.Iter
		ss.Elapsed += e.Elapsed
		ss.Statuses[e.Status]++
		ss.Last = e.Norm
	case solver.EventCallPrecond, solver.EventCallPrecondL, solver.EventCallPrecondR,
		solver.EventCallSmoother, solver.EventCallCoarseSolver,
		solver.EventCallUzawaA, solver.EventCallUzawaS:
		s.solver(e.Solver).Calls[e.Target] += e.Elapsed
	case solver.EventLevelTimings:
		lt := s.levels[e.Level]
		if lt == nil {
			lt = make(map[string]time.Duration)
			s.levels[e.Level] = lt
		}
		for k, d := range e.Timings {
			lt[k] += d
		}
	}
}

func (s *Summary) solver(name string) *SolverSummary {
	ss := s.solvers[name]
	if ss == nil {
		ss = &SolverSummary{
			Statuses: make(map[solver.Status]int),
			Calls:    make(map[string]time.Duration),
		}
		s.solvers[name] = ss
	}
	return ss
}

// Solver returns a copy of the aggregate for the solver name and whether
// any of its events were aggregated.
func (s *Summary) Solver(name string) (SolverSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.solvers[name]
	if !ok {
		return SolverSummary{}, false
	}
	c := *ss
	c.Statuses = maps.Clone(ss.Statuses)
	c.Calls = maps.Clone(ss.Calls)
	return c, true
}

// Level returns the accumulated multigrid timings of level k keyed by
// phase.
func (s *Summary) Level(k int) map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := maps.Clone(s.levels[k])
	if m == nil {
		m = make(map[string]time.Duration)
	}
	return m
}

// Levels returns the number of multigrid levels with recorded timings.
func (s *Summary) Levels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.levels)
}
