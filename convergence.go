// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"math"
	"time"
)

// Convergence holds the stopping criteria of an iterative process and
// tracks the defect norms of the current solve.
//
// With d0 the initial defect norm and d the current one, the process
//  - succeeds when d <= TolAbs and, unless TolRel is zero, d <= TolRel*d0,
//    provided at least MinIter iterations were done;
//  - diverges when d is not finite, d > DivAbs or d > DivRel*d0;
//  - stagnates when StagIter > 0 and the mean reduction rate over the last
//    StagIter iterations, (d_k/d_{k-StagIter})^(1/StagIter), is at least
//    StagRate;
//  - stops with StatusMaxIter after MaxIter iterations.
// d0 is frozen when the solve starts.
type Convergence struct {
	TolAbs float64
	TolRel float64
	DivAbs float64
	DivRel float64

	StagRate float64
	StagIter int

	MinIter int
	MaxIter int

	iter    int
	defInit float64
	history []float64
}

// DefaultConvergence returns the default stopping criteria: relative
// tolerance 1e-8 without an absolute requirement, at most 100 iterations
// and stagnation detection disabled.
func DefaultConvergence() Convergence {
	return Convergence{
		TolAbs:   math.Inf(1),
		TolRel:   1e-8,
		DivAbs:   1e128,
		DivRel:   1e10,
		StagRate: 0.95,
		MaxIter:  100,
	}
}

// Start begins a new solve with the initial defect norm def0 and returns
// StatusSuccess if def0 already satisfies the tolerances, StatusDiverged if
// it is not finite and StatusProgress otherwise.
func (c *Convergence) Start(def0 float64) Status {
	c.iter = 0
	c.defInit = def0
	c.history = append(c.history[:0], def0)
	if isBad(def0) || def0 > c.DivAbs {
		return StatusDiverged
	}
	if c.MinIter <= 0 && c.converged(def0) {
		return StatusSuccess
	}
	if c.MaxIter <= 0 {
		return StatusMaxIter
	}
	return StatusProgress
}

// SetInitial replaces the frozen initial defect norm, e.g. by the norm of
// the preconditioned defect, and re-checks the initial state.
func (c *Convergence) SetInitial(def0 float64) Status {
	c.defInit = def0
	if len(c.history) > 0 {
		c.history[len(c.history)-1] = def0
	}
	if isBad(def0) || def0 > c.DivAbs {
		return StatusDiverged
	}
	if c.iter >= c.MinIter && c.converged(def0) {
		return StatusSuccess
	}
	return StatusProgress
}

// Check evaluates an intermediate defect norm within the current
// iteration. It returns StatusSuccess, StatusDiverged or StatusProgress.
func (c *Convergence) Check(def float64) Status {
	if c.diverged(def) {
		return StatusDiverged
	}
	if c.iter+1 >= c.MinIter && c.converged(def) {
		return StatusSuccess
	}
	return StatusProgress
}

// Step ends an iteration with defect norm def and returns the resulting
// status.
func (c *Convergence) Step(def float64) Status {
	c.iter++
	c.history = append(c.history, def)
	switch {
	case c.diverged(def):
		return StatusDiverged
	case c.iter >= c.MinIter && c.converged(def):
		return StatusSuccess
	case c.stagnated():
		return StatusStagnated
	case c.iter >= c.MaxIter:
		return StatusMaxIter
	}
	return StatusProgress
}

// Iter returns the number of completed iterations.
func (c *Convergence) Iter() int { return c.iter }

// DefInit returns the frozen initial defect norm.
func (c *Convergence) DefInit() float64 { return c.defInit }

// DefCur returns the most recent defect norm.
func (c *Convergence) DefCur() float64 {
	if len(c.history) == 0 {
		return 0
	}
	return c.history[len(c.history)-1]
}

// ConvRate returns the mean defect reduction per iteration of the current
// solve.
func (c *Convergence) ConvRate() float64 {
	if c.iter == 0 || c.defInit == 0 {
		return 0
	}
	return math.Pow(c.DefCur()/c.defInit, 1/float64(c.iter))
}

func (c *Convergence) converged(def float64) bool {
	if def > c.TolAbs {
		return false
	}
	return c.TolRel == 0 || def <= c.TolRel*c.defInit
}

func (c *Convergence) diverged(def float64) bool {
	if isBad(def) || def > c.DivAbs {
		return true
	}
	return c.defInit > 0 && def > c.DivRel*c.defInit
}

func (c *Convergence) stagnated() bool {
	w := c.StagIter
	if w <= 0 || c.iter < w {
		return false
	}
	k := len(c.history) - 1
	prev := c.history[k-w]
	if prev == 0 {
		return false
	}
	return math.Pow(c.history[k]/prev, 1/float64(w)) >= c.StagRate
}

func isBad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// IterationStats is the record of one iteration of a solve.
type IterationStats struct {
	Iter   int
	Defect float64
	// Elapsed is the time since the start of the solve. It is advisory
	// and never used to stop a solve.
	Elapsed time.Duration
}
