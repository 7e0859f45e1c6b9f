// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nonlinear

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/vladimir-ch/solver"
)

// ErrNotDescent is returned by a line search along a direction in which
// the functional does not decrease.
var ErrNotDescent = errors.New("nonlinear: not a descent direction")

// Linesearch finds a step length along a search direction.
//
// A line search is a bounded one-dimensional iteration on φ(α) = f(x+α*dir)
// with its own stopping criteria. Its convergence is measured on the
// directional derivative |φ'(α)| relative to |φ'(0)|.
type Linesearch interface {
	Name() string

	// Search returns the step length α along dir starting from x, where
	// grad is the gradient of f at x. x, dir and grad are not modified.
	Search(f Operator, x, dir, grad []float64) (alpha float64, st solver.Status, err error)

	// Point returns the point x+α*dir found by the last search and the
	// gradient of f at it. The slices are owned by the line search.
	Point() (x, grad []float64)

	// NumIter returns the number of iterations of the last search.
	NumIter() int

	// Status returns the status of the last search.
	Status() solver.Status

	SetListener(solver.Listener)

	Configure(map[string]string) error
}

// search holds the bookkeeping shared by the line searches.
type search struct {
	solver.Convergence

	// Listener receives the events of the line search. It may be nil.
	Listener solver.Listener

	name   string
	status solver.Status
	x, g   []float64
	start  time.Time
}

func newSearch(name string) search {
	c := solver.DefaultConvergence()
	c.TolRel = 1e-3
	c.MaxIter = 20
	return search{name: name, Convergence: c}
}

func (s *search) Name() string                  { return s.name }
func (s *search) Status() solver.Status         { return s.status }
func (s *search) NumIter() int                  { return s.Iter() }
func (s *search) Point() (x, grad []float64)    { return s.x, s.g }
func (s *search) SetListener(l solver.Listener) { s.Listener = l }

func (s *search) emit(e solver.Event) {
	e.Solver = s.name
	e.Level = -1
	solver.Emit(s.Listener, e)
}

func (s *search) record(norm float64) {
	s.emit(solver.Event{Kind: solver.EventDefect, Iter: s.Iter(), Norm: norm})
}

// begin starts a search from x with gradient grad and returns the initial
// directional derivative. It fails if dir is not a descent direction.
func (s *search) begin(x, dir, grad []float64) (float64, error) {
	s.status = solver.StatusProgress
	s.start = time.Now()
	s.emit(solver.Event{Kind: solver.EventStartSolve})
	n := len(x)
	if len(dir) != n || len(grad) != n {
		return 0, solver.ErrDimensionMismatch
	}
	if cap(s.x) < n {
		s.x = make([]float64, n)
		s.g = make([]float64, n)
	}
	s.x, s.g = s.x[:n], s.g[:n]
	copy(s.x, x)
	copy(s.g, grad)

	d0 := floats.Dot(grad, dir)
	s.Start(math.Abs(d0))
	s.record(math.Abs(d0))
	if !(d0 < 0) {
		return d0, ErrNotDescent
	}
	return d0, nil
}

// eval moves the point to x+alpha*dir and returns the directional
// derivative of f there.
func (s *search) eval(f Operator, x, dir []float64, alpha float64) float64 {
	floats.AddScaledTo(s.x, x, alpha, dir)
	f.Gradient(s.g, s.x)
	return floats.Dot(s.g, dir)
}

// step ends an iteration with the directional derivative dphi.
func (s *search) step(dphi float64) solver.Status {
	norm := math.Abs(dphi)
	st := s.Step(norm)
	s.record(norm)
	return st
}

func (s *search) end(alpha float64, st solver.Status, err error) (float64, solver.Status, error) {
	if err != nil {
		st = solver.StatusAborted
		if solver.IsStructural(err) {
			st = solver.StatusUndefined
		}
		err = fmt.Errorf("nonlinear: %s: %w", s.name, err)
	}
	s.status = st
	s.emit(solver.Event{
		Kind:    solver.EventEndSolve,
		Status:  st,
		Iter:    s.Iter(),
		Norm:    s.DefCur(),
		Elapsed: time.Since(s.start),
	})
	return alpha, st, err
}

// parse sets the stopping criteria of s from key-value pairs and passes
// all other keys to set, which reports whether it knows the key.
func (s *search) parse(kv map[string]string, set func(key, value string) (bool, error)) error {
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		v := kv[k]
		var err error
		switch k {
		case "max_iter":
			s.MaxIter, err = strconv.Atoi(v)
		case "tol_rel":
			s.TolRel, err = strconv.ParseFloat(v, 64)
		case "tol_abs":
			s.TolAbs, err = strconv.ParseFloat(v, 64)
		default:
			var known bool
			known, err = set(k, v)
			if !known {
				return &solver.ConfigError{Section: s.name, Key: k, Reason: "unknown key"}
			}
		}
		if err != nil {
			return &solver.ConfigError{Section: s.name, Key: k, Reason: err.Error()}
		}
	}
	return nil
}

// Secant is a line search that drives φ'(α) to zero with secant steps,
// starting from α = 0 and α = Sigma0.
type Secant struct {
	search

	// Sigma0 is the first trial step.
	Sigma0 float64
}

// NewSecant returns a secant line search with the first trial step 1e-2.
func NewSecant() *Secant {
	return &Secant{search: newSearch("SecantLinesearch"), Sigma0: 1e-2}
}

// Configure sets max_iter, tol_rel, tol_abs and sigma_0 from key-value
// pairs.
func (s *Secant) Configure(kv map[string]string) error {
	return s.parse(kv, func(k, v string) (bool, error) {
		if k != "sigma_0" {
			return false, nil
		}
		var err error
		s.Sigma0, err = strconv.ParseFloat(v, 64)
		return true, err
	})
}

// Search implements the Linesearch interface.
func (s *Secant) Search(f Operator, x, dir, grad []float64) (float64, solver.Status, error) {
	d0, err := s.begin(x, dir, grad)
	if err != nil {
		return s.end(0, solver.StatusAborted, err)
	}
	if s.MaxIter <= 0 {
		return s.end(0, solver.StatusMaxIter, nil)
	}
	alphaPrev, dPrev := 0.0, d0
	alpha := s.Sigma0
	for {
		dphi := s.eval(f, x, dir, alpha)
		if st := s.step(dphi); st != solver.StatusProgress {
			return s.end(alpha, st, nil)
		}
		den := dphi - dPrev
		if den == 0 {
			return s.end(alpha, solver.StatusStagnated, nil)
		}
		next := alpha - dphi*(alpha-alphaPrev)/den
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return s.end(alpha, solver.StatusAborted, errors.New("secant step not finite"))
		}
		alphaPrev, dPrev, alpha = alpha, dphi, next
	}
}

// NewtonRaphson is a line search that applies Newton's method to φ'(α),
// using Hessian-vector products for φ''(α).
type NewtonRaphson struct {
	search
	hv []float64
}

// NewNewtonRaphson returns a Newton-Raphson line search.
func NewNewtonRaphson() *NewtonRaphson {
	return &NewtonRaphson{search: newSearch("NewtonRaphsonLinesearch")}
}

// Configure sets max_iter, tol_rel and tol_abs from key-value pairs.
func (s *NewtonRaphson) Configure(kv map[string]string) error {
	return s.parse(kv, func(string, string) (bool, error) { return false, nil })
}

// Search implements the Linesearch interface.
func (s *NewtonRaphson) Search(f Operator, x, dir, grad []float64) (float64, solver.Status, error) {
	dphi, err := s.begin(x, dir, grad)
	if err != nil {
		return s.end(0, solver.StatusAborted, err)
	}
	if s.MaxIter <= 0 {
		return s.end(0, solver.StatusMaxIter, nil)
	}
	if cap(s.hv) < len(x) {
		s.hv = make([]float64, len(x))
	}
	s.hv = s.hv[:len(x)]
	var alpha float64
	for {
		f.HessVec(s.hv, s.x, dir)
		curv := floats.Dot(dir, s.hv)
		if !(curv > 0) {
			return s.end(alpha, solver.StatusAborted, errors.New("nonpositive curvature"))
		}
		alpha -= dphi / curv
		dphi = s.eval(f, x, dir, alpha)
		if st := s.step(dphi); st != solver.StatusProgress {
			return s.end(alpha, st, nil)
		}
	}
}

// FixedStep is a line search that always takes the step Step.
type FixedStep struct {
	search

	Step float64
}

// NewFixedStep returns a line search with the constant step length step.
func NewFixedStep(step float64) *FixedStep {
	return &FixedStep{search: newSearch("FixedStepLinesearch"), Step: step}
}

// Configure sets the step length from the key step.
func (s *FixedStep) Configure(kv map[string]string) error {
	return s.parse(kv, func(k, v string) (bool, error) {
		if k != "step" {
			return false, nil
		}
		var err error
		s.Step, err = strconv.ParseFloat(v, 64)
		return true, err
	})
}

// Search implements the Linesearch interface. Any direction is accepted.
func (s *FixedStep) Search(f Operator, x, dir, grad []float64) (float64, solver.Status, error) {
	if _, err := s.begin(x, dir, grad); errors.Is(err, solver.ErrDimensionMismatch) {
		return s.end(0, solver.StatusAborted, err)
	}
	s.step(s.eval(f, x, dir, s.Step))
	return s.end(s.Step, solver.StatusSuccess, nil)
}

// MQC is a line search that finds a step satisfying the strong Wolfe
// conditions
//
//	φ(α) <= φ(0) + TolDecrease*α*φ'(0),
//	|φ'(α)| <= TolCurvature*|φ'(0)|
//
// by the safeguarded cubic and quadratic interpolation of Moré and Thuente.
type MQC struct {
	search

	TolDecrease  float64
	TolCurvature float64
	// Alpha0 is the first trial step.
	Alpha0 float64

	mt optimize.MoreThuente
}

// NewMQC returns a strong Wolfe line search with the decrease tolerance
// 1e-4, the curvature tolerance 0.1 and the first trial step 1.
func NewMQC() *MQC {
	return &MQC{
		search:       newSearch("MQCLinesearch"),
		TolDecrease:  1e-4,
		TolCurvature: 0.1,
		Alpha0:       1,
	}
}

// Configure sets max_iter, tol_decrease, tol_curvature and alpha_0 from
// key-value pairs.
func (s *MQC) Configure(kv map[string]string) error {
	return s.parse(kv, func(k, v string) (bool, error) {
		var err error
		switch k {
		case "tol_decrease":
			s.TolDecrease, err = strconv.ParseFloat(v, 64)
		case "tol_curvature":
			s.TolCurvature, err = strconv.ParseFloat(v, 64)
		case "alpha_0":
			s.Alpha0, err = strconv.ParseFloat(v, 64)
		default:
			return false, nil
		}
		return true, err
	})
}

// Search implements the Linesearch interface.
func (s *MQC) Search(f Operator, x, dir, grad []float64) (float64, solver.Status, error) {
	d0, err := s.begin(x, dir, grad)
	if err != nil {
		return s.end(0, solver.StatusAborted, err)
	}
	if s.MaxIter <= 0 {
		return s.end(0, solver.StatusMaxIter, nil)
	}
	if !(s.TolDecrease > 0 && s.TolDecrease < s.TolCurvature && s.TolCurvature < 1) {
		return s.end(0, solver.StatusAborted, &solver.ConfigError{Section: s.name, Key: "tol_curvature", Reason: "need 0 < tol_decrease < tol_curvature < 1"})
	}
	s.mt = optimize.MoreThuente{
		DecreaseFactor:  s.TolDecrease,
		CurvatureFactor: s.TolCurvature,
	}
	s.mt.Init(f.Value(x), d0, s.Alpha0)
	alpha := s.Alpha0
	for {
		dphi := s.eval(f, x, dir, alpha)
		st := s.step(dphi)
		op, next, err := s.mt.Iterate(f.Value(s.x), dphi)
		switch {
		case err != nil:
			return s.end(alpha, solver.StatusAborted, err)
		case op == optimize.MajorIteration:
			return s.end(alpha, solver.StatusSuccess, nil)
		case st == solver.StatusDiverged || st == solver.StatusMaxIter:
			return s.end(alpha, st, nil)
		}
		alpha = next
	}
}
