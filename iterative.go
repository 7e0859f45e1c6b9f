// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package solver provides composable iterative solvers for sparse linear
// systems: Krylov methods, preconditioners, and the contracts used by the
// multigrid and nonlinear solvers in the subpackages.
//
// All solvers implement the Solver interface. Krylov methods are Methods
// driven by the Iterative skeleton through a reverse-communication
// interface; preconditioners are Solvers in their own right and can be
// nested to any depth.
package solver

import (
	"errors"
	"maps"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Operation specifies the type of operation.
type Operation uint64

// Operations commanded by Method.Iterate.
const (
	NoOperation Operation = 0

	// Multiply A*x where x is stored
	// in Context.Src and the result will
	// be stored in Context.Dst. The
	// result is filtered as a defect.
	MatVec Operation = 1 << (iota - 1)

	// Multiply A^T*x where x is stored
	// in Context.Src and the result will
	// be stored in Context.Dst.
	MatTransVec

	// Do the preconditioner solve
	//  M z = r,
	// where r is stored in Context.Src,
	// and store the solution z in
	// Context.Dst. The solution is
	// filtered as a correction.
	PSolve

	// Same as PSolve with the left
	// preconditioner.
	PSolveL

	// Same as PSolve with the right
	// preconditioner.
	PSolveR

	// Compute b - A*x where x is stored
	// in Context.X and store the result
	// into Context.Residual.
	ComputeResidual

	// Check convergence using the
	// residual norm in Context.ResidualNorm.
	// If convergence is detected,
	// Context.Converged is set to
	// true before Method.Iterate is called
	// again.
	CheckResidualNorm

	// Replace the initial residual norm
	// used by relative stopping criteria by
	// Context.ResidualNorm. Methods that
	// track a residual other than b - A*x,
	// e.g. the preconditioned residual,
	// command it once before the first
	// iteration. The solve terminates if
	// the new norm already satisfies the
	// stopping criteria.
	SetInitialNorm

	// EndIteration indicates that Method
	// has finished what it considers to
	// be one iteration. Context.ResidualNorm
	// must hold the residual norm of the
	// current iterate. If Context.Converged
	// is true, the iterative process is
	// terminated, and Method.Init will be
	// called before Method.Iterate again.
	EndIteration
)

// Method is an iterative method that produces a sequence of vectors converging
// to the vector x satisfying a system of linear equations
//  A x = b,
// where A is non-singular dim×dim matrix, and x and b are vectors of dimension
// dim.
//
// Method uses a reverse-communication interface between the iterative algorithm
// and the caller. Method acts as a client that commands the caller to perform
// needed operations via Operation returned from Iterate methods. This provides
// independence of Method on representation of the matrix A, and enables
// automation of common operations like checking for convergence and maintaining
// statistics.
type Method interface {
	// Init initializes the method for solving an dim×dim linear system.
	Init(dim int)

	// Iterate retrieves data from Context, updates it, and returns the next
	// operation. The caller must perform the Operation using data in
	// Context, and depending on the state call Iterate again.
	Iterate(*Context) (Operation, error)
}

// Context mediates the communication between a Method and the caller. It must
// not be modified or accessed apart from the commanded Operations.
type Context struct {
	// X is the current approximate solution. On the first call to
	// Method.Iterate, X contains the initial estimate. Method must
	// update X with the current estimate when it commands ComputeResidual
	// and EndIteration.
	X []float64
	// Residual is the current residual b-A*x. On the first call to
	// Method.Iterate, Residual contains the filtered initial residual.
	Residual []float64
	// ResidualNorm is (an estimate of) the norm of the current residual.
	// Method must update it when it commands CheckResidualNorm,
	// SetInitialNorm and EndIteration. It does not have to be equal to
	// the norm of Residual, some methods (e.g., GMRES) can estimate the
	// residual norm without forming the residual itself.
	ResidualNorm float64
	// Converged indicates to Method that the ResidualNorm satisfies the
	// stopping criterion as a result of CheckResidualNorm operation.
	Converged bool

	// Src and Dst are the source and destination vectors for various
	// Operations.
	Src, Dst []float64
}

// transposer is implemented by methods that command MatTransVec.
type transposer interface {
	needsTranspose() bool
}

// finisher is implemented by methods that do not keep Context.X current
// between iterations. finish is called when a solve terminates and must
// bring X up to date.
type finisher interface {
	finish(ctx *Context)
}

// numericResetter is implemented by methods that cache data derived from
// the operator across solves.
type numericResetter interface {
	resetNumeric()
}

// Iterative is a solver that drives a Method. It performs the operations
// the method commands against its operator, filter and preconditioners and
// applies the stopping criteria in Convergence.
type Iterative struct {
	base
	Convergence

	A      Operator
	Filter Filter
	Method Method

	// Precond is the preconditioner commanded by PSolve. If nil, the
	// identity is used.
	Precond Solver
	// PrecondL and PrecondR are the left and right preconditioners
	// commanded by PSolveL and PSolveR.
	PrecondL, PrecondR Solver

	ctx   Context
	rhs   []float64
	stats []IterationStats
	start time.Time
}

// NewIterative returns an Iterative solver called name that drives m on the
// system with operator a, filter f and preconditioner p. f and p may be
// nil. The stopping criteria are set to DefaultConvergence.
func NewIterative(name string, a Operator, f Filter, m Method, p Solver) *Iterative {
	if m == nil {
		panic("solver: nil method")
	}
	dim(a)
	return &Iterative{
		base:        base{name: name},
		Convergence: DefaultConvergence(),
		A:           a,
		Filter:      filterOrNone(f),
		Method:      m,
		Precond:     p,
	}
}

// Children implements the Parent interface.
func (s *Iterative) Children() []Solver {
	var c []Solver
	for _, p := range []Solver{s.Precond, s.PrecondL, s.PrecondR} {
		if p != nil {
			c = append(c, p)
		}
	}
	return c
}

// InitSymbolic implements the Solver interface.
func (s *Iterative) InitSymbolic() error {
	n := dim(s.A)
	if t, ok := s.Method.(transposer); ok && t.needsTranspose() {
		if _, ok := s.A.(TransOperator); !ok {
			return &InvalidMatrixStructureError{Solver: s.name, Reason: "method needs the transpose of the operator"}
		}
	}
	for _, p := range s.Children() {
		if err := p.InitSymbolic(); err != nil {
			return err
		}
	}
	s.ctx.X = reuse(s.ctx.X, n)
	s.ctx.Residual = reuse(s.ctx.Residual, n)
	s.rhs = reuse(s.rhs, n)
	s.symbolic = true
	return nil
}

// InitNumeric implements the Solver interface.
func (s *Iterative) InitNumeric() error {
	if !s.symbolic {
		return ErrNotInitialized
	}
	for _, p := range s.Children() {
		if err := p.InitNumeric(); err != nil {
			return err
		}
	}
	if r, ok := s.Method.(numericResetter); ok {
		r.resetNumeric()
	}
	s.initNumeric(s.A)
	return nil
}

// DoneNumeric implements the Solver interface.
func (s *Iterative) DoneNumeric() {
	for _, p := range s.Children() {
		p.DoneNumeric()
	}
	s.numeric = false
}

// DoneSymbolic implements the Solver interface.
func (s *Iterative) DoneSymbolic() {
	for _, p := range s.Children() {
		p.DoneSymbolic()
	}
	s.symbolic = false
}

// Stats returns a copy of the iteration records of the last solve.
func (s *Iterative) Stats() []IterationStats {
	return append([]IterationStats(nil), s.stats...)
}

// NumIter returns the number of iterations of the last solve.
func (s *Iterative) NumIter() int { return s.Iter() }

// Apply solves A*cor = def starting from cor = 0.
func (s *Iterative) Apply(cor, def []float64) (Status, error) {
	n := len(s.ctx.X)
	if err := s.check(s.A, n, cor, def); err != nil {
		return StatusUndefined, err
	}
	zero(s.ctx.X)
	copy(s.rhs, def)
	copy(s.ctx.Residual, def)
	st, err := s.run()
	copy(cor, s.ctx.X)
	return st, err
}

// Correct improves x for the system A*x = b using x as the initial guess.
func (s *Iterative) Correct(x, b []float64) (Status, error) {
	n := len(s.ctx.X)
	if err := s.check(s.A, n, x, b); err != nil {
		return StatusUndefined, err
	}
	copy(s.ctx.X, x)
	copy(s.rhs, b)
	s.A.MulVecTo(s.ctx.Residual, s.ctx.X)
	floats.SubTo(s.ctx.Residual, s.rhs, s.ctx.Residual) // r = b - Ax
	s.Filter.FilterDef(s.ctx.Residual)
	st, err := s.run()
	if st.Acceptable() {
		copy(x, s.ctx.X)
	}
	return st, err
}

func (s *Iterative) run() (Status, error) {
	s.start = s.begin()
	s.stats = s.stats[:0]
	s.ctx.ResidualNorm = floats.Norm(s.ctx.Residual, 2)
	s.ctx.Converged = false
	s.ctx.Src, s.ctx.Dst = nil, nil

	st := s.Start(s.ctx.ResidualNorm)
	s.record(s.ctx.ResidualNorm)
	var err error
	if st == StatusProgress {
		st, err = s.iterate()
	}
	s.end(st, s.start, s.DefCur(), s.Iter())
	return st, err
}

func (s *Iterative) record(norm float64) {
	it := s.Iter()
	s.stats = append(s.stats, IterationStats{
		Iter:    it,
		Defect:  norm,
		Elapsed: time.Since(s.start),
	})
	emit(s.Listener, Event{Kind: EventDefect, Solver: s.name, Iter: it, Norm: norm})
}

func (s *Iterative) iterate() (Status, error) {
	ctx := &s.ctx
	s.Method.Init(len(ctx.X))
	st, err := s.loop()
	if f, ok := s.Method.(finisher); ok && err == nil {
		f.finish(ctx)
	}
	return st, err
}

func (s *Iterative) loop() (Status, error) {
	ctx := &s.ctx
	for {
		op, err := s.Method.Iterate(ctx)
		if err != nil {
			return StatusAborted, abort(s.name, s.Iter(), err)
		}

		switch op {
		case NoOperation:

		case ComputeResidual:
			s.A.MulVecTo(ctx.Residual, ctx.X)
			floats.SubTo(ctx.Residual, s.rhs, ctx.Residual) // r = b - Ax
			s.Filter.FilterDef(ctx.Residual)

		case MatVec:
			s.A.MulVecTo(ctx.Dst, ctx.Src)
			s.Filter.FilterDef(ctx.Dst)

		case MatTransVec:
			s.A.(TransOperator).MulTransVecTo(ctx.Dst, ctx.Src)
			s.Filter.FilterDef(ctx.Dst)

		case PSolve, PSolveL, PSolveR:
			p, kind := s.Precond, EventCallPrecond
			switch op {
			case PSolveL:
				p, kind = s.PrecondL, EventCallPrecondL
			case PSolveR:
				p, kind = s.PrecondR, EventCallPrecondR
			}
			if p == nil {
				copy(ctx.Dst, ctx.Src)
			} else if err := s.call(kind, s.Iter(), p, ctx.Dst, ctx.Src); err != nil {
				if IsStructural(err) {
					return StatusUndefined, err
				}
				return StatusAborted, abort(s.name, s.Iter(), err)
			}
			s.Filter.FilterCor(ctx.Dst)

		case CheckResidualNorm:
			switch s.Check(ctx.ResidualNorm) {
			case StatusSuccess:
				ctx.Converged = true
			case StatusDiverged:
				s.Step(ctx.ResidualNorm)
				s.record(ctx.ResidualNorm)
				return StatusDiverged, nil
			}

		case SetInitialNorm:
			st := s.SetInitial(ctx.ResidualNorm)
			s.stats[len(s.stats)-1].Defect = ctx.ResidualNorm
			if st != StatusProgress {
				return st, nil
			}

		case EndIteration:
			st := s.Step(ctx.ResidualNorm)
			s.record(ctx.ResidualNorm)
			if ctx.Converged && st != StatusDiverged {
				st = StatusSuccess
			}
			if st != StatusProgress {
				return st, nil
			}

		default:
			return StatusAborted, abort(s.name, s.Iter(), errors.New("invalid operation"))
		}
	}
}

// configurer is implemented by methods with parameters settable by
// Iterative.Configure.
type configurer interface {
	// configure sets the parameter key. It reports whether key is known.
	configure(key, value string) (bool, error)
}

// Configure sets stopping criteria and method parameters from key-value
// pairs. The stopping criteria keys are max_iter, min_iter, tol_rel,
// tol_abs, div_rel, div_abs, stag_rate and stag_iter; the method keys are
// documented by each method. Unknown keys and malformed values are
// reported as a *ConfigError.
func (s *Iterative) Configure(kv map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		v := kv[k]
		var err error
		switch k {
		case "max_iter":
			s.MaxIter, err = strconv.Atoi(v)
		case "min_iter":
			s.MinIter, err = strconv.Atoi(v)
		case "stag_iter":
			s.StagIter, err = strconv.Atoi(v)
		case "tol_rel":
			s.TolRel, err = strconv.ParseFloat(v, 64)
		case "tol_abs":
			s.TolAbs, err = strconv.ParseFloat(v, 64)
		case "div_rel":
			s.DivRel, err = strconv.ParseFloat(v, 64)
		case "div_abs":
			s.DivAbs, err = strconv.ParseFloat(v, 64)
		case "stag_rate":
			s.StagRate, err = strconv.ParseFloat(v, 64)
		default:
			c, ok := s.Method.(configurer)
			if !ok {
				return &ConfigError{Section: s.name, Key: k, Reason: "unknown key"}
			}
			var known bool
			known, err = c.configure(k, v)
			if !known {
				return &ConfigError{Section: s.name, Key: k, Reason: "unknown key"}
			}
		}
		if err != nil {
			return &ConfigError{Section: s.name, Key: k, Reason: err.Error()}
		}
	}
	return nil
}

func parsePositive(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("value not positive")
	}
	return n, nil
}
