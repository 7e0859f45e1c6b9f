// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import "time"

// EventKind tags the point in a solve an Event describes.
type EventKind int

const (
	EventStartSolve EventKind = iota + 1
	EventEndSolve
	EventDefect
	EventCallPrecond
	EventCallPrecondL
	EventCallPrecondR
	EventCallSmoother
	EventCallCoarseSolver
	EventProlongation
	EventRestriction
	EventTimings
	EventLevelTimings
	EventCallUzawaA
	EventCallUzawaS
)

var eventStrings = [...]string{
	EventStartSolve:       "start_solve",
	EventEndSolve:         "end_solve",
	EventDefect:           "defect",
	EventCallPrecond:      "call_precond",
	EventCallPrecondL:     "call_precond_l",
	EventCallPrecondR:     "call_precond_r",
	EventCallSmoother:     "call_smoother",
	EventCallCoarseSolver: "call_coarse_solver",
	EventProlongation:     "prol",
	EventRestriction:      "rest",
	EventTimings:          "timings",
	EventLevelTimings:     "level_timings",
	EventCallUzawaA:       "call_uzawa_a",
	EventCallUzawaS:       "call_uzawa_s",
}

func (k EventKind) String() string {
	if k <= 0 || int(k) >= len(eventStrings) {
		return "unknown"
	}
	return eventStrings[k]
}

// Event is a point-in-time occurrence during a solve.
type Event struct {
	Kind EventKind
	// Solver is the name of the solver that emitted the event.
	Solver string
	// Target is the name of the invoked solver for the Call* kinds.
	Target string
	// Level is the multigrid level index, or -1.
	Level int
	// Iter is the iteration the event belongs to.
	Iter int
	// Norm is the defect norm for EventDefect and EventEndSolve.
	Norm float64
	// Status is the result of the solve for EventEndSolve and of the
	// invoked solver for the Call* kinds.
	Status Status
	// Elapsed is the duration of the solve, call, transfer or the
	// accumulated time for the timing kinds.
	Elapsed time.Duration
	// Timings holds named accumulated durations for EventTimings and
	// EventLevelTimings.
	Timings map[string]time.Duration
}

// Listener consumes events. Notify must not block: solvers call it
// synchronously from their iteration loops.
type Listener interface {
	Notify(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// Notify implements the Listener interface.
func (f ListenerFunc) Notify(e Event) { f(e) }

// Listeners fans an event out to several listeners in order.
type Listeners []Listener

// Notify implements the Listener interface.
func (ls Listeners) Notify(e Event) {
	for _, l := range ls {
		if l != nil {
			l.Notify(e)
		}
	}
}

// ChanListener forwards events to a channel. Events are dropped when the
// channel is full so that a slow consumer never stalls a solver.
type ChanListener chan<- Event

// Notify implements the Listener interface.
func (c ChanListener) Notify(e Event) {
	select {
	case c <- e:
	default:
	}
}

// emit sends a level-less event to l.
func emit(l Listener, e Event) {
	if l == nil {
		return
	}
	e.Level = -1
	l.Notify(e)
}

// Emit sends e to l. A nil listener is allowed. It is meant for solver
// implementations outside this package.
func Emit(l Listener, e Event) {
	if l == nil {
		return
	}
	l.Notify(e)
}
