// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

// Status is the state of a solver. A solver is in StatusProgress while
// Apply runs and ends every Apply call in exactly one terminal state.
type Status int

const (
	StatusUndefined Status = iota
	StatusProgress
	StatusSuccess
	StatusAborted
	StatusDiverged
	StatusMaxIter
	StatusStagnated
)

var statusStrings = [...]string{
	StatusUndefined: "undefined",
	StatusProgress:  "progress",
	StatusSuccess:   "success",
	StatusAborted:   "aborted",
	StatusDiverged:  "diverged",
	StatusMaxIter:   "max_iter",
	StatusStagnated: "stagnated",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusStrings) {
		return "unknown"
	}
	return statusStrings[s]
}

// Terminal reports whether s ends an Apply call.
func (s Status) Terminal() bool {
	return s != StatusUndefined && s != StatusProgress
}

// Acceptable reports whether the result of an inner solver with status s
// may be used by an outer solver. Besides StatusSuccess this includes
// StatusMaxIter and StatusStagnated: an inner solver that used up its
// iteration budget still produced a valid approximate correction.
//
// Only StatusSuccess guarantees that the requested tolerance was reached.
func (s Status) Acceptable() bool {
	return s == StatusSuccess || s == StatusMaxIter || s == StatusStagnated
}

// ParseStatus returns the Status with the given name.
func ParseStatus(name string) (Status, bool) {
	for s, str := range statusStrings {
		if str == name {
			return Status(s), true
		}
	}
	return StatusUndefined, false
}
