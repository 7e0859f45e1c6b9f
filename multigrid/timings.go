// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package multigrid

import "time"

// Timings holds the time accumulated on one level since the last reset.
type Timings struct {
	Smoother     time.Duration
	Coarse       time.Duration
	Defect       time.Duration
	Restriction  time.Duration
	Prolongation time.Duration
}

// Total returns the sum of all timings.
func (t Timings) Total() time.Duration {
	return t.Smoother + t.Coarse + t.Defect + t.Restriction + t.Prolongation
}

// Map returns the timings keyed by the names used in timing events.
func (t Timings) Map() map[string]time.Duration {
	return map[string]time.Duration{
		"smoother": t.Smoother,
		"coarse":   t.Coarse,
		"defect":   t.Defect,
		"rest":     t.Restriction,
		"prol":     t.Prolongation,
	}
}

func (t *Timings) add(u Timings) {
	t.Smoother += u.Smoother
	t.Coarse += u.Coarse
	t.Defect += u.Defect
	t.Restriction += u.Restriction
	t.Prolongation += u.Prolongation
}

func (t Timings) sub(u Timings) Timings {
	return Timings{
		Smoother:     t.Smoother - u.Smoother,
		Coarse:       t.Coarse - u.Coarse,
		Defect:       t.Defect - u.Defect,
		Restriction:  t.Restriction - u.Restriction,
		Prolongation: t.Prolongation - u.Prolongation,
	}
}
