// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nonlinear

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver"
)

// DirectionUpdate selects the formula for the conjugation parameter β of
// nonlinear conjugate gradients.
type DirectionUpdate int

const (
	DaiYuan DirectionUpdate = iota
	DYHSHybrid
	FletcherReeves
	HagerZhang
	HestenesStiefel
	PolakRibiere
)

var directionUpdateNames = [...]string{
	DaiYuan:         "DaiYuan",
	DYHSHybrid:      "DYHSHybrid",
	FletcherReeves:  "FletcherReeves",
	HagerZhang:      "HagerZhang",
	HestenesStiefel: "HestenesStiefel",
	PolakRibiere:    "PolakRibiere",
}

func (u DirectionUpdate) String() string {
	if u < 0 || int(u) >= len(directionUpdateNames) {
		return fmt.Sprintf("DirectionUpdate(%d)", int(u))
	}
	return directionUpdateNames[u]
}

// ParseDirectionUpdate returns the DirectionUpdate named s. The comparison
// is case-insensitive.
func ParseDirectionUpdate(s string) (DirectionUpdate, error) {
	for u, name := range directionUpdateNames {
		if strings.EqualFold(s, name) {
			return DirectionUpdate(u), nil
		}
	}
	return 0, fmt.Errorf("nonlinear: unknown direction update %q", s)
}

// NLCG is the preconditioned nonlinear conjugate gradient method.
//
// Each iteration searches along the current direction d, computes the new
// preconditioned defect p and updates d = p + β*d. The direction is reset
// to p every RestartFreq iterations and whenever d is not a descent
// direction.
type NLCG struct {
	driver

	Linesearch Linesearch
	Update     DirectionUpdate
	// RestartFreq is the number of iterations between restarts. If it is
	// zero, the dimension of the operator is used.
	RestartFreq int

	dir   []float64
	rOld  []float64
	pOld  []float64
	rpOld float64
	since int
}

// NewNLCG returns a nonlinear conjugate gradient solver for op using the
// line search ls and the Polak-Ribière update. The filter f and the
// preconditioner p may be nil.
func NewNLCG(op Operator, f solver.Filter, p solver.Solver, ls Linesearch) *NLCG {
	if ls == nil {
		panic("nonlinear: nil line search")
	}
	s := &NLCG{Linesearch: ls, Update: PolakRibiere}
	s.driver = newDriver("NLCG", op, f, p, s)
	return s
}

// SetListener sets the listener of the solver and its line search.
func (s *NLCG) SetListener(l solver.Listener) {
	s.Listener = l
	s.Linesearch.SetListener(l)
}

func (s *NLCG) configure(key, value string) (bool, error) {
	var err error
	switch key {
	case "direction_update":
		s.Update, err = ParseDirectionUpdate(value)
	case "restart_freq":
		s.RestartFreq, err = strconv.Atoi(value)
		if err == nil && s.RestartFreq < 0 {
			err = fmt.Errorf("negative restart frequency %d", s.RestartFreq)
		}
	default:
		return false, nil
	}
	return true, err
}

func (s *NLCG) start() {
	n := len(s.x)
	if len(s.dir) != n {
		s.dir = make([]float64, n)
		s.rOld = make([]float64, n)
		s.pOld = make([]float64, n)
	}
	copy(s.dir, s.p)
	s.rpOld = floats.Dot(s.r, s.p)
	s.since = 0
}

func (s *NLCG) step() error {
	copy(s.rOld, s.r)
	copy(s.pOld, s.p)
	if err := s.search(s.Linesearch, s.dir); err != nil {
		return err
	}
	if err := s.precondition(); err != nil {
		return err
	}
	rp := floats.Dot(s.r, s.p)

	freq := s.RestartFreq
	if freq == 0 {
		freq = len(s.x)
	}
	s.since++
	var beta float64
	if s.since < freq {
		beta = s.beta(rp)
	} else {
		s.since = 0
	}
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		beta = 0
	}
	floats.AddScaledTo(s.dir, s.p, beta, s.dir)
	s.Filter.FilterCor(s.dir)
	if !(floats.Dot(s.r, s.dir) > 0) {
		copy(s.dir, s.p)
		s.since = 0
	}
	s.rpOld = rp
	return nil
}

// beta returns the conjugation parameter for the defect r, the
// preconditioned defect p with rp = r·p, the previous ones and the
// previous direction d. In terms of the gradient g = -r and its change
// y = g - gOld the formulas are the usual preconditioned ones.
func (s *NLCG) beta(rp float64) float64 {
	// dy = d·y, yz = y·M⁻¹g.
	var dy, yz float64
	for i, d := range s.dir {
		dy += d * (s.rOld[i] - s.r[i])
		yz += s.p[i] * (s.r[i] - s.rOld[i])
	}
	switch s.Update {
	case DaiYuan:
		return rp / dy
	case DYHSHybrid:
		return math.Max(0, math.Min(yz/dy, rp/dy))
	case FletcherReeves:
		return rp / s.rpOld
	case HagerZhang:
		var yMy float64
		for i := range s.r {
			yMy += (s.rOld[i] - s.r[i]) * (s.pOld[i] - s.p[i])
		}
		dg := -floats.Dot(s.dir, s.r)
		beta := (yz - 2*yMy*dg/dy) / dy
		eta := -1 / (floats.Norm(s.dir, 2) * math.Min(0.01, math.Sqrt(s.rpOld)))
		return math.Max(beta, eta)
	case HestenesStiefel:
		return math.Max(0, yz/dy)
	case PolakRibiere:
		return math.Max(0, yz/s.rpOld)
	}
	panic("nonlinear: unknown direction update")
}
