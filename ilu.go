// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"math"

	"github.com/vladimir-ch/solver/sparse"
)

// ILU is the incomplete LU factorization preconditioner with level of fill
// FillIn. ILU(0) keeps the sparsity pattern of the operator; higher levels
// admit fill entries whose level, the length of the shortest fill path,
// does not exceed FillIn.
//
// The pattern is computed by InitSymbolic and the factors by InitNumeric. A
// zero pivot makes InitNumeric fail with a *SingularMatrixError. The
// operator must be a *sparse.CSR or a *sparse.BCSR, the latter is expanded
// to scalar storage.
type ILU struct {
	precond
	FillIn int

	// Combined factors: the strictly lower part is L with unit diagonal,
	// the rest is U.
	rowPtr []int
	colIdx []int
	val    []float64
	diag   []int
	work   []int
}

// NewILU returns an ILU preconditioner with level of fill p.
func NewILU(a Operator, f Filter, p int) *ILU {
	return &ILU{precond: newPrecond("ILU", a, f), FillIn: p}
}

// InitSymbolic implements the Solver interface.
func (p *ILU) InitSymbolic() error {
	if p.FillIn < 0 {
		return &ConfigError{Section: p.name, Key: "fill_in", Reason: "negative level of fill"}
	}
	if err := relaxSymbolic(p.name, p.a); err != nil {
		return err
	}
	m := scalarCSR(p.a)
	p.symbolicFactor(m)
	p.symbolic = true
	return nil
}

func scalarCSR(a Operator) *sparse.CSR {
	switch a := a.(type) {
	case *sparse.CSR:
		return a
	case *sparse.BCSR:
		return a.CSR()
	}
	panic("solver: operator is neither CSR nor BCSR")
}

// symbolicFactor computes the pattern of the ILU(p) factors. The pattern of
// each row is kept as a sorted linked list while fill entries are added.
func (p *ILU) symbolicFactor(m *sparse.CSR) {
	n := p.n
	const none = -1
	next := make([]int, n+1)
	level := make([]int, n)
	var rowLevels [][]int // Levels of the stored entries per row, for U rows.

	p.rowPtr = append(p.rowPtr[:0], 0)
	p.colIdx = p.colIdx[:0]
	p.diag = reuse2(p.diag, n)
	for i := 0; i < n; i++ {
		// Build the sorted list of the row pattern with level 0. The list
		// head is next[n].
		head := n
		next[head] = none
		cols, _ := m.Row(i)
		hasDiag := false
		prev := head
		for _, j := range cols {
			next[prev] = j
			level[j] = 0
			prev = j
			if j == i {
				hasDiag = true
			}
		}
		next[prev] = none
		if !hasDiag {
			// Insert the diagonal so that a structurally missing pivot is
			// reported as a zero pivot.
			insertAfter(next, head, i)
			level[i] = 0
		}

		// Eliminate with the rows k < i in increasing order.
		for k := next[head]; k != none && k < i; k = next[k] {
			lk := level[k]
			lo, hi := p.rowPtr[k], p.rowPtr[k+1]
			for idx := lo; idx < hi; idx++ {
				j := p.colIdx[idx]
				if j <= k {
					continue
				}
				lev := lk + rowLevels[k][idx-lo] + 1
				if lev > p.FillIn {
					continue
				}
				if inList(next, k, j) {
					level[j] = min(level[j], lev)
					continue
				}
				insertAfter(next, k, j)
				level[j] = lev
			}
		}

		levels := make([]int, 0)
		for j := next[head]; j != none; j = next[j] {
			if j == i {
				p.diag[i] = len(p.colIdx)
			}
			p.colIdx = append(p.colIdx, j)
			levels = append(levels, level[j])
		}
		rowLevels = append(rowLevels, levels)
		p.rowPtr = append(p.rowPtr, len(p.colIdx))
	}
	p.val = reuse(p.val, len(p.colIdx))
	p.work = reuse2(p.work, n)
}

// inList reports whether j is in the list after position from.
func inList(next []int, from, j int) bool {
	for c := next[from]; c != -1 && c <= j; c = next[c] {
		if c == j {
			return true
		}
	}
	return false
}

// insertAfter inserts j into the sorted list at a position after from.
func insertAfter(next []int, from, j int) {
	c := from
	for next[c] != -1 && next[c] < j {
		c = next[c]
	}
	next[j] = next[c]
	next[c] = j
}

func reuse2(v []int, n int) []int {
	if cap(v) < n {
		return make([]int, n)
	}
	return v[:n]
}

// InitNumeric implements the Solver interface.
func (p *ILU) InitNumeric() error {
	if !p.symbolic {
		return ErrNotInitialized
	}
	m := scalarCSR(p.a)
	n := p.n
	pos := p.work
	for i := range pos {
		pos[i] = -1
	}
	for i := 0; i < n; i++ {
		lo, hi := p.rowPtr[i], p.rowPtr[i+1]
		for idx := lo; idx < hi; idx++ {
			pos[p.colIdx[idx]] = idx
			p.val[idx] = 0
		}
		cols, vals := m.Row(i)
		for k, j := range cols {
			p.val[pos[j]] = vals[k]
		}
		// IKJ elimination restricted to the pattern.
		for idx := lo; idx < hi; idx++ {
			k := p.colIdx[idx]
			if k >= i {
				break
			}
			piv := p.val[p.diag[k]]
			lik := p.val[idx] / piv
			p.val[idx] = lik
			for kj := p.diag[k] + 1; kj < p.rowPtr[k+1]; kj++ {
				if q := pos[p.colIdx[kj]]; q >= 0 {
					p.val[q] -= lik * p.val[kj]
				}
			}
		}
		for idx := lo; idx < hi; idx++ {
			pos[p.colIdx[idx]] = -1
		}
		if d := p.val[p.diag[i]]; d == 0 || math.IsNaN(d) {
			return &SingularMatrixError{Solver: p.name, Row: i}
		}
	}
	p.initNumeric(p.a)
	return nil
}

// Apply implements the Solver interface.
func (p *ILU) Apply(cor, def []float64) (Status, error) {
	if err := p.enter(cor, def); err != nil {
		return StatusUndefined, err
	}
	// Solve L y = def.
	for i := range cor {
		s := def[i]
		for idx := p.rowPtr[i]; idx < p.diag[i]; idx++ {
			s -= p.val[idx] * cor[p.colIdx[idx]]
		}
		cor[i] = s
	}
	// Solve U cor = y.
	for i := len(cor) - 1; i >= 0; i-- {
		s := cor[i]
		for idx := p.diag[i] + 1; idx < p.rowPtr[i+1]; idx++ {
			s -= p.val[idx] * cor[p.colIdx[idx]]
		}
		cor[i] = s / p.val[p.diag[i]]
	}
	return p.success(cor)
}
