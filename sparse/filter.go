// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import "gonum.org/v1/gonum/floats"

// VectorFilter applies boundary-condition constraints to vectors in place.
// It has the same method set as solver.Filter.
type VectorFilter interface {
	FilterRHS(v []float64)
	FilterSol(v []float64)
	FilterDef(v []float64)
	FilterCor(v []float64)
}

// UnitFilter imposes Dirichlet values on a set of degrees of freedom.
// Right-hand sides and solutions get the prescribed values, defects and
// corrections are zeroed.
type UnitFilter struct {
	idx []int
	val []float64
}

// NewUnitFilter returns a filter for the degrees of freedom idx. If val is
// nil, homogeneous values are prescribed, otherwise len(val) must equal
// len(idx).
func NewUnitFilter(idx []int, val []float64) *UnitFilter {
	if val != nil && len(val) != len(idx) {
		panic("sparse: mismatched filter values")
	}
	return &UnitFilter{idx: idx, val: val}
}

// Indices returns the constrained degrees of freedom.
func (f *UnitFilter) Indices() []int { return f.idx }

func (f *UnitFilter) setValues(v []float64) {
	for k, i := range f.idx {
		if f.val == nil {
			v[i] = 0
		} else {
			v[i] = f.val[k]
		}
	}
}

func (f *UnitFilter) zero(v []float64) {
	for _, i := range f.idx {
		v[i] = 0
	}
}

// FilterRHS sets the prescribed values.
func (f *UnitFilter) FilterRHS(v []float64) { f.setValues(v) }

// FilterSol sets the prescribed values.
func (f *UnitFilter) FilterSol(v []float64) { f.setValues(v) }

// FilterDef zeroes the constrained entries.
func (f *UnitFilter) FilterDef(v []float64) { f.zero(v) }

// FilterCor zeroes the constrained entries.
func (f *UnitFilter) FilterCor(v []float64) { f.zero(v) }

// FilterMat replaces the constrained rows of m by unit rows. The diagonal
// entry of every constrained row must be part of the sparsity pattern.
func (f *UnitFilter) FilterMat(m *CSR) {
	for _, i := range f.idx {
		cols, vals := m.Row(i)
		found := false
		for k, j := range cols {
			if j == i {
				vals[k] = 1
				found = true
			} else {
				vals[k] = 0
			}
		}
		if !found {
			panic("sparse: missing diagonal entry in filtered row")
		}
	}
	m.Touch()
}

// MeanFilter projects vectors onto the subspace of zero mean, fixing the
// constant null space of pure Neumann problems (e.g. the pressure of an
// enclosed flow).
type MeanFilter struct{}

func (MeanFilter) project(v []float64) {
	if len(v) == 0 {
		return
	}
	floats.AddConst(-floats.Sum(v)/float64(len(v)), v)
}

// FilterRHS removes the mean of v.
func (f MeanFilter) FilterRHS(v []float64) { f.project(v) }

// FilterSol removes the mean of v.
func (f MeanFilter) FilterSol(v []float64) { f.project(v) }

// FilterDef removes the mean of v.
func (f MeanFilter) FilterDef(v []float64) { f.project(v) }

// FilterCor removes the mean of v.
func (f MeanFilter) FilterCor(v []float64) { f.project(v) }

// TupleFilter applies First to v[:Split] and Second to v[Split:]. A nil
// component filter leaves its part unchanged.
type TupleFilter struct {
	First, Second VectorFilter
	Split         int
}

func (f TupleFilter) apply(v []float64, first, second func(VectorFilter, []float64)) {
	if f.First != nil {
		first(f.First, v[:f.Split])
	}
	if f.Second != nil {
		second(f.Second, v[f.Split:])
	}
}

// FilterRHS implements VectorFilter.
func (f TupleFilter) FilterRHS(v []float64) {
	g := func(vf VectorFilter, x []float64) { vf.FilterRHS(x) }
	f.apply(v, g, g)
}

// FilterSol implements VectorFilter.
func (f TupleFilter) FilterSol(v []float64) {
	g := func(vf VectorFilter, x []float64) { vf.FilterSol(x) }
	f.apply(v, g, g)
}

// FilterDef implements VectorFilter.
func (f TupleFilter) FilterDef(v []float64) {
	g := func(vf VectorFilter, x []float64) { vf.FilterDef(x) }
	f.apply(v, g, g)
}

// FilterCor implements VectorFilter.
func (f TupleFilter) FilterCor(v []float64) {
	g := func(vf VectorFilter, x []float64) { vf.FilterCor(x) }
	f.apply(v, g, g)
}
