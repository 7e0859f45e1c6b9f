// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

// DOK is a dictionary-of-keys matrix with random access to its elements.
// It is convenient for building transfer operators where entries are
// overwritten rather than accumulated.
type DOK struct {
	Rows, Cols int

	data map[index]float64
}

type index struct {
	row, col int
}

// NewDOK returns an empty r×c dictionary-of-keys matrix.
func NewDOK(r, c int) *DOK {
	return &DOK{
		Rows: r,
		Cols: c,
		data: make(map[index]float64),
	}
}

func (m *DOK) check(i, j int) {
	if i < 0 || m.Rows <= i {
		panic("sparse: row index out of range")
	}
	if j < 0 || m.Cols <= j {
		panic("sparse: column index out of range")
	}
}

// At returns the value of the element (i,j).
func (m *DOK) At(i, j int) float64 {
	m.check(i, j)
	return m.data[index{i, j}]
}

// SetAt sets the element (i,j) to v.
func (m *DOK) SetAt(i, j int, v float64) {
	m.check(i, j)
	m.data[index{i, j}] = v
}

// AddAt adds v to the element (i,j).
func (m *DOK) AddAt(i, j int, v float64) {
	m.check(i, j)
	m.data[index{i, j}] += v
}

// CSR returns the matrix in compressed sparse row format.
func (m *DOK) CSR() *CSR {
	coo := NewCOO(m.Rows, m.Cols)
	for ij, aij := range m.data {
		coo.Append(ij.row, ij.col, aij)
	}
	return coo.CSR()
}
