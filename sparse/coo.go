// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import "sort"

type triplet struct {
	i, j int
	v    float64
}

// COO is a matrix in coordinate format used for assembly. Duplicate
// entries are allowed and are summed when the matrix is converted to CSR.
type COO struct {
	r, c int
	data []triplet
}

// NewCOO returns an empty r×c coordinate matrix.
func NewCOO(r, c int) *COO {
	return &COO{
		r: r,
		c: c,
	}
}

// Dims returns the dimensions of the matrix.
func (m *COO) Dims() (r, c int) {
	return m.r, m.c
}

// Append adds v to the element (i,j).
func (m *COO) Append(i, j int, v float64) {
	if i < 0 || m.r <= i {
		panic("sparse: row index out of range")
	}
	if j < 0 || m.c <= j {
		panic("sparse: column index out of range")
	}
	m.data = append(m.data, triplet{i, j, v})
}

// MulVecTo computes dst = A*x.
func (m *COO) MulVecTo(dst, x []float64) {
	checkMulVec(m.r, m.c, dst, x)
	for i := range dst {
		dst[i] = 0
	}
	for _, aij := range m.data {
		dst[aij.i] += aij.v * x[aij.j]
	}
}

// MulTransVecTo computes dst = A^T*x.
func (m *COO) MulTransVecTo(dst, x []float64) {
	checkMulVec(m.c, m.r, dst, x)
	for i := range dst {
		dst[i] = 0
	}
	for _, aij := range m.data {
		dst[aij.j] += aij.v * x[aij.i]
	}
}

// CSR returns the matrix in compressed sparse row format with duplicate
// entries summed. Explicit zeros are kept in the sparsity pattern.
func (m *COO) CSR() *CSR {
	data := make([]triplet, len(m.data))
	copy(data, m.data)
	sort.SliceStable(data, func(a, b int) bool {
		if data[a].i != data[b].i {
			return data[a].i < data[b].i
		}
		return data[a].j < data[b].j
	})
	rowPtr := make([]int, m.r+1)
	colIdx := make([]int, 0, len(data))
	val := make([]float64, 0, len(data))
	for k, t := range data {
		if k > 0 && data[k-1].i == t.i && data[k-1].j == t.j {
			val[len(val)-1] += t.v
			continue
		}
		colIdx = append(colIdx, t.j)
		val = append(val, t.v)
		rowPtr[t.i+1]++
	}
	for i := 0; i < m.r; i++ {
		rowPtr[i+1] += rowPtr[i]
	}
	return &CSR{r: m.r, c: m.c, RowPtr: rowPtr, ColIdx: colIdx, Val: val}
}
