// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CSR is a sparse matrix in compressed sparse row format. Column indices
// within a row are sorted in increasing order and unique.
type CSR struct {
	r, c int

	// RowPtr has length r+1. The entries of row i are stored in
	// ColIdx[RowPtr[i]:RowPtr[i+1]] and Val[RowPtr[i]:RowPtr[i+1]].
	RowPtr []int
	ColIdx []int
	Val    []float64

	version uint64
}

// NewCSR returns a CSR matrix using the provided slices as backing storage.
// It panics if the slices do not describe a valid r×c matrix with sorted
// column indices.
func NewCSR(r, c int, rowPtr, colIdx []int, val []float64) *CSR {
	if r < 0 || c < 0 {
		panic("sparse: negative dimension")
	}
	if len(rowPtr) != r+1 || rowPtr[0] != 0 {
		panic("sparse: malformed row pointer")
	}
	nnz := rowPtr[r]
	if len(colIdx) != nnz || len(val) != nnz {
		panic("sparse: mismatched nonzero count")
	}
	for i := 0; i < r; i++ {
		if rowPtr[i+1] < rowPtr[i] {
			panic("sparse: malformed row pointer")
		}
		for k := rowPtr[i]; k < rowPtr[i+1]; k++ {
			j := colIdx[k]
			if j < 0 || c <= j {
				panic("sparse: column index out of range")
			}
			if k > rowPtr[i] && colIdx[k-1] >= j {
				panic("sparse: unsorted column indices")
			}
		}
	}
	return &CSR{r: r, c: c, RowPtr: rowPtr, ColIdx: colIdx, Val: val}
}

// Identity returns the n×n identity matrix.
func Identity(n int) *CSR {
	rowPtr := make([]int, n+1)
	colIdx := make([]int, n)
	val := make([]float64, n)
	for i := 0; i < n; i++ {
		rowPtr[i+1] = i + 1
		colIdx[i] = i
		val[i] = 1
	}
	return &CSR{r: n, c: n, RowPtr: rowPtr, ColIdx: colIdx, Val: val}
}

// Dims returns the dimensions of the matrix.
func (m *CSR) Dims() (r, c int) { return m.r, m.c }

// Format implements the Matrix interface.
func (m *CSR) Format() Format { return FormatCSR }

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return m.RowPtr[m.r] }

// Version implements the Matrix interface.
func (m *CSR) Version() uint64 { return m.version }

// Touch records that Val has been modified in place. Solvers initialized
// with the matrix must be re-initialized afterwards.
func (m *CSR) Touch() { m.version++ }

// T returns the transpose of the receiver as an implicit mat.Matrix.
func (m *CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// Row returns views of the column indices and values of row i.
func (m *CSR) Row(i int) (cols []int, vals []float64) {
	if i < 0 || m.r <= i {
		panic("sparse: row index out of range")
	}
	lo, hi := m.RowPtr[i], m.RowPtr[i+1]
	return m.ColIdx[lo:hi], m.Val[lo:hi]
}

// index returns the position of the entry (i,j) in ColIdx and Val, or -1.
func (m *CSR) index(i, j int) int {
	lo, hi := m.RowPtr[i], m.RowPtr[i+1]
	k := lo + sort.SearchInts(m.ColIdx[lo:hi], j)
	if k < hi && m.ColIdx[k] == j {
		return k
	}
	return -1
}

// At returns the value of the element (i,j).
func (m *CSR) At(i, j int) float64 {
	if i < 0 || m.r <= i {
		panic("sparse: row index out of range")
	}
	if j < 0 || m.c <= j {
		panic("sparse: column index out of range")
	}
	if k := m.index(i, j); k >= 0 {
		return m.Val[k]
	}
	return 0
}

// Set sets the value of the stored element (i,j). It panics if (i,j) is
// not part of the sparsity pattern.
func (m *CSR) Set(i, j int, v float64) {
	if i < 0 || m.r <= i {
		panic("sparse: row index out of range")
	}
	if j < 0 || m.c <= j {
		panic("sparse: column index out of range")
	}
	k := m.index(i, j)
	if k < 0 {
		panic("sparse: element outside of sparsity pattern")
	}
	m.Val[k] = v
	m.version++
}

// MulVecTo computes dst = A*x.
func (m *CSR) MulVecTo(dst, x []float64) {
	checkMulVec(m.r, m.c, dst, x)
	for i := 0; i < m.r; i++ {
		var s float64
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			s += m.Val[k] * x[m.ColIdx[k]]
		}
		dst[i] = s
	}
}

// MulTransVecTo computes dst = A^T*x.
func (m *CSR) MulTransVecTo(dst, x []float64) {
	checkMulVec(m.c, m.r, dst, x)
	for i := range dst {
		dst[i] = 0
	}
	for i := 0; i < m.r; i++ {
		xi := x[i]
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			dst[m.ColIdx[k]] += m.Val[k] * xi
		}
	}
}

// Diagonal stores the main diagonal of the matrix into dst.
func (m *CSR) Diagonal(dst []float64) {
	n := min(m.r, m.c)
	if len(dst) != n {
		panic("sparse: dimension mismatch")
	}
	for i := 0; i < n; i++ {
		dst[i] = 0
		if k := m.index(i, i); k >= 0 {
			dst[i] = m.Val[k]
		}
	}
}

// DiagIndex returns for every row the position of its diagonal entry in
// ColIdx, or -1 if the diagonal entry is not stored.
func (m *CSR) DiagIndex() []int {
	d := make([]int, m.r)
	for i := range d {
		d[i] = -1
		if i < m.c {
			d[i] = m.index(i, i)
		}
	}
	return d
}

// Clone returns a deep copy of the matrix.
func (m *CSR) Clone() *CSR {
	return &CSR{
		r:      m.r,
		c:      m.c,
		RowPtr: append([]int(nil), m.RowPtr...),
		ColIdx: append([]int(nil), m.ColIdx...),
		Val:    append([]float64(nil), m.Val...),
	}
}

// Scale multiplies all entries by alpha.
func (m *CSR) Scale(alpha float64) {
	for k := range m.Val {
		m.Val[k] *= alpha
	}
	m.version++
}

// Transpose returns the explicit transpose of the matrix.
func (m *CSR) Transpose() *CSR {
	rowPtr := make([]int, m.c+1)
	for _, j := range m.ColIdx {
		rowPtr[j+1]++
	}
	for j := 0; j < m.c; j++ {
		rowPtr[j+1] += rowPtr[j]
	}
	next := append([]int(nil), rowPtr[:m.c]...)
	colIdx := make([]int, len(m.ColIdx))
	val := make([]float64, len(m.Val))
	for i := 0; i < m.r; i++ {
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			j := m.ColIdx[k]
			colIdx[next[j]] = i
			val[next[j]] = m.Val[k]
			next[j]++
		}
	}
	return &CSR{r: m.c, c: m.r, RowPtr: rowPtr, ColIdx: colIdx, Val: val}
}

// Submatrix returns the square matrix A[idx,idx]. The k-th row and column
// of the result correspond to row and column idx[k] of the receiver.
func (m *CSR) Submatrix(idx []int) *CSR {
	local := make(map[int]int, len(idx))
	for k, i := range idx {
		if i < 0 || m.r <= i || m.c <= i {
			panic("sparse: index out of range")
		}
		local[i] = k
	}
	coo := NewCOO(len(idx), len(idx))
	for k, i := range idx {
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			if l, ok := local[m.ColIdx[p]]; ok {
				coo.Append(k, l, m.Val[p])
			}
		}
	}
	return coo.CSR()
}

// Dense returns a dense copy of the matrix.
func (m *CSR) Dense() *mat.Dense {
	if m.r == 0 || m.c == 0 {
		panic("sparse: zero dimension")
	}
	d := mat.NewDense(m.r, m.c, nil)
	for i := 0; i < m.r; i++ {
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			d.Set(i, m.ColIdx[k], m.Val[k])
		}
	}
	return d
}

// Mul returns the product a*b.
func Mul(a, b *CSR) *CSR {
	if a.c != b.r {
		panic("sparse: dimension mismatch")
	}
	coo := NewCOO(a.r, b.c)
	for i := 0; i < a.r; i++ {
		for p := a.RowPtr[i]; p < a.RowPtr[i+1]; p++ {
			k, aik := a.ColIdx[p], a.Val[p]
			for q := b.RowPtr[k]; q < b.RowPtr[k+1]; q++ {
				coo.Append(i, b.ColIdx[q], aik*b.Val[q])
			}
		}
	}
	return coo.CSR()
}

// Kron returns the Kronecker product a⊗b.
func Kron(a, b *CSR) *CSR {
	coo := NewCOO(a.r*b.r, a.c*b.c)
	for i := 0; i < a.r; i++ {
		for p := a.RowPtr[i]; p < a.RowPtr[i+1]; p++ {
			j, aij := a.ColIdx[p], a.Val[p]
			for k := 0; k < b.r; k++ {
				for q := b.RowPtr[k]; q < b.RowPtr[k+1]; q++ {
					coo.Append(i*b.r+k, j*b.c+b.ColIdx[q], aij*b.Val[q])
				}
			}
		}
	}
	return coo.CSR()
}
