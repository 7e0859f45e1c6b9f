// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// BCSR is a sparse matrix in block compressed sparse row format. Every
// stored entry is a dense bs×bs block kept in row-major order.
type BCSR struct {
	nbr, nbc, bs int

	// RowPtr, ColIdx index block rows and block columns. The block at
	// position k occupies Val[k*bs*bs:(k+1)*bs*bs].
	RowPtr []int
	ColIdx []int
	Val    []float64

	version uint64
}

// NewBCSR returns a BCSR matrix with nbr×nbc blocks of size bs×bs using the
// provided slices as backing storage.
func NewBCSR(nbr, nbc, bs int, rowPtr, colIdx []int, val []float64) *BCSR {
	if bs <= 0 {
		panic("sparse: block size not positive")
	}
	if len(rowPtr) != nbr+1 || rowPtr[0] != 0 {
		panic("sparse: malformed row pointer")
	}
	nnzb := rowPtr[nbr]
	if len(colIdx) != nnzb || len(val) != nnzb*bs*bs {
		panic("sparse: mismatched nonzero count")
	}
	for i := 0; i < nbr; i++ {
		for k := rowPtr[i]; k < rowPtr[i+1]; k++ {
			if colIdx[k] < 0 || nbc <= colIdx[k] {
				panic("sparse: column index out of range")
			}
			if k > rowPtr[i] && colIdx[k-1] >= colIdx[k] {
				panic("sparse: unsorted column indices")
			}
		}
	}
	return &BCSR{nbr: nbr, nbc: nbc, bs: bs, RowPtr: rowPtr, ColIdx: colIdx, Val: val}
}

// Dims returns the scalar dimensions of the matrix.
func (m *BCSR) Dims() (r, c int) { return m.nbr * m.bs, m.nbc * m.bs }

// BlockDims returns the number of block rows and block columns.
func (m *BCSR) BlockDims() (r, c int) { return m.nbr, m.nbc }

// BlockSize returns the size of the square blocks.
func (m *BCSR) BlockSize() int { return m.bs }

// Format implements the Matrix interface.
func (m *BCSR) Format() Format { return FormatBCSR }

// Version implements the Matrix interface.
func (m *BCSR) Version() uint64 { return m.version }

// Touch records that Val has been modified in place.
func (m *BCSR) Touch() { m.version++ }

// T returns the transpose of the receiver as an implicit mat.Matrix.
func (m *BCSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// Block returns a view of the block (bi,bj), or nil if it is not stored.
func (m *BCSR) Block(bi, bj int) []float64 {
	lo, hi := m.RowPtr[bi], m.RowPtr[bi+1]
	k := lo + sort.SearchInts(m.ColIdx[lo:hi], bj)
	if k < hi && m.ColIdx[k] == bj {
		bb := m.bs * m.bs
		return m.Val[k*bb : (k+1)*bb]
	}
	return nil
}

// At returns the value of the scalar element (i,j).
func (m *BCSR) At(i, j int) float64 {
	r, c := m.Dims()
	if i < 0 || r <= i {
		panic("sparse: row index out of range")
	}
	if j < 0 || c <= j {
		panic("sparse: column index out of range")
	}
	b := m.Block(i/m.bs, j/m.bs)
	if b == nil {
		return 0
	}
	return b[(i%m.bs)*m.bs+j%m.bs]
}

// MulVecTo computes dst = A*x.
func (m *BCSR) MulVecTo(dst, x []float64) {
	r, c := m.Dims()
	checkMulVec(r, c, dst, x)
	bs, bb := m.bs, m.bs*m.bs
	for i := range dst {
		dst[i] = 0
	}
	for bi := 0; bi < m.nbr; bi++ {
		y := dst[bi*bs : (bi+1)*bs]
		for k := m.RowPtr[bi]; k < m.RowPtr[bi+1]; k++ {
			blk := m.Val[k*bb : (k+1)*bb]
			xj := x[m.ColIdx[k]*bs : (m.ColIdx[k]+1)*bs]
			for p := 0; p < bs; p++ {
				var s float64
				for q := 0; q < bs; q++ {
					s += blk[p*bs+q] * xj[q]
				}
				y[p] += s
			}
		}
	}
}

// Diagonal stores the scalar main diagonal of the matrix into dst.
func (m *BCSR) Diagonal(dst []float64) {
	r, c := m.Dims()
	if len(dst) != min(r, c) {
		panic("sparse: dimension mismatch")
	}
	for i := range dst {
		dst[i] = m.At(i, i)
	}
}

// CSR returns the matrix expanded to scalar compressed sparse row format.
func (m *BCSR) CSR() *CSR {
	r, c := m.Dims()
	coo := NewCOO(r, c)
	bs, bb := m.bs, m.bs*m.bs
	for bi := 0; bi < m.nbr; bi++ {
		for k := m.RowPtr[bi]; k < m.RowPtr[bi+1]; k++ {
			bj := m.ColIdx[k]
			blk := m.Val[k*bb : (k+1)*bb]
			for p := 0; p < bs; p++ {
				for q := 0; q < bs; q++ {
					coo.Append(bi*bs+p, bj*bs+q, blk[p*bs+q])
				}
			}
		}
	}
	return coo.CSR()
}
