// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparse provides the storage formats, assembly builders and
// boundary filters consumed by the solvers in package solver.
//
// The formats are a small closed set tagged by Format. Preconditioners that
// need access to matrix entries branch on the tag instead of requiring a
// distinct type per storage layout.
package sparse

import "gonum.org/v1/gonum/mat"

// Format identifies a storage layout.
type Format int

const (
	// FormatCSR is compressed sparse row storage of scalar entries.
	FormatCSR Format = iota + 1
	// FormatBCSR is compressed sparse row storage of square dense blocks.
	FormatBCSR
	// FormatSaddlePoint is the 2×2 block matrix [A B; D 0].
	FormatSaddlePoint
)

func (f Format) String() string {
	switch f {
	case FormatCSR:
		return "csr"
	case FormatBCSR:
		return "bcsr"
	case FormatSaddlePoint:
		return "saddle-point"
	}
	return "unknown"
}

// Matrix is implemented by every storage format in this package.
type Matrix interface {
	mat.Matrix

	// Format returns the storage layout tag.
	Format() Format

	// MulVecTo computes dst = A*x.
	MulVecTo(dst, x []float64)

	// Version returns a counter that changes whenever the values or
	// structure of the matrix change.
	Version() uint64
}

var (
	_ Matrix = (*CSR)(nil)
	_ Matrix = (*BCSR)(nil)
	_ Matrix = (*SaddlePoint)(nil)
)

func checkMulVec(r, c int, dst, x []float64) {
	if c != len(x) {
		panic("sparse: dimension mismatch")
	}
	if r != len(dst) {
		panic("sparse: dimension mismatch")
	}
}
