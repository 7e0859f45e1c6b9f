// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import "gonum.org/v1/gonum/mat"

// SaddlePoint is the block matrix
//  [ A  B ]
//  [ D  0 ]
// of a velocity-pressure system. Vectors are laid out as [u; p] with u of
// length nu (rows of A) and p of length np (columns of B).
type SaddlePoint struct {
	A *CSR // nu×nu
	B *CSR // nu×np
	D *CSR // np×nu
}

// NewSaddlePoint returns the saddle-point matrix [A B; D 0]. It panics if
// the block dimensions are inconsistent.
func NewSaddlePoint(a, b, d *CSR) *SaddlePoint {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	dr, dc := d.Dims()
	if ar != ac || br != ar || dc != ac || dr != bc {
		panic("sparse: inconsistent saddle-point block dimensions")
	}
	return &SaddlePoint{A: a, B: b, D: d}
}

// Split returns the velocity and pressure block sizes.
func (m *SaddlePoint) Split() (nu, np int) {
	nu, _ = m.A.Dims()
	_, np = m.B.Dims()
	return nu, np
}

// Dims returns the dimensions of the whole block matrix.
func (m *SaddlePoint) Dims() (r, c int) {
	nu, np := m.Split()
	return nu + np, nu + np
}

// Format implements the Matrix interface.
func (m *SaddlePoint) Format() Format { return FormatSaddlePoint }

// Version implements the Matrix interface.
func (m *SaddlePoint) Version() uint64 {
	return m.A.Version() + m.B.Version() + m.D.Version()
}

// T returns the transpose of the receiver as an implicit mat.Matrix.
func (m *SaddlePoint) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// At returns the value of the element (i,j) of the block matrix.
func (m *SaddlePoint) At(i, j int) float64 {
	nu, np := m.Split()
	if i < 0 || nu+np <= i || j < 0 || nu+np <= j {
		panic("sparse: index out of range")
	}
	switch {
	case i < nu && j < nu:
		return m.A.At(i, j)
	case i < nu:
		return m.B.At(i, j-nu)
	case j < nu:
		return m.D.At(i-nu, j)
	}
	return 0
}

// MulVecTo computes dst = M*x.
func (m *SaddlePoint) MulVecTo(dst, x []float64) {
	nu, np := m.Split()
	checkMulVec(nu+np, nu+np, dst, x)
	u, p := x[:nu], x[nu:]
	du, dp := dst[:nu], dst[nu:]
	m.A.MulVecTo(du, u)
	tmp := make([]float64, nu)
	m.B.MulVecTo(tmp, p)
	for i := range du {
		du[i] += tmp[i]
	}
	m.D.MulVecTo(dp, u)
}
