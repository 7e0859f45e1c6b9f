// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

// Poisson1D returns the n×n finite-difference discretization of -u'' on
// the unit interval with homogeneous Dirichlet boundary conditions, using n
// interior nodes and mesh width h = 1/(n+1).
func Poisson1D(n int) *CSR {
	h := 1 / float64(n+1)
	s := 1 / (h * h)
	coo := NewCOO(n, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			coo.Append(i, i-1, -s)
		}
		coo.Append(i, i, 2*s)
		if i < n-1 {
			coo.Append(i, i+1, -s)
		}
	}
	return coo.CSR()
}

// Poisson2D returns the five-point discretization of -Δu on the unit square
// with homogeneous Dirichlet boundary conditions on an n×n grid of interior
// nodes numbered row by row.
func Poisson2D(n int) *CSR {
	h := 1 / float64(n+1)
	s := 1 / (h * h)
	coo := NewCOO(n*n, n*n)
	for iy := 0; iy < n; iy++ {
		for ix := 0; ix < n; ix++ {
			i := iy*n + ix
			coo.Append(i, i, 4*s)
			if ix > 0 {
				coo.Append(i, i-1, -s)
			}
			if ix < n-1 {
				coo.Append(i, i+1, -s)
			}
			if iy > 0 {
				coo.Append(i, i-n, -s)
			}
			if iy < n-1 {
				coo.Append(i, i+n, -s)
			}
		}
	}
	return coo.CSR()
}

// Prolongation1D returns the linear interpolation from nc interior coarse
// nodes to the 2*nc+1 interior fine nodes of a uniformly refined interval.
func Prolongation1D(nc int) *CSR {
	nf := 2*nc + 1
	p := NewDOK(nf, nc)
	for j := 0; j < nc; j++ {
		f := 2*j + 1
		p.SetAt(f, j, 1)
		p.SetAt(f-1, j, 0.5)
		p.SetAt(f+1, j, 0.5)
	}
	return p.CSR()
}

// Restriction1D returns the full-weighting restriction ½·Pᵀ matching
// Prolongation1D(nc).
func Restriction1D(nc int) *CSR {
	r := Prolongation1D(nc).Transpose()
	r.Scale(0.5)
	return r
}

// Prolongation2D returns the bilinear interpolation between the grids of
// Poisson2D(nc) and Poisson2D(2*nc+1).
func Prolongation2D(nc int) *CSR {
	p := Prolongation1D(nc)
	return Kron(p, p)
}

// Restriction2D returns the full-weighting restriction ¼·Pᵀ matching
// Prolongation2D(nc).
func Restriction2D(nc int) *CSR {
	r := Prolongation2D(nc).Transpose()
	r.Scale(0.25)
	return r
}
