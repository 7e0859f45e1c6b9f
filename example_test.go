// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver_test

import (
	"fmt"
	"math"

	"github.com/vladimir-ch/solver"
	"github.com/vladimir-ch/solver/sparse"
)

// L2Projector returns the mass matrix of piecewise linear elements on n
// uniform cells of [x0,x1] and the load vector of f.
func L2Projector(x0, x1 float64, n int, f func(float64) float64) (*sparse.CSR, []float64) {
	h := (x1 - x0) / float64(n)
	m := sparse.NewDOK(n+1, n+1)
	for i := 0; i < n; i++ {
		m.AddAt(i, i, h/3)
		m.AddAt(i+1, i+1, h/3)
		m.AddAt(i, i+1, h/6)
		m.AddAt(i+1, i, h/6)
	}

	b := make([]float64, n+1)
	b[0] = f(x0) * h / 2
	for i := 1; i < n; i++ {
		b[i] = f(x0+float64(i)*h) * h
	}
	b[n] = f(x1) * h / 2

	return m.CSR(), b
}

func ExampleNewPCG() {
	a, b := L2Projector(0, 1, 10, func(x float64) float64 {
		return x * math.Sin(x)
	})
	s := solver.NewPCG(a, nil, solver.NewJacobi(a, nil, 1))
	if err := solver.Init(s); err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer solver.Done(s)

	x := make([]float64, len(b))
	st, err := solver.Solve(s, x, b, a, nil)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Status:", st)
	fmt.Println("Converged:", s.DefCur() <= s.TolRel*s.DefInit())

	// Output:
	// Status: success
	// Converged: true
}

func ExampleSolve() {
	a := sparse.Poisson1D(5)
	want := []float64{1, 2, 3, 2, 1}
	b := make([]float64, 5)
	a.MulVecTo(b, want)

	s := solver.NewGMRES(a, nil, solver.NewILU(a, nil, 0), 0)
	if err := solver.Init(s); err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer solver.Done(s)

	x := make([]float64, 5)
	st, _ := solver.Solve(s, x, b, a, nil)
	fmt.Printf("%v %.6f\n", st, x)

	// Output:
	// success [1.000000 2.000000 3.000000 2.000000 1.000000]
}
