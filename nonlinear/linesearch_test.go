// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nonlinear

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver"
	"github.com/vladimir-ch/solver/sparse"
)

// steepest returns the quadratic of the 1D Poisson matrix of order 8, the
// starting point e_0, the gradient there, the steepest descent direction
// and the exact minimizing step along it.
func steepest() (f *Quadratic, x, grad, dir []float64, alpha float64) {
	a := sparse.Poisson1D(8)
	f = &Quadratic{A: a}
	x = make([]float64, 8)
	x[0] = 1
	grad = make([]float64, 8)
	f.Gradient(grad, x)
	dir = make([]float64, 8)
	floats.ScaleTo(dir, -1, grad)
	ag := make([]float64, 8)
	a.MulVecTo(ag, grad)
	alpha = floats.Dot(grad, grad) / floats.Dot(grad, ag)
	return f, x, grad, dir, alpha
}

func TestLinesearchExactStep(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		ls    Linesearch
		iters int
	}{
		{ls: NewNewtonRaphson(), iters: 1},
		{ls: NewSecant(), iters: 2},
	} {
		f, x, grad, dir, want := steepest()
		alpha, st, err := test.ls.Search(f, x, dir, grad)
		require.NoError(t, err, test.ls.Name())
		assert.Equal(t, solver.StatusSuccess, st, test.ls.Name())
		assert.Equal(t, solver.StatusSuccess, test.ls.Status(), test.ls.Name())
		assert.InDelta(t, want, alpha, 1e-10*want, test.ls.Name())
		assert.Equal(t, test.iters, test.ls.NumIter(), test.ls.Name())

		px, pg := test.ls.Point()
		wantX := make([]float64, len(x))
		floats.AddScaledTo(wantX, x, alpha, dir)
		assert.InDeltaSlice(t, wantX, px, 1e-12, test.ls.Name())
		wantG := make([]float64, len(x))
		f.Gradient(wantG, wantX)
		assert.InDeltaSlice(t, wantG, pg, 1e-9, test.ls.Name())
	}
}

func TestMQCStrongWolfe(t *testing.T) {
	t.Parallel()
	f, x, grad, dir, _ := steepest()
	ls := NewMQC()
	alpha, st, err := ls.Search(f, x, dir, grad)
	require.NoError(t, err)
	require.Equal(t, solver.StatusSuccess, st)
	require.Greater(t, alpha, 0.0)

	d0 := floats.Dot(grad, dir)
	px, pg := ls.Point()
	assert.LessOrEqual(t, f.Value(px), f.Value(x)+ls.TolDecrease*alpha*d0)
	assert.LessOrEqual(t, math.Abs(floats.Dot(pg, dir)), ls.TolCurvature*math.Abs(d0))
}

func TestMQCInvalidTolerances(t *testing.T) {
	t.Parallel()
	f, x, grad, dir, _ := steepest()
	ls := NewMQC()
	ls.TolDecrease = 0.5
	ls.TolCurvature = 0.1
	_, st, err := ls.Search(f, x, dir, grad)
	var ce *solver.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, solver.StatusUndefined, st)
}

func TestLinesearchNotDescent(t *testing.T) {
	t.Parallel()
	for _, ls := range []Linesearch{NewNewtonRaphson(), NewSecant(), NewMQC()} {
		f, x, grad, _, _ := steepest()
		_, st, err := ls.Search(f, x, grad, grad)
		assert.ErrorIs(t, err, ErrNotDescent, ls.Name())
		assert.Equal(t, solver.StatusAborted, st, ls.Name())
	}
}

func TestFixedStep(t *testing.T) {
	t.Parallel()
	f, x, grad, _, _ := steepest()
	ls := NewFixedStep(0.25)
	alpha, st, err := ls.Search(f, x, grad, grad)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
	assert.Equal(t, 0.25, alpha)
	px, _ := ls.Point()
	want := make([]float64, len(x))
	floats.AddScaledTo(want, x, 0.25, grad)
	assert.Equal(t, want, px)

	_, _, err = ls.Search(f, x, grad[:3], grad)
	assert.ErrorIs(t, err, solver.ErrDimensionMismatch)
	assert.Equal(t, solver.StatusUndefined, ls.Status())
}

func TestLinesearchMaxIter(t *testing.T) {
	t.Parallel()
	f, x, grad, dir, _ := steepest()
	ls := NewSecant()
	ls.MaxIter = 1
	_, st, err := ls.Search(f, x, dir, grad)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusMaxIter, st)
	assert.Equal(t, 1, ls.NumIter())
}

func TestLinesearchConfigure(t *testing.T) {
	t.Parallel()
	s := NewSecant()
	require.NoError(t, s.Configure(map[string]string{"sigma_0": "0.5", "max_iter": "7", "tol_rel": "1e-6"}))
	assert.Equal(t, 0.5, s.Sigma0)
	assert.Equal(t, 7, s.MaxIter)
	assert.Equal(t, 1e-6, s.TolRel)

	m := NewMQC()
	require.NoError(t, m.Configure(map[string]string{"tol_decrease": "1e-3", "tol_curvature": "0.9", "alpha_0": "2"}))
	assert.Equal(t, 1e-3, m.TolDecrease)
	assert.Equal(t, 0.9, m.TolCurvature)
	assert.Equal(t, 2.0, m.Alpha0)

	fs := NewFixedStep(1)
	require.NoError(t, fs.Configure(map[string]string{"step": "0.1"}))
	assert.Equal(t, 0.1, fs.Step)

	var ce *solver.ConfigError
	err := NewNewtonRaphson().Configure(map[string]string{"sigma_0": "1"})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "sigma_0", ce.Key)
	err = s.Configure(map[string]string{"max_iter": "many"})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "max_iter", ce.Key)
}

func TestLinesearchEvents(t *testing.T) {
	t.Parallel()
	f, x, grad, dir, _ := steepest()
	ls := NewSecant()
	var events []solver.Event
	ls.SetListener(solver.ListenerFunc(func(e solver.Event) { events = append(events, e) }))
	_, _, err := ls.Search(f, x, dir, grad)
	require.NoError(t, err)

	require.Len(t, events, 2+ls.NumIter()+1)
	assert.Equal(t, solver.EventStartSolve, events[0].Kind)
	end := events[len(events)-1]
	assert.Equal(t, solver.EventEndSolve, end.Kind)
	assert.Equal(t, solver.StatusSuccess, end.Status)
	for _, e := range events[1 : len(events)-1] {
		assert.Equal(t, solver.EventDefect, e.Kind)
		assert.Equal(t, "SecantLinesearch", e.Solver)
		assert.Equal(t, -1, e.Level)
	}
}
