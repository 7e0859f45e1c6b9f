// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimir-ch/solver"
	"github.com/vladimir-ch/solver/multigrid"
	"github.com/vladimir-ch/solver/sparse"
)

const mgDoc = `
linsolver:
  type: fgmres
  krylov_dim: 16
  max_iter: 50
  precon: mg
mg:
  type: mg
  cycle: w
  smoother: jac
  coarse: direct
jac:
  type: jacobi
  omega: 0.7
direct:
  type: direct
`

// poissonStock returns a 1D Poisson stock with levels levels and nc
// unknowns on the coarsest one.
func poissonStock(nc, levels int) *Stock {
	sizes := make([]int, levels)
	sizes[levels-1] = nc
	for k := levels - 2; k >= 0; k-- {
		sizes[k] = 2*sizes[k+1] + 1
	}
	s := &Stock{}
	for k, n := range sizes {
		lv := StockLevel{A: sparse.Poisson1D(n)}
		if k < levels-1 {
			lv.P = sparse.Prolongation1D(sizes[k+1])
			lv.R = sparse.Restriction1D(sizes[k+1])
		}
		s.Levels = append(s.Levels, lv)
	}
	return s
}

func mustParse(t *testing.T, doc string) PropertyMap {
	t.Helper()
	pm, err := ParseYAML(strings.NewReader(doc))
	require.NoError(t, err)
	return pm
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func TestParseYAML(t *testing.T) {
	pm := mustParse(t, mgDoc)
	assert.Equal(t, []string{"direct", "jac", "linsolver", "mg"}, pm.Names())
	assert.Equal(t, Section{"type": "fgmres", "krylov_dim": "16", "max_iter": "50", "precon": "mg"}, pm["linsolver"])
	assert.Equal(t, "0.7", pm["jac"]["omega"])

	pm = mustParse(t, "s:\n  Type: PCG\n")
	assert.Equal(t, Section{"type": "PCG"}, pm["s"])

	pm = mustParse(t, "")
	assert.Empty(t, pm)

	_, err := ParseYAML(strings.NewReader("s:\n  type: pcg\n  precon: [a, b]\n"))
	var ce *solver.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "s", ce.Section)
	assert.Equal(t, "precon", ce.Key)
	assert.Contains(t, ce.Reason, "line 3")

	_, err = ParseYAML(strings.NewReader("- a\n- b\n"))
	assert.Error(t, err)
}

func TestFromMap(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(mgDoc)))
	pm, err := FromMap(v.AllSettings())
	require.NoError(t, err)
	assert.Equal(t, mustParse(t, mgDoc), pm)

	_, err = FromMap(map[string]any{"s": 1})
	assert.Error(t, err)
	_, err = FromMap(map[string]any{"s": map[string]any{"k": []any{1, 2}}})
	var ce *solver.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "k", ce.Key)
}

func TestSection(t *testing.T) {
	pm := mustParse(t, mgDoc)
	s, err := pm.Section("jac")
	require.NoError(t, err)
	assert.Equal(t, Section{"omega": "0.7"}, s.Without("type"))
	assert.Equal(t, "jacobi", s["type"], "Without must not modify the section")

	_, err = pm.Section("nope")
	var ce *solver.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "nope", ce.Section)
}

func TestBuildMultiGrid(t *testing.T) {
	stock := poissonStock(7, 3)
	s, err := NewFactory(mustParse(t, mgDoc), stock).Build("linsolver")
	require.NoError(t, err)

	var names []string
	solver.Walk(s, func(s solver.Solver) { names = append(names, s.Name()) })
	assert.Equal(t, []string{"FGMRES", "MultiGrid", "Jacobi", "Jacobi", "Jacobi", "Direct"}, names)

	it := s.(*solver.Iterative)
	assert.Equal(t, 50, it.MaxIter)
	mg := it.Precond.(*multigrid.MultiGrid)
	assert.Equal(t, multigrid.W, mg.Cycle)
	h := mg.Hierarchy()
	require.Len(t, h.Levels, 3)
	assert.Nil(t, h.Levels[2].P)
	assert.Same(t, h.Levels[0].PreSmoother, h.Levels[0].PostSmoother)
	assert.NotSame(t, h.Levels[0].PreSmoother, h.Levels[1].PreSmoother)

	require.NoError(t, solver.Init(s))
	defer solver.Done(s)
	a := stock.Levels[0].A
	n, _ := a.Dims()
	x := make([]float64, n)
	st, err := solver.Solve(s, x, ones(n), a, nil)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
	assert.Less(t, it.NumIter(), 15)
}

func TestBuildMultiGridOptions(t *testing.T) {
	doc := `
mg:
  type: mg
  levels: 2
  pre_steps: 2
  post_steps: 0
  pre_smoother: ssor
  post_smoother: none
  coarse: pcg
  adapt_cgc: min_energy
ssor:
  type: ssor
  omega: 1.2
pcg:
  type: pcg
  precon: jac
jac:
  type: jacobi
`
	s, err := NewFactory(mustParse(t, doc), poissonStock(3, 4)).Build("mg")
	require.NoError(t, err)
	mg := s.(*multigrid.MultiGrid)
	assert.Equal(t, multigrid.V, mg.Cycle)
	h := mg.Hierarchy()
	require.Len(t, h.Levels, 2)
	assert.Equal(t, 2, h.Levels[0].PreSteps)
	assert.Equal(t, 0, h.Levels[0].PostSteps)
	assert.Equal(t, "SSOR", h.Levels[0].PreSmoother.Name())
	assert.Nil(t, h.Levels[0].PostSmoother)
	assert.Nil(t, h.Levels[1].P)
	n, _ := h.Levels[1].A.Dims()
	assert.Equal(t, 15, n, "coarsest level of a two-level cycle")
	assert.Equal(t, "PCG", h.Coarse.Name())
}

func TestBuildIteratives(t *testing.T) {
	names := map[string]string{
		"pcg":        "PCG",
		"groppcg":    "GroppPCG",
		"pipepcg":    "PipePCG",
		"pcr":        "PCR",
		"pmr":        "PMR",
		"bicg":       "BiCG",
		"bicgstab":   "BiCGStab",
		"bicgstabl":  "BiCGStabL",
		"rbicgstab":  "RBiCGStab",
		"gmres":      "GMRES",
		"fgmres":     "FGMRES",
		"idrs":       "IDRS",
		"rgcr":       "RGCR",
		"chebyshev":  "Chebyshev",
		"richardson": "Richardson",
	}
	a := sparse.Poisson1D(16)
	for typ, name := range names {
		pm := PropertyMap{
			"s":   {"type": typ, "precon": "jac", "max_iter": "2000"},
			"jac": {"type": "jacobi"},
		}
		s, err := NewFactory(pm, NewStock(a, nil)).Build("s")
		require.NoError(t, err, typ)
		assert.Equal(t, name, s.Name(), typ)

		require.NoError(t, solver.Init(s), typ)
		x := make([]float64, 16)
		st, err := solver.Solve(s, x, ones(16), a, nil)
		assert.NoError(t, err, typ)
		assert.True(t, st.Acceptable(), "%s: %v", typ, st)
		solver.Done(s)
	}
}

func TestBuildPCGNR(t *testing.T) {
	pm := PropertyMap{
		"s":   {"type": "pcgnr", "precon_l": "jac", "precon_r": "none", "tol_rel": "1e-10"},
		"jac": {"type": "jacobi", "omega": "1"},
	}
	a := sparse.Poisson1D(12)
	s, err := NewFactory(pm, NewStock(a, nil)).Build("s")
	require.NoError(t, err)
	it := s.(*solver.Iterative)
	assert.Equal(t, "PCGNR", it.Name())
	assert.NotNil(t, it.PrecondL)
	assert.Nil(t, it.PrecondR)
	assert.Equal(t, 1e-10, it.TolRel)

	require.NoError(t, solver.Init(s))
	defer solver.Done(s)
	x := make([]float64, 12)
	st, err := solver.Solve(s, x, ones(12), a, nil)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
}

func TestBuildPreconditioners(t *testing.T) {
	for _, test := range []struct {
		sec  Section
		name string
	}{
		{Section{"type": "jacobi", "omega": "0.5"}, "Jacobi"},
		{Section{"type": "scale", "omega": "2"}, "Scale"},
		{Section{"type": "sor", "omega": "1.5"}, "SOR"},
		{Section{"type": "ssor"}, "SSOR"},
		{Section{"type": "ilu", "fill_in": "1"}, "ILU"},
		{Section{"type": "polynomial", "degree": "4", "omega": "0.5"}, "Polynomial"},
		{Section{"type": "direct"}, "Direct"},
	} {
		pm := PropertyMap{"s": {"type": "pcg", "precon": "p"}, "p": test.sec}
		s, err := NewFactory(pm, NewStock(sparse.Poisson1D(10), nil)).Build("s")
		require.NoError(t, err, test.name)
		assert.Equal(t, test.name, s.(*solver.Iterative).Precond.Name())
	}
}

func TestBuildSchwarz(t *testing.T) {
	doc := `
s:
  type: gmres
  max_iter: 200
  precon: dd
dd:
  type: schwarz
  subdomains: 4
  overlap: 2
  local: ilu
ilu:
  type: ilu
`
	a := sparse.Poisson1D(40)
	s, err := NewFactory(mustParse(t, doc), NewStock(a, nil)).Build("s")
	require.NoError(t, err)
	dd := s.(*solver.Iterative).Precond.(*solver.Schwarz)
	require.Len(t, dd.Subdomains, 4)
	assert.False(t, dd.Weighted)
	assert.Equal(t, 0, dd.Subdomains[0][0])
	assert.Equal(t, 39, dd.Subdomains[3][len(dd.Subdomains[3])-1])
	require.NotNil(t, dd.NewLocal)
	assert.Equal(t, "ILU", dd.NewLocal(sparse.Poisson1D(5)).Name())

	require.NoError(t, solver.Init(s))
	defer solver.Done(s)
	x := make([]float64, 40)
	st, err := solver.Solve(s, x, ones(40), a, nil)
	require.NoError(t, err)
	assert.Equal(t, solver.StatusSuccess, st)
}

func TestContiguous(t *testing.T) {
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {2, 3, 4, 5, 6}, {5, 6, 7, 8, 9}}, contiguous(10, 3, 1))
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, contiguous(4, 2, 0))
	assert.Equal(t, [][]int{{0, 1, 2}}, contiguous(3, 1, 5))
}

func TestBuildErrors(t *testing.T) {
	for _, test := range []struct {
		name    string
		doc     string
		section string
		key     string
		reason  string
	}{
		{"missing section", "s:\n  type: pcg\n  precon: nope\n", "nope", "", "no such section"},
		{"missing type", "s:\n  precon: a\n", "s", "type", "missing"},
		{"unknown type", "s:\n  type: amg\n", "s", "type", "unknown solver type"},
		{"unknown iterative key", "s:\n  type: pcg\n  bogus: 1\n", "s", "bogus", "unknown key"},
		{"bad iterative value", "s:\n  type: gmres\n  max_iter: many\n", "s", "max_iter", ""},
		{"unknown precond key", "s:\n  type: jacobi\n  fill_in: 1\n", "s", "fill_in", "unknown key"},
		{"bad precond value", "s:\n  type: ssor\n  omega: x\n", "s", "omega", ""},
		{"cycle", "a:\n  type: fgmres\n  precon: b\nb:\n  type: pcg\n  precon: a\n", "a", "", "a -> b -> a"},
		{"self reference", "a:\n  type: pcg\n  precon: a\n", "a", "", "a -> a"},
		{"zero levels", "s:\n  type: mg\n  levels: 0\n", "s", "levels", "invalid value"},
		{"negative steps", "s:\n  type: mg\n  pre_steps: -1\n", "s", "pre_steps", "invalid value"},
		{"unknown mg key", "s:\n  type: mg\n  smoothr: jac\n", "s", "smoothr", "unknown key"},
		{"bad cycle", "s:\n  type: mg\n  cycle: x\n", "s", "cycle", ""},
		{"too many subdomains", "s:\n  type: schwarz\n  subdomains: 100\n", "s", "subdomains", "100 subdomains"},
		{"negative overlap", "s:\n  type: schwarz\n  overlap: -1\n", "s", "overlap", "negative overlap"},
		{"bad local", "s:\n  type: schwarz\n  local: l\nl:\n  type: nope\n", "l", "type", "unknown solver type"},
	} {
		_, err := NewFactory(mustParse(t, test.doc), poissonStock(3, 2)).Build("s")
		if test.name == "cycle" || test.name == "self reference" {
			_, err = NewFactory(mustParse(t, test.doc), poissonStock(3, 2)).Build("a")
		}
		var ce *solver.ConfigError
		require.ErrorAs(t, err, &ce, test.name)
		assert.True(t, solver.IsStructural(err), test.name)
		assert.Equal(t, test.section, ce.Section, test.name)
		assert.Equal(t, test.key, ce.Key, test.name)
		assert.Contains(t, ce.Reason, test.reason, test.name)
	}

	_, err := NewFactory(mustParse(t, mgDoc), &Stock{}).Build("linsolver")
	assert.True(t, solver.IsStructural(err))

	pm := PropertyMap{"s": {"type": "pcg"}}
	_, err = NewFactory(pm, nil).Build("s")
	assert.True(t, errors.As(err, new(*solver.ConfigError)))
}
