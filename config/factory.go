// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/vladimir-ch/solver"
	"github.com/vladimir-ch/solver/multigrid"
	"github.com/vladimir-ch/solver/sparse"
)

// StockLevel holds the operators of one level of a Stock.
type StockLevel struct {
	A      solver.Operator
	Filter solver.Filter
	// P prolongates from the next coarser level to this one and R
	// restricts to it. Both are nil on the coarsest level, and R may be
	// nil if P is a solver.TransOperator.
	P, R solver.Operator
}

// Stock is the set of operators solvers are built on, the finest level
// first. Solvers that do not cycle over levels are built on the finest
// level.
type Stock struct {
	Levels []StockLevel
}

// NewStock returns a single-level stock.
func NewStock(a solver.Operator, f solver.Filter) *Stock {
	return &Stock{Levels: []StockLevel{{A: a, Filter: f}}}
}

// Factory builds solver trees described by a PropertyMap on the operators
// of a Stock.
//
// The type key of a section selects the solver. Iterative solvers are
// pcg, groppcg, pipepcg, pcr, pmr, pcgnr, bicg, bicgstab, bicgstabl,
// rbicgstab, gmres, fgmres, idrs, rgcr, chebyshev and richardson; their
// preconditioner is named by the precon key (precon_l and precon_r for
// pcgnr) and all other keys are passed to Configure. Preconditioners are
// jacobi, scale, sor, ssor, ilu, polynomial, direct and schwarz. The type
// mg builds a multigrid cycle over the levels of the stock.
type Factory struct {
	Props PropertyMap
	Stock *Stock
}

// NewFactory returns a Factory for the properties p and the stock s.
func NewFactory(p PropertyMap, s *Stock) *Factory {
	return &Factory{Props: p, Stock: s}
}

// Build returns the solver described by the section name, built on the
// finest level of the stock.
func (f *Factory) Build(name string) (solver.Solver, error) {
	if f.Stock == nil || len(f.Stock.Levels) == 0 {
		return nil, &solver.ConfigError{Section: name, Reason: "empty matrix stock"}
	}
	return f.build(name, 0, nil)
}

func (f *Factory) build(name string, level int, path []string) (solver.Solver, error) {
	for _, p := range path {
		if p == name {
			return nil, &solver.ConfigError{Section: name, Reason: "cyclic reference: " + strings.Join(append(path, name), " -> ")}
		}
	}
	path = append(path, name)
	sec, err := f.Props.Section(name)
	if err != nil {
		return nil, err
	}
	typ, ok := sec["type"]
	if !ok {
		return nil, &solver.ConfigError{Section: name, Key: "type", Reason: "missing"}
	}
	typ = strings.ToLower(typ)
	if typ == "mg" {
		return f.multigrid(name, sec, level, path)
	}
	if newIter, ok := iteratives[typ]; ok {
		return f.iterative(name, sec, level, path, newIter)
	}
	if pre, ok := preconds[typ]; ok {
		return f.precond(name, sec, level, path, pre.keys, pre.new)
	}
	return nil, &solver.ConfigError{Section: name, Key: "type", Reason: fmt.Sprintf("unknown solver type %q", typ)}
}

// child builds the solver named by key in sec. It returns nil if the key
// is absent or set to none.
func (f *Factory) child(sec Section, key string, level int, path []string) (solver.Solver, error) {
	name, ok := sec[key]
	if !ok || strings.EqualFold(name, "none") {
		return nil, nil
	}
	return f.build(name, level, path)
}

type newIterative func(a solver.Operator, fl solver.Filter, p solver.Solver) *solver.Iterative

var iteratives = map[string]newIterative{
	"pcg":       solver.NewPCG,
	"groppcg":   solver.NewGroppPCG,
	"pipepcg":   solver.NewPipePCG,
	"pcr":       solver.NewPCR,
	"pmr":       solver.NewPMR,
	"bicg":      solver.NewBiCG,
	"rbicgstab": solver.NewRBiCGStab,
	"chebyshev": solver.NewChebyshev,
	"bicgstab": func(a solver.Operator, fl solver.Filter, p solver.Solver) *solver.Iterative {
		return solver.NewBiCGStab(a, fl, p, solver.PrecondRight)
	},
	"bicgstabl": func(a solver.Operator, fl solver.Filter, p solver.Solver) *solver.Iterative {
		return solver.NewBiCGStabL(a, fl, p, 2)
	},
	"gmres": func(a solver.Operator, fl solver.Filter, p solver.Solver) *solver.Iterative {
		return solver.NewGMRES(a, fl, p, 0)
	},
	"fgmres": func(a solver.Operator, fl solver.Filter, p solver.Solver) *solver.Iterative {
		return solver.NewFGMRES(a, fl, p, 0)
	},
	"idrs": func(a solver.Operator, fl solver.Filter, p solver.Solver) *solver.Iterative {
		return solver.NewIDRS(a, fl, p, 4)
	},
	"rgcr": func(a solver.Operator, fl solver.Filter, p solver.Solver) *solver.Iterative {
		return solver.NewRGCR(a, fl, p, 0)
	},
	"richardson": func(a solver.Operator, fl solver.Filter, p solver.Solver) *solver.Iterative {
		return solver.NewRichardson(a, fl, p, 1)
	},
	"pcgnr": nil,
}

func (f *Factory) iterative(name string, sec Section, level int, path []string, newIter newIterative) (solver.Solver, error) {
	lv := f.Stock.Levels[level]
	var s *solver.Iterative
	if newIter == nil {
		pl, err := f.child(sec, "precon_l", level, path)
		if err != nil {
			return nil, err
		}
		pr, err := f.child(sec, "precon_r", level, path)
		if err != nil {
			return nil, err
		}
		s = solver.NewPCGNR(lv.A, lv.Filter, pl, pr)
	} else {
		p, err := f.child(sec, "precon", level, path)
		if err != nil {
			return nil, err
		}
		s = newIter(lv.A, lv.Filter, p)
	}
	if err := s.Configure(sec.Without("type", "precon", "precon_l", "precon_r")); err != nil {
		return nil, rename(err, name)
	}
	return s, nil
}

// precondParams holds the parameters understood by the preconditioner
// constructors.
type precondParams struct {
	omega  float64
	degree int
	fillIn int
}

type newPrecond func(a solver.Operator, fl solver.Filter, p precondParams) solver.Solver

// preconds maps the preconditioner types to their constructors and the
// parameter keys they accept.
var preconds = map[string]struct {
	keys []string
	new  newPrecond
}{
	"jacobi": {[]string{"omega"}, func(a solver.Operator, fl solver.Filter, p precondParams) solver.Solver {
		return solver.NewJacobi(a, fl, p.omega)
	}},
	"scale": {[]string{"omega"}, func(a solver.Operator, fl solver.Filter, p precondParams) solver.Solver {
		return solver.NewScale(a, fl, p.omega)
	}},
	"sor": {[]string{"omega"}, func(a solver.Operator, fl solver.Filter, p precondParams) solver.Solver {
		return solver.NewSOR(a, fl, p.omega)
	}},
	"ssor": {[]string{"omega"}, func(a solver.Operator, fl solver.Filter, p precondParams) solver.Solver {
		return solver.NewSSOR(a, fl, p.omega)
	}},
	"ilu": {[]string{"fill_in"}, func(a solver.Operator, fl solver.Filter, p precondParams) solver.Solver {
		return solver.NewILU(a, fl, p.fillIn)
	}},
	"polynomial": {[]string{"degree", "omega"}, func(a solver.Operator, fl solver.Filter, p precondParams) solver.Solver {
		return solver.NewPolynomial(a, fl, p.degree, p.omega)
	}},
	"direct": {nil, func(a solver.Operator, fl solver.Filter, _ precondParams) solver.Solver {
		return solver.NewDirect(a, fl)
	}},
	"schwarz": {},
}

func (f *Factory) precond(name string, sec Section, level int, path []string, keys []string, newPre newPrecond) (solver.Solver, error) {
	lv := f.Stock.Levels[level]
	if newPre == nil {
		return f.schwarz(name, sec, level, path)
	}
	p := precondParams{omega: 1, degree: 3}
	kv := sec.Without("type")
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		if !slices.Contains(keys, k) {
			return nil, &solver.ConfigError{Section: name, Key: k, Reason: "unknown key"}
		}
		v := kv[k]
		var err error
		switch k {
		case "omega":
			p.omega, err = strconv.ParseFloat(v, 64)
		case "degree":
			p.degree, err = strconv.Atoi(v)
		case "fill_in":
			p.fillIn, err = strconv.Atoi(v)
		}
		if err != nil {
			return nil, &solver.ConfigError{Section: name, Key: k, Reason: err.Error()}
		}
	}
	return newPre(lv.A, lv.Filter, p), nil
}

// schwarz builds an additive Schwarz preconditioner on contiguous
// subdomains. The keys are subdomains, overlap, weighted and local, the
// section of the subdomain solver.
func (f *Factory) schwarz(name string, sec Section, level int, path []string) (solver.Solver, error) {
	lv := f.Stock.Levels[level]
	n, _ := lv.A.Dims()
	count, overlap, weighted := 2, 1, false
	kv := sec.Without("type", "local")
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		v := kv[k]
		var err error
		switch k {
		case "subdomains":
			count, err = strconv.Atoi(v)
			if err == nil && (count < 1 || count > n) {
				err = fmt.Errorf("%d subdomains for %d unknowns", count, n)
			}
		case "overlap":
			overlap, err = strconv.Atoi(v)
			if err == nil && overlap < 0 {
				err = fmt.Errorf("negative overlap %d", overlap)
			}
		case "weighted":
			weighted, err = strconv.ParseBool(v)
		default:
			return nil, &solver.ConfigError{Section: name, Key: k, Reason: "unknown key"}
		}
		if err != nil {
			return nil, &solver.ConfigError{Section: name, Key: k, Reason: err.Error()}
		}
	}
	s := solver.NewSchwarz(lv.A, lv.Filter, contiguous(n, count, overlap))
	s.Weighted = weighted
	if local, ok := sec["local"]; ok {
		// Errors in the local section are reported here, the local
		// solvers themselves are built by InitSymbolic.
		if _, err := f.build(local, level, path); err != nil {
			return nil, err
		}
		path := slices.Clone(path)
		s.NewLocal = func(a *sparse.CSR) solver.Solver {
			sub := &Factory{Props: f.Props, Stock: NewStock(a, nil)}
			ls, err := sub.build(local, 0, path)
			if err != nil {
				panic(err)
			}
			return ls
		}
	}
	return s, nil
}

// contiguous splits n unknowns into count consecutive blocks extended by
// overlap unknowns on both sides.
func contiguous(n, count, overlap int) [][]int {
	blocks := make([][]int, count)
	for b := range blocks {
		lo := b*n/count - overlap
		hi := (b+1)*n/count + overlap
		lo, hi = max(lo, 0), min(hi, n)
		idx := make([]int, 0, hi-lo)
		for i := lo; i < hi; i++ {
			idx = append(idx, i)
		}
		blocks[b] = idx
	}
	return blocks
}

// multigrid builds a multigrid cycle from level to the coarsest level of
// the stock, or over at most levels levels. The smoother key names the
// smoother of all levels; pre_smoother and post_smoother override it. The
// coarse key names the coarse grid solver. pre_steps and post_steps set
// the number of smoothing steps. All other keys are passed to Configure.
func (f *Factory) multigrid(name string, sec Section, level int, path []string) (solver.Solver, error) {
	last := len(f.Stock.Levels) - 1
	pre, post := 1, 1
	for _, k := range []string{"levels", "pre_steps", "post_steps"} {
		v, ok := sec[k]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || (k == "levels" && n < 1) {
			return nil, &solver.ConfigError{Section: name, Key: k, Reason: fmt.Sprintf("invalid value %q", v)}
		}
		switch k {
		case "levels":
			last = min(last, level+n-1)
		case "pre_steps":
			pre = n
		case "post_steps":
			post = n
		}
	}

	var levels []*multigrid.Level
	for k := level; k <= last; k++ {
		sl := f.Stock.Levels[k]
		p, r := sl.P, sl.R
		if k == last {
			p, r = nil, nil
		}
		smoother, err := f.child(sec, "smoother", k, path)
		if err != nil {
			return nil, err
		}
		lv := multigrid.NewLevel(sl.A, sl.Filter, p, r, smoother)
		if lv.PreSmoother, err = f.override(sec, "pre_smoother", k, path, smoother); err != nil {
			return nil, err
		}
		if lv.PostSmoother, err = f.override(sec, "post_smoother", k, path, smoother); err != nil {
			return nil, err
		}
		lv.PreSteps, lv.PostSteps = pre, post
		levels = append(levels, lv)
	}
	coarse, err := f.child(sec, "coarse", last, path)
	if err != nil {
		return nil, err
	}
	mg := multigrid.NewMultiGrid(multigrid.NewHierarchy(coarse, levels...), multigrid.V)
	kv := sec.Without("type", "smoother", "pre_smoother", "post_smoother", "coarse", "levels", "pre_steps", "post_steps")
	if err := mg.Configure(kv); err != nil {
		return nil, rename(err, name)
	}
	return mg, nil
}

// override builds the solver named by key if sec has it and returns def
// otherwise.
func (f *Factory) override(sec Section, key string, level int, path []string, def solver.Solver) (solver.Solver, error) {
	if _, ok := sec[key]; !ok {
		return def, nil
	}
	return f.child(sec, key, level, path)
}

// rename replaces the solver name in a configuration error by the section
// name.
func rename(err error, section string) error {
	if ce, ok := err.(*solver.ConfigError); ok {
		c := *ce
		c.Section = section
		return &c
	}
	return err
}
