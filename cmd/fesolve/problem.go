// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/vladimir-ch/solver/config"
	"github.com/vladimir-ch/solver/sparse"
)

type gallery struct {
	op   func(n int) *sparse.CSR
	prol func(nc int) *sparse.CSR
	rest func(nc int) *sparse.CSR
}

var galleries = map[string]gallery{
	"poisson1d": {sparse.Poisson1D, sparse.Prolongation1D, sparse.Restriction1D},
	"poisson2d": {sparse.Poisson2D, sparse.Prolongation2D, sparse.Restriction2D},
}

// galleryStock returns the stock of a uniformly refined gallery problem
// with nc interior nodes per direction on the coarsest of levels levels.
func galleryStock(name string, nc, levels int) (*config.Stock, error) {
	g, ok := galleries[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown gallery problem %q", name)
	}
	if nc < 1 || levels < 1 {
		return nil, fmt.Errorf("invalid gallery size %d with %d levels", nc, levels)
	}
	sizes := make([]int, levels)
	sizes[levels-1] = nc
	for k := levels - 2; k >= 0; k-- {
		sizes[k] = 2*sizes[k+1] + 1
	}
	s := &config.Stock{}
	for k, n := range sizes {
		lv := config.StockLevel{A: g.op(n)}
		if k < levels-1 {
			lv.P = g.prol(sizes[k+1])
			lv.R = g.rest(sizes[k+1])
		}
		s.Levels = append(s.Levels, lv)
	}
	return s, nil
}

// marketStock reads a single-level stock from a Matrix Market file.
func marketStock(path string) (*config.Stock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := sparse.ReadMarket(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if r, c := a.Dims(); r != c {
		return nil, fmt.Errorf("%s: matrix is %d×%d, not square", path, r, c)
	}
	return config.NewStock(a, nil), nil
}

// marketVector reads the right-hand side from a Matrix Market file.
func marketVector(path string, n int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := sparse.ReadMarketVector(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("%s: vector of length %d for %d unknowns", path, len(b), n)
	}
	return b, nil
}

// loadSystem returns the stock and the right-hand side selected by o. The
// right-hand side defaults to all ones.
func loadSystem(o options) (*config.Stock, []float64, error) {
	var (
		stock *config.Stock
		err   error
	)
	if o.matrix != "" {
		stock, err = marketStock(o.matrix)
	} else {
		stock, err = galleryStock(o.gallery, o.size, o.levels)
	}
	if err != nil {
		return nil, nil, err
	}
	n, _ := stock.Levels[0].A.Dims()
	if o.rhs != "" {
		b, err := marketVector(o.rhs, n)
		return stock, b, err
	}
	b := make([]float64, n)
	for i := range b {
		b[i] = 1
	}
	return stock, b, nil
}
