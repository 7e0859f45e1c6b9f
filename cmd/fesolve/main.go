// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command fesolve solves a sparse linear system with a solver tree built
// from a configuration file.
//
// The system is either read from Matrix Market files or taken from the
// Poisson gallery, in which case a hierarchy of refined grids is assembled
// for multigrid solvers. Progress is written through slog; convergence
// plots, solver statistics, Prometheus metrics and OpenTelemetry spans
// are optional.
//
// Usage:
//
//	fesolve --solver-config solver.yaml [--section linsolver]
//	        [--matrix A.mtx [--rhs b.mtx] | --gallery poisson2d --size 7 --levels 3]
//	        [--plot-mode summary] [--plot conv.png] [--statistics]
//	        [--metrics metrics.prom] [--trace] [--test-iter n]
//
// Every flag may also be set through an environment variable with the
// prefix FESOLVE_, for example FESOLVE_SOLVER_CONFIG.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
