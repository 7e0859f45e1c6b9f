// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/solver"
	"github.com/vladimir-ch/solver/config"
	"github.com/vladimir-ch/solver/stats"
)

type options struct {
	solverConfig string
	section      string

	matrix, rhs string
	gallery     string
	size        int
	levels      int

	plotMode   string
	logSolvers []string
	logFormat  string
	logLevel   string
	plot       string
	statistics bool
	metrics    string
	trace      bool

	testIter int
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "fesolve",
		Short: "Solve a sparse linear system with a configured solver tree",
		Long: `fesolve builds the solver described by a section of a solver
configuration and applies it to a Matrix Market system or to a Poisson
gallery problem on a hierarchy of refined grids.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd.Context(), loadOptions(v), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "fesolve:", err)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.String("solver-config", "", "solver configuration file (YAML, JSON or TOML)")
	f.String("section", "linsolver", "section of the root solver")
	f.String("matrix", "", "system matrix in Matrix Market coordinate format")
	f.String("rhs", "", "right-hand side in Matrix Market array format (default all ones)")
	f.String("gallery", "poisson2d", "gallery problem used without --matrix: poisson1d or poisson2d")
	f.Int("size", 7, "interior nodes per direction on the coarsest gallery level")
	f.Int("levels", 3, "number of gallery levels")
	f.String("plot-mode", "summary", "solver output: none, iter, summary or all")
	f.StringSlice("log-solvers", nil, "restrict the solver output to the named solvers")
	f.String("log-format", "text", "log format: text or json")
	f.String("log-level", "info", "minimum log level")
	f.String("plot", "", "write a convergence plot of the root solver to this file")
	f.Bool("statistics", false, "print per-solver and per-level statistics")
	f.String("metrics", "", "write Prometheus metrics in text format to this file")
	f.Bool("trace", false, "log OpenTelemetry spans of all solves")
	f.Int("test-iter", -1, "fail unless the root solver takes exactly this many iterations")

	// BindPFlags fails only for a nil flag set.
	_ = v.BindPFlags(f)
	v.SetEnvPrefix("fesolve")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func loadOptions(v *viper.Viper) options {
	return options{
		solverConfig: v.GetString("solver-config"),
		section:      v.GetString("section"),
		matrix:       v.GetString("matrix"),
		rhs:          v.GetString("rhs"),
		gallery:      v.GetString("gallery"),
		size:         v.GetInt("size"),
		levels:       v.GetInt("levels"),
		plotMode:     v.GetString("plot-mode"),
		logSolvers:   v.GetStringSlice("log-solvers"),
		logFormat:    v.GetString("log-format"),
		logLevel:     v.GetString("log-level"),
		plot:         v.GetString("plot"),
		statistics:   v.GetBool("statistics"),
		metrics:      v.GetString("metrics"),
		trace:        v.GetBool("trace"),
		testIter:     v.GetInt("test-iter"),
	}
}

// readProperties reads a solver configuration in any format viper
// understands.
func readProperties(path string) (config.PropertyMap, error) {
	if path == "" {
		return nil, errors.New("no solver configuration given")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return config.FromMap(v.AllSettings())
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

func run(ctx context.Context, o options, stdout, stderr io.Writer) error {
	log, err := newLogger(stderr, o.logFormat, o.logLevel)
	if err != nil {
		return err
	}
	mode, err := stats.ParsePlotMode(o.plotMode)
	if err != nil {
		return err
	}
	props, err := readProperties(o.solverConfig)
	if err != nil {
		return err
	}
	stock, b, err := loadSystem(o)
	if err != nil {
		return err
	}
	a, fl := stock.Levels[0].A, stock.Levels[0].Filter
	n, _ := a.Dims()
	log.Info("system", "unknowns", n, "levels", len(stock.Levels))

	s, err := config.NewFactory(props, stock).Build(o.section)
	if err != nil {
		return err
	}

	rec := &stats.Recorder{}
	sum := stats.NewSummary()
	ls := solver.Listeners{stats.NewLogger(log, mode, o.logSolvers...), rec, sum}
	var reg *prometheus.Registry
	if o.metrics != "" {
		reg = prometheus.NewRegistry()
		ls = append(ls, stats.NewMetrics(reg, "fesolve"))
	}
	if o.trace {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanLogger{log}))
		defer tp.Shutdown(ctx)
		ls = append(ls, stats.NewTracer(ctx, tp.Tracer("fesolve")))
	}
	solver.Attach(s, ls)

	if err := solver.Init(s); err != nil {
		return err
	}
	defer solver.Done(s)

	x := make([]float64, n)
	start := time.Now()
	st, solveErr := solver.Solve(s, x, b, a, fl)
	elapsed := time.Since(start)

	root, _ := sum.Solver(s.Name())
	r := make([]float64, n)
	a.MulVecTo(r, x)
	floats.SubTo(r, b, r)
	relRes := floats.Norm(r, 2) / floats.Norm(b, 2)
	fmt.Fprintf(stdout, "%s: %s after %d iterations in %v, relative residual %.6e\n",
		s.Name(), st, root.Iters, elapsed.Round(time.Microsecond), relRes)

	if o.statistics {
		if err := writeStatistics(stdout, s, sum); err != nil {
			return err
		}
	}
	if o.plot != "" {
		if err := writePlot(o.plot, s.Name(), rec); err != nil {
			return err
		}
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(o.metrics, reg); err != nil {
			return err
		}
	}

	if !st.Acceptable() {
		if solveErr != nil {
			return fmt.Errorf("solver %s: %s: %w", s.Name(), st, solveErr)
		}
		return fmt.Errorf("solver %s: %s", s.Name(), st)
	}
	if o.testIter >= 0 && root.Iters != o.testIter {
		return fmt.Errorf("iteration count deviation: %d, want %d", root.Iters, o.testIter)
	}
	return nil
}

func writePlot(path, name string, rec *stats.Recorder) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		format = "png"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = stats.PlotConvergence(f, format, name+" convergence", stats.SeriesOf(rec, name))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
