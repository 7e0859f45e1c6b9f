// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/vladimir-ch/solver"
)

// PlotMode selects what a Logger writes.
type PlotMode int

const (
	// PlotNone writes nothing.
	PlotNone PlotMode = iota
	// PlotIter writes the defect norm of every iteration.
	PlotIter
	// PlotSummary writes one record per finished solve and the multigrid
	// timings.
	PlotSummary
	// PlotAll combines PlotIter and PlotSummary.
	PlotAll
)

var plotModeNames = [...]string{
	PlotNone:    "none",
	PlotIter:    "iter",
	PlotSummary: "summary",
	PlotAll:     "all",
}

func (m PlotMode) String() string {
	if m < 0 || int(m) >= len(plotModeNames) {
		return fmt.Sprintf("PlotMode(%d)", int(m))
	}
	return plotModeNames[m]
}

// ParsePlotMode returns the PlotMode named s.
func ParsePlotMode(s string) (PlotMode, error) {
	for m, name := range plotModeNames {
		if strings.EqualFold(s, name) {
			return PlotMode(m), nil
		}
	}
	return 0, fmt.Errorf("stats: unknown plot mode %q", s)
}

// Logger is a solver.Listener that writes solver progress through slog.
type Logger struct {
	Log  *slog.Logger
	Mode PlotMode
	// Solvers restricts the output to the named solvers. If it is empty,
	// events of all solvers are written.
	Solvers []string
	// Level is the level of the written records.
	Level slog.Level
}

// NewLogger returns a Logger writing to l at the info level. If l is nil,
// slog.Default is used.
func NewLogger(l *slog.Logger, mode PlotMode, solvers ...string) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{Log: l, Mode: mode, Solvers: solvers, Level: slog.LevelInfo}
}

// Notify implements the solver.Listener interface.
func (l *Logger) Notify(e solver.Event) {
	if l.Mode == PlotNone || (len(l.Solvers) > 0 && !slices.Contains(l.Solvers, e.Solver)) {
		return
	}
	iter := l.Mode == PlotIter || l.Mode == PlotAll
	summary := l.Mode == PlotSummary || l.Mode == PlotAll
	ctx := context.Background()
	switch {
	case iter && e.Kind == solver.EventDefect:
		l.Log.LogAttrs(ctx, l.Level, "defect",
			slog.String("solver", e.Solver),
			slog.Int("iter", e.Iter),
			slog.Float64("defect", e.Norm),
		)
	case summary && e.Kind == solver.EventEndSolve:
		l.Log.LogAttrs(ctx, l.Level, "solve",
			slog.String("solver", e.Solver),
			slog.String("status", e.Status.String()),
			slog.Int("iters", e.Iter),
			slog.Float64("defect", e.Norm),
			slog.Duration("elapsed", e.Elapsed),
		)
	case summary && (e.Kind == solver.EventLevelTimings || e.Kind == solver.EventTimings):
		attrs := []slog.Attr{slog.String("solver", e.Solver)}
		if e.Kind == solver.EventLevelTimings {
			attrs = append(attrs, slog.Int("level", e.Level))
		}
		for _, k := range slices.Sorted(maps.Keys(e.Timings)) {
			attrs = append(attrs, slog.Duration(k, e.Timings[k]))
		}
		l.Log.LogAttrs(ctx, l.Level, e.Kind.String(), attrs...)
	}
}
