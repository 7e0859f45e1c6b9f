// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vladimir-ch/solver"
	"github.com/vladimir-ch/solver/stats"
)

// writeStatistics prints the aggregated solves of every solver in the
// tree of s, in tree order, followed by the multigrid level timings.
func writeStatistics(w io.Writer, s solver.Solver, sum *stats.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "solver\tsolves\titers\telapsed\tstatuses\tinner calls")
	seen := make(map[string]bool)
	solver.Walk(s, func(s solver.Solver) {
		name := s.Name()
		if seen[name] {
			return
		}
		seen[name] = true
		ss, ok := sum.Solver(name)
		if !ok {
			return
		}
		var statuses []string
		for _, st := range slices.Sorted(maps.Keys(ss.Statuses)) {
			statuses = append(statuses, fmt.Sprintf("%s=%d", st, ss.Statuses[st]))
		}
		var calls []string
		for _, t := range slices.Sorted(maps.Keys(ss.Calls)) {
			calls = append(calls, fmt.Sprintf("%s=%v", t, ss.Calls[t].Round(time.Microsecond)))
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%v\t%s\t%s\n", name, ss.Solves, ss.Iters,
			ss.Elapsed.Round(time.Microsecond), strings.Join(statuses, " "), strings.Join(calls, " "))
	})
	if err := tw.Flush(); err != nil {
		return err
	}

	if sum.Levels() == 0 {
		return nil
	}
	tw = tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "level\tphase\ttime")
	for k := range sum.Levels() {
		lt := sum.Level(k)
		for _, phase := range slices.Sorted(maps.Keys(lt)) {
			fmt.Fprintf(tw, "%d\t%s\t%v\n", k, phase, lt[phase].Round(time.Microsecond))
		}
	}
	return tw.Flush()
}

// spanLogger is a span exporter writing every ended span as a log record.
type spanLogger struct {
	log *slog.Logger
}

func (e spanLogger) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("span", s.Name()),
			slog.String("id", s.SpanContext().SpanID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
			slog.Int("events", len(s.Events())),
			slog.String("code", s.Status().Code.String()),
		}
		if p := s.Parent(); p.IsValid() {
			attrs = append(attrs, slog.String("parent", p.SpanID().String()))
		}
		e.log.LogAttrs(ctx, slog.LevelInfo, "span", attrs...)
	}
	return nil
}

func (spanLogger) Shutdown(context.Context) error { return nil }
