// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladimir-ch/solver"
)

// Tracer is a solver.Listener that records every solve as an OpenTelemetry
// span. Solves of inner solvers become child spans of the solve that
// invoked them, and defect norms are added as span events.
//
// A Tracer follows a single solver tree and is not safe for concurrent
// use.
type Tracer struct {
	tracer trace.Tracer
	root   context.Context

	// Defects adds a span event for every reported defect norm.
	Defects bool

	stack []open
}

type open struct {
	name string
	ctx  context.Context
	span trace.Span
}

// NewTracer returns a Tracer that starts its spans with t below the span
// in ctx, if any.
func NewTracer(ctx context.Context, t trace.Tracer) *Tracer {
	return &Tracer{tracer: t, root: ctx, Defects: true}
}

// Notify implements the solver.Listener interface.
func (t *Tracer) Notify(e solver.Event) {
	switch e.Kind {
	case solver.EventStartSolve:
		ctx := t.root
		if n := len(t.stack); n > 0 {
			ctx = t.stack[n-1].ctx
		}
		attrs := []attribute.KeyValue{attribute.String("solver", e.Solver)}
		if e.Level >= 0 {
			attrs = append(attrs, attribute.Int("level", e.Level))
		}
		ctx, span := t.tracer.Start(ctx, "solve "+e.Solver, trace.WithAttributes(attrs...))
		t.stack = append(t.stack, open{name: e.Solver, ctx: ctx, span: span})

	case solver.EventDefect:
		if s := t.top(e.Solver); s != nil && t.Defects {
			s.span.AddEvent("defect", trace.WithAttributes(
				attribute.Int("iter", e.Iter),
				attribute.Float64("norm", e.Norm),
			))
		}

	case solver.EventEndSolve:
		// Spans left open by inner solvers that never reported their end
		// are closed together with their parent.
		for i := len(t.stack) - 1; i >= 0; i-- {
			if t.stack[i].name != e.Solver {
				continue
			}
			for _, o := range t.stack[i+1:] {
				o.span.End()
			}
			s := t.stack[i].span
			s.SetAttributes(
				attribute.String("status", e.Status.String()),
				attribute.Int("iters", e.Iter),
				attribute.Float64("defect", e.Norm),
			)
			if !e.Status.Acceptable() {
				s.SetStatus(codes.Error, e.Status.String())
			}
			s.End()
			t.stack = t.stack[:i]
			return
		}
	}
}

func (t *Tracer) top(name string) *open {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i].name == name {
			return &t.stack[i]
		}
	}
	return nil
}
