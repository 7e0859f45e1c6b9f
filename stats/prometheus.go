// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vladimir-ch/solver"
)

// Metrics is a solver.Listener that exports solver activity as Prometheus
// metrics.
type Metrics struct {
	solves     *prometheus.CounterVec
	iterations *prometheus.HistogramVec
	duration   *prometheus.HistogramVec
	defect     *prometheus.GaugeVec
	calls      *prometheus.CounterVec
	levelTime  *prometheus.CounterVec
}

// NewMetrics registers the solver metrics with reg under the namespace ns.
// If reg is nil, the metrics are not registered.
func NewMetrics(reg prometheus.Registerer, ns string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		solves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "solves_total",
			Help:      "Finished solves by solver and terminal status.",
		}, []string{"solver", "status"}),
		iterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "solve_iterations",
			Help:      "Iterations per solve.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"solver"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "solve_duration_seconds",
			Help:      "Wall time per solve.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}, []string{"solver"}),
		defect: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "final_defect",
			Help:      "Defect norm at the end of the last solve.",
		}, []string{"solver"}),
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "inner_calls_total",
			Help:      "Calls to inner solvers by caller, kind and callee.",
		}, []string{"solver", "kind", "target"}),
		levelTime: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "multigrid_level_seconds_total",
			Help:      "Time spent on each multigrid level by phase.",
		}, []string{"solver", "level", "phase"}),
	}
}

// Notify implements the solver.Listener interface.
func (m *Metrics) Notify(e solver.Event) {
	switch e.Kind {
	case solver.EventEndSolve:
		m.solves.WithLabelValues(e.Solver, e.Status.String()).Inc()
		m.iterations.WithLabelValues(e.Solver).Observe(float64(e.Iter))
		m.duration.WithLabelValues(e.Solver).Observe(e.Elapsed.Seconds())
		m.defect.WithLabelValues(e.Solver).Set(e.Norm)
	case solver.EventCallPrecond, solver.EventCallPrecondL, solver.EventCallPrecondR,
		solver.EventCallSmoother, solver.EventCallCoarseSolver,
		solver.EventCallUzawaA, solver.EventCallUzawaS:
		m.calls.WithLabelValues(e.Solver, e.Kind.String(), e.Target).Inc()
	case solver.EventLevelTimings:
		level := strconv.Itoa(e.Level)
		for phase, d := range e.Timings {
			m.levelTime.WithLabelValues(e.Solver, level, phase).Add(d.Seconds())
		}
	}
}
