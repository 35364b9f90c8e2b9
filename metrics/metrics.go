// Package metrics defines the Prometheus metrics reported by sorts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "xsort"

// Label values.
const (
	PathDirect   = "direct"
	PathExternal = "external"

	StageDirect = "direct"
	StageSpill  = "spill"
	StageMerge  = "merge"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	Sorts          *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	RunsCreated    prometheus.Counter
	RunsReleased   prometheus.Counter
	LiveRuns       prometheus.Gauge
	RecordsSpilled prometheus.Counter
	SortDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sorts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sort",
				Name:      "total",
				Help:      "Counter of finished sorts by path.",
			}, []string{"path"}),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sort",
				Name:      "failures_total",
				Help:      "Counter of failed sorts by the stage that failed.",
			}, []string{"stage"}),
		RunsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "created_total",
				Help:      "Counter of runs created in storage.",
			}),
		RunsReleased: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "released_total",
				Help:      "Counter of runs removed from storage.",
			}),
		LiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "live",
				Help:      "Number of sealed runs not yet released.",
			}),
		RecordsSpilled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "records_spilled_total",
				Help:      "Counter of records written to runs.",
			}),
		SortDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sort",
				Name:      "duration_seconds",
				Help:      "Bucketed histogram of sort time (s) by path.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20),
			}, []string{"path"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Sorts,
			m.Failures,
			m.RunsCreated,
			m.RunsReleased,
			m.LiveRuns,
			m.RecordsSpilled,
			m.SortDuration,
		)
	}
	return m
}
