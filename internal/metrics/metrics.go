// Package metrics registers the Prometheus collectors of the influx engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "influx"

// Rebuild results.
const (
	ResultOK      = "ok"
	ResultDropped = "dropped"
	ResultError   = "error"
)

var (
	// Rebuilds counts view rebuilds. Labels: result (ok, dropped, error).
	Rebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "rebuilds_total",
		Help:      "View rebuilds by result",
	}, []string{"result"})

	// RebuildDuration measures completed rebuilds.
	RebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "rebuild_duration_seconds",
		Help:      "Time spent in a completed view rebuild",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// SummaryFailures counts linking notes omitted because their summary failed.
	SummaryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "summary_failures_total",
		Help:      "Linking notes omitted after a failed summary",
	})

	// Notifications counts scheduler notifications. Labels: op.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "notifications_total",
		Help:      "Scheduler notifications by operation",
	}, []string{"op"})

	// ConsumerFailures counts consumer callbacks that returned an error or panicked.
	ConsumerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "consumer_failures_total",
		Help:      "Consumer callbacks that failed during a broadcast",
	})

	// RefreshSkipped counts bulk refreshes skipped because one was in flight.
	RefreshSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "refresh_skipped_total",
		Help:      "Bulk refreshes skipped while another was in flight",
	})

	// Consumers tracks the number of registered consumers.
	Consumers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "consumers",
		Help:      "Currently registered consumers",
	})
)
