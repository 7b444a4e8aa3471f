// Package metrics exposes Prometheus collectors for the adherence
// pipeline. Collectors are registered on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntakesLogged counts intake submissions by final status
	IntakesLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intakes_logged_total",
		Help: "Intake records logged, labeled by status.",
	}, []string{"status"})

	// AlertsGenerated counts materialized alerts by type and severity
	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_generated_total",
		Help: "Alerts created by the rule engine, labeled by type and severity.",
	}, []string{"type", "severity"})

	// AbnormalReadings counts vitals threshold breaches by flag
	AbnormalReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abnormal_readings_total",
		Help: "Health readings that breached a clinical threshold, labeled by flag.",
	}, []string{"flag"})

	// SweepDuration observes how long each full alert sweep takes
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alert_sweep_duration_seconds",
		Help:    "Duration of the periodic alert generation sweep.",
		Buckets: prometheus.DefBuckets,
	})

	// SweepUsersFailed counts per-user evaluation failures during sweeps
	SweepUsersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert_sweep_users_failed_total",
		Help: "Users whose alert evaluation failed during a sweep.",
	})
)
