package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	checksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_checks_total",
		Help: "Total number of rate-limit checks by outcome",
	}, []string{"outcome"})
	degradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_degraded_total",
		Help: "Total number of decisions taken in degraded (fail-open) mode",
	}, []string{"component"})
	detectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_detections_total",
		Help: "Total number of abuse/DDoS detections by kind",
	}, []string{"kind"})
	autoBlocksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_auto_blocks_total",
		Help: "Total number of automatic blacklist entries by reason",
	}, []string{"reason"})
	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_alerts_total",
		Help: "Total number of alerts emitted by severity",
	}, []string{"level"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(checksTotal, degradedTotal, detectionsTotal, autoBlocksTotal, alertsTotal)
}

// IncCheck increments the check counter for an outcome string (ALLOWED etc).
func IncCheck(outcome string) { checksTotal.WithLabelValues(outcome).Inc() }

// IncDegraded increments the degraded-decision counter for a component.
func IncDegraded(component string) { degradedTotal.WithLabelValues(component).Inc() }

// IncDetection increments the detection counter for a detection kind.
func IncDetection(kind string) { detectionsTotal.WithLabelValues(kind).Inc() }

// IncAutoBlock increments the automatic-block counter for a reason.
func IncAutoBlock(reason string) { autoBlocksTotal.WithLabelValues(reason).Inc() }

// IncAlert increments the alert counter for a severity level.
func IncAlert(level string) { alertsTotal.WithLabelValues(level).Inc() }
