package metrics

import (
	"github.com/marmos91/tether/pkg/mount/supervisor"
)

// NewSupervisorMetrics creates a Prometheus-backed metric set for the
// heartbeat supervisor.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// The supervisor treats nil as disabled, so the call is always safe:
//
//	sup := supervisor.New(supervisor.Config{
//		Metrics: metrics.NewSupervisorMetrics(),
//	})
func NewSupervisorMetrics() supervisor.Metrics {
	if !IsEnabled() || newPrometheusSupervisorMetrics == nil {
		return nil
	}
	return newPrometheusSupervisorMetrics()
}

// newPrometheusSupervisorMetrics is implemented in
// pkg/metrics/prometheus/supervisor.go. The indirection keeps the
// prometheus implementation importable without a cycle.
var newPrometheusSupervisorMetrics func() supervisor.Metrics

// RegisterSupervisorMetricsConstructor registers the Prometheus
// supervisor metrics constructor. Called by
// pkg/metrics/prometheus/supervisor.go during package initialization.
func RegisterSupervisorMetricsConstructor(constructor func() supervisor.Metrics) {
	newPrometheusSupervisorMetrics = constructor
}
