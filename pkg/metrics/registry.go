// Package metrics holds the process-wide Prometheus registry and the
// constructors for the metric sets tether exposes.
//
// Metrics are opt-in: until InitRegistry is called every constructor
// returns nil, and consumers treat a nil metric set as disabled with
// zero overhead.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry *prometheus.Registry

// InitRegistry creates the metrics registry and enables collection.
// Call once at startup, before constructing anything that records
// metrics. Not safe for concurrent use with the constructors.
func InitRegistry() {
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	return registry != nil
}

// GetRegistry returns the active registry, nil when disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// Handler returns the scrape endpoint handler for the active
// registry. Returns a 404 handler when metrics are disabled.
func Handler() http.Handler {
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
