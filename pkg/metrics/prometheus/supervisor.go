// Package prometheus implements the metric interfaces declared next
// to their consumers. Importing it (usually blank, from main)
// registers the constructors with pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tether/pkg/metrics"
	"github.com/marmos91/tether/pkg/mount/supervisor"
)

func init() {
	metrics.RegisterSupervisorMetricsConstructor(NewSupervisorMetrics)
}

// supervisorMetrics is the Prometheus implementation of
// supervisor.Metrics.
type supervisorMetrics struct {
	heartbeats       *prometheus.CounterVec
	probeDuration    prometheus.Histogram
	missedHeartbeats prometheus.Gauge
	engineRestarts   prometheus.Counter
	mountUp          prometheus.Gauge
}

// NewSupervisorMetrics creates a new Prometheus-backed supervisor
// metric set.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSupervisorMetrics() supervisor.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &supervisorMetrics{
		heartbeats: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_supervisor_heartbeats_total",
				Help: "Total number of heartbeats by result",
			},
			[]string{"result"}, // "ok", "missed"
		),
		probeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "tether_probe_duration_milliseconds",
				Help: "Duration of liveness probes in milliseconds",
				Buckets: []float64{
					10,    // 10ms - healthy local probe
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					2000,  // 2s - default probe deadline
					5000,  // 5s
					10000, // 10s - slow remote
					30000, // 30s
				},
			},
		),
		missedHeartbeats: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tether_supervisor_missed_heartbeats",
				Help: "Current consecutive missed heartbeat count",
			},
		),
		engineRestarts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tether_engine_restarts_total",
				Help: "Total number of mount engine restarts",
			},
		),
		mountUp: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tether_mount_up",
				Help: "Whether the mount is currently believed alive (1) or not (0)",
			},
		),
	}
}

func (m *supervisorMetrics) ObserveHeartbeat(alive bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !alive {
		result = "missed"
	}
	m.heartbeats.WithLabelValues(result).Inc()
	m.probeDuration.Observe(duration.Seconds() * 1000)
}

func (m *supervisorMetrics) RecordMissed(count int) {
	if m == nil {
		return
	}
	m.missedHeartbeats.Set(float64(count))
}

func (m *supervisorMetrics) RecordRestart() {
	if m == nil {
		return
	}
	m.engineRestarts.Inc()
}

func (m *supervisorMetrics) RecordMountState(up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	m.mountUp.Set(v)
}
