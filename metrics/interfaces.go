// Package metrics exposes poller metrics in two modes.
//
// The server uses a ScrapeRegistry, which registers metrics with a Prometheus
// registry served on /metrics. The one-shot CLI uses a PushRegistry, which
// batches samples and sends them to a VictoriaMetrics remote write endpoint
// on Flush.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge holds a value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter holds a monotonically increasing value.
type Counter interface {
	Inc()
	// Add panics if v is negative.
	Add(v float64)
}

// CounterVec hands out Counters partitioned by label values.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates metrics for one of the two modes.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}
