package poller

import (
	"fmt"

	"github.com/nomis52/komandorr/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeCompleted = "completed"
	outcomeCancelled = "cancelled"
)

// pollMetrics holds the metrics updated on every tick.
type pollMetrics struct {
	active     metrics.Gauge
	peak       metrics.Gauge
	finished   metrics.CounterVec
	pollErrors metrics.Counter
	skipped    metrics.Counter
	polls      metrics.Counter
}

func newPollMetrics(reg metrics.Registry) (*pollMetrics, error) {
	active, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "active_activities",
		Help: "Number of distinct activities reported by the feed on the last successful poll.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating active_activities gauge: %w", err)
	}

	peak, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "peak_concurrency",
		Help: "Highest number of concurrent activities recorded.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating peak_concurrency gauge: %w", err)
	}

	finished, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "activities_finished_total",
		Help: "Activities that reached 100% or were dropped after going missing.",
	}, []string{"outcome"})
	if err != nil {
		return nil, fmt.Errorf("creating activities_finished_total counter: %w", err)
	}

	pollErrors, err := reg.NewCounter(prometheus.CounterOpts{
		Name: "poll_errors_total",
		Help: "Polls where the feed could not be read.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating poll_errors_total counter: %w", err)
	}

	skipped, err := reg.NewCounter(prometheus.CounterOpts{
		Name: "skipped_records_total",
		Help: "Feed records skipped because they were malformed or duplicated.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating skipped_records_total counter: %w", err)
	}

	polls, err := reg.NewCounter(prometheus.CounterOpts{
		Name: "polls_total",
		Help: "Polls attempted.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating polls_total counter: %w", err)
	}

	return &pollMetrics{
		active:     active,
		peak:       peak,
		finished:   finished,
		pollErrors: pollErrors,
		skipped:    skipped,
		polls:      polls,
	}, nil
}
