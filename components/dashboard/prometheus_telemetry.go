package dashboard

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var fetchDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15}

// PrometheusTelemetry exports orchestrator events as Prometheus metrics.
type PrometheusTelemetry struct {
	EventsTotal      *prometheus.CounterVec
	FetchesTotal     *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	StaleResponses   prometheus.Counter
	SanitizedFilters prometheus.Counter
}

// NewPrometheusTelemetry creates and registers the instruments on reg.
func NewPrometheusTelemetry(reg prometheus.Registerer) *PrometheusTelemetry {
	t := &PrometheusTelemetry{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metricsboard_events_total",
			Help: "Total number of orchestrator events.",
		}, []string{"event"}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metricsboard_fetches_total",
			Help: "Total number of metric data fetches.",
		}, []string{"kind", "failed"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metricsboard_fetch_duration_seconds",
			Help:    "Metric data fetch duration in seconds.",
			Buckets: fetchDurationBuckets,
		}, []string{"kind"}),
		StaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metricsboard_stale_responses_total",
			Help: "Total number of superseded metric responses discarded.",
		}),
		SanitizedFilters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metricsboard_sanitized_filters_total",
			Help: "Total number of filter configurations changed by sanitization.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			t.EventsTotal,
			t.FetchesTotal,
			t.FetchDuration,
			t.StaleResponses,
			t.SanitizedFilters,
		)
	}
	return t
}

// Record implements Telemetry.
func (t *PrometheusTelemetry) Record(_ context.Context, event string, payload map[string]any) {
	t.EventsTotal.WithLabelValues(event).Inc()
	switch event {
	case "dashboard.fetch":
		kind, _ := payload["kind"].(string)
		failed, _ := payload["failed"].(bool)
		t.FetchesTotal.WithLabelValues(kind, strconv.FormatBool(failed)).Inc()
		if d, ok := payload["duration"].(time.Duration); ok {
			t.FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
		}
	case "dashboard.fetch.stale":
		t.StaleResponses.Inc()
	case "dashboard.filters.sanitized":
		t.SanitizedFilters.Inc()
	}
}
