package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaniumRequestsTotal counts outbound Tanium API calls by method and status.
	// Transport failures are recorded with status "error".
	TaniumRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanium_api_requests_total",
			Help: "Total number of Tanium API requests made (by method and status).",
		},
		[]string{"method", "status"},
	)

	// TaniumRequestDuration measures outbound Tanium API latency.
	TaniumRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tanium_api_request_duration_seconds",
			Help:    "Duration of Tanium API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms → ~41s
		},
		[]string{"method"},
	)

	// SessionRefreshTotal counts session acquisitions: "initial" or "refresh".
	SessionRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tanium_session_refresh_total",
			Help: "Number of Tanium session acquisitions by reason.",
		},
		[]string{"reason"},
	)

	// IncidentsFetched counts incidents produced by the alert fetch loop.
	IncidentsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tanium_incidents_fetched_total",
			Help: "Number of incidents created from Threat Response alerts.",
		},
	)

	// IncidentPublishErrors counts failed incident deliveries per sink.
	IncidentPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_publish_errors_total",
			Help: "Number of incident publish failures by sink.",
		},
		[]string{"sink"},
	)

	// IncidentPublishDuration measures how long one delivery to a sink takes.
	IncidentPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "incident_publish_duration_seconds",
			Help:    "Time spent delivering an incident to its sink.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)
)

// IncTaniumRequest increments the request counter. status 0 means no response.
func IncTaniumRequest(method string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	TaniumRequestsTotal.WithLabelValues(method, label).Inc()
}

// IncSessionRefresh increments the session acquisition counter.
func IncSessionRefresh(reason string) {
	SessionRefreshTotal.WithLabelValues(reason).Inc()
}

// AddIncidentsFetched adds n to the fetched incident counter.
func AddIncidentsFetched(n int) {
	IncidentsFetched.Add(float64(n))
}

// IncPublishError increments the publish error counter for sink.
func IncPublishError(sink string) {
	IncidentPublishErrors.WithLabelValues(sink).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
