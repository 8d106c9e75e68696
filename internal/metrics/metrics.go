package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "saga"

// Set groups every collector a service binary exposes.
type Set struct {
	Messages        *prometheus.CounterVec
	HandleSeconds   *prometheus.HistogramVec
	OutboxPublished *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
}

// New registers the collectors for service on reg.
func New(reg prometheus.Registerer, service string) *Set {
	s := &Set{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "messages_total",
			Help:      "Consumed messages by queue and outcome.",
		}, []string{"queue", "outcome"}),
		HandleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "message_handle_seconds",
			Help:      "Time spent handling one message, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue"}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "outbox_published_total",
			Help:      "Outbox records published by topic.",
		}, []string{"topic"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}
	reg.MustRegister(s.Messages, s.HandleSeconds, s.OutboxPublished, s.Requests, s.LatencyMS)
	return s
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
