package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "melanoma_api"

// Metrics holds the service collectors on a registry of its own so tests
// can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	predictions       *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Number of HTTP requests by handler and status code",
			},
			[]string{"handler", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by handler",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Number of predictions by interpretation level (high, moderate, low)",
			},
			[]string{"interpretation"},
		),
		inferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inference_duration_seconds",
				Help:      "Time spent in model inference",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
		),
	}

	m.Registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.predictions,
		m.inferenceDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// InstrumentHandler counts and times requests served by next under the given handler label.
func (m *Metrics) InstrumentHandler(name string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels),
		promhttp.InstrumentHandlerDuration(m.requestDuration.MustCurryWith(labels), next))
}

func (m *Metrics) ObservePrediction(level string) {
	m.predictions.WithLabelValues(level).Inc()
}

func (m *Metrics) ObserveInference(d time.Duration) {
	m.inferenceDuration.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
