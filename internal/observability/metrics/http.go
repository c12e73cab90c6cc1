package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

const namespace = "lalin"

// HTTPServerMetrics covers the API process: HTTP traffic, retrieval events and session lifecycle.
// It satisfies ports.RetrievalObserver and session.Observer.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	chatTurnsTotal      *prometheus.CounterVec
	chatDuration        *prometheus.HistogramVec
	variantFailures     *prometheus.CounterVec
	oracleFailures      *prometheus.CounterVec
	oracleFallbacks     prometheus.Counter
	retrievalVariants   prometheus.Histogram
	retrievalResults    prometheus.Histogram
	retrievalEmpty      prometheus.Counter
	turnPublishFailures prometheus.Counter

	sessionsActive prometheus.Gauge
	sessionsEvents *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	m := &HTTPServerMetrics{
		registry: registry,
		service:  service,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method", "path"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "in_flight_requests",
				Help:        "Number of in-flight HTTP requests.",
				ConstLabels: serviceLabel,
			},
		),
		rejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rejected_total",
				Help:      "Requests rejected by traffic control, by reason.",
			},
			[]string{"service", "reason"},
		),
		chatTurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "turns_total",
				Help:      "Completed chat turns by outcome.",
			},
			[]string{"service", "outcome"},
		),
		chatDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "turn_duration_seconds",
				Help:      "Chat turn duration in seconds.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
			},
			[]string{"service"},
		),
		variantFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "variant_failures_total",
				Help:      "Per-variant search failures absorbed by the executor.",
			},
			[]string{"service", "origin"},
		),
		oracleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "oracle_failures_total",
				Help:      "Query expansion failures by kind.",
			},
			[]string{"service", "kind"},
		),
		oracleFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "oracle_fallbacks_total",
				Help:        "Retrievals that continued without query expansion.",
				ConstLabels: serviceLabel,
			},
		),
		retrievalVariants: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "variants",
				Help:        "Query variants searched per retrieval.",
				Buckets:     []float64{1, 2, 3, 4, 5},
				ConstLabels: serviceLabel,
			},
		),
		retrievalResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "results",
				Help:        "Fused results returned per retrieval.",
				Buckets:     []float64{0, 1, 2, 3, 5, 8, 13},
				ConstLabels: serviceLabel,
			},
		),
		retrievalEmpty: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "retrieval",
				Name:        "empty_total",
				Help:        "Retrievals without any chunk above the threshold.",
				ConstLabels: serviceLabel,
			},
		),
		turnPublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "chat",
				Name:        "turn_publish_failures_total",
				Help:        "Turn events that could not be published.",
				ConstLabels: serviceLabel,
			},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "session",
				Name:        "active",
				Help:        "Sessions currently held in memory.",
				ConstLabels: serviceLabel,
			},
		),
		sessionsEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "events_total",
				Help:      "Session lifecycle events.",
			},
			[]string{"service", "event"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.rejectedTotal,
		m.chatTurnsTotal,
		m.chatDuration,
		m.variantFailures,
		m.oracleFailures,
		m.oracleFallbacks,
		m.retrievalVariants,
		m.retrievalResults,
		m.retrievalEmpty,
		m.turnPublishFailures,
		m.sessionsActive,
		m.sessionsEvents,
	)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/chat/") && strings.HasSuffix(path, "/history"):
		return "/api/v1/chat/{session_id}/history"
	case strings.HasPrefix(path, "/api/v1/chat/"):
		return "/api/v1/chat/{session_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rejectedTotal.WithLabelValues(m.service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordChatTurn(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.chatTurnsTotal.WithLabelValues(m.service, outcome).Inc()
	m.chatDuration.WithLabelValues(m.service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordTurnPublishFailure() {
	m.turnPublishFailures.Inc()
}

func (m *HTTPServerMetrics) VariantSearchFailed(origin domain.VariantOrigin, _ error) {
	m.variantFailures.WithLabelValues(m.service, string(origin)).Inc()
}

func (m *HTTPServerMetrics) OracleFailed(kind string) {
	m.oracleFailures.WithLabelValues(m.service, kind).Inc()
}

func (m *HTTPServerMetrics) OracleFallback() {
	m.oracleFallbacks.Inc()
}

func (m *HTTPServerMetrics) RetrievalCompleted(variants, results int) {
	m.retrievalVariants.Observe(float64(variants))
	m.retrievalResults.Observe(float64(results))
	if results == 0 {
		m.retrievalEmpty.Inc()
	}
}

func (m *HTTPServerMetrics) SessionCreated() {
	m.sessionsActive.Inc()
	m.sessionsEvents.WithLabelValues(m.service, "created").Inc()
}

func (m *HTTPServerMetrics) SessionExpired() {
	m.sessionsActive.Dec()
	m.sessionsEvents.WithLabelValues(m.service, "expired").Inc()
}

func (m *HTTPServerMetrics) SessionDeleted() {
	m.sessionsActive.Dec()
	m.sessionsEvents.WithLabelValues(m.service, "deleted").Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
