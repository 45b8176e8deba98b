package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "quote_engine"

// Metrics stores Prometheus collectors used by the API, orchestrator and scanner.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDuration        *prometheus.HistogramVec
	quoteRequestsTotal         *prometheus.CounterVec
	providerInvocationsTotal   *prometheus.CounterVec
	providerInvocationDuration *prometheus.HistogramVec
	providerAttemptsTotal      *prometheus.CounterVec
	fanoutInflight             prometheus.Gauge
	stuckRequests              prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		quoteRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "quote_requests_total",
				Help:      "Total number of quote requests by terminal status.",
			},
			[]string{"status"},
		),
		providerInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "provider_invocations_total",
				Help:      "Total number of provider invocations by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		providerInvocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "provider_invocation_duration_seconds",
				Help:      "Provider invocation duration in seconds, retries included.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider"},
		),
		providerAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "provider_attempts_total",
				Help:      "Total number of network attempts made against providers.",
			},
			[]string{"provider"},
		),
		fanoutInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "fanout_inflight",
				Help:      "Current number of in-flight provider invocations.",
			},
		),
		stuckRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "stuck_requests",
				Help:      "Pending quote requests older than the request deadline plus grace.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.quoteRequestsTotal,
		m.providerInvocationsTotal,
		m.providerInvocationDuration,
		m.providerAttemptsTotal,
		m.fanoutInflight,
		m.stuckRequests,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncQuoteRequest(status string) {
	if m == nil {
		return
	}
	m.quoteRequestsTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObserveProviderInvocation records one settled invocation. outcome is
// "success" or the provider error kind.
func (m *Metrics) ObserveProviderInvocation(provider string, outcome string, attempts int, duration time.Duration) {
	if m == nil {
		return
	}

	providerLabel := normalizeLabel(provider)
	m.providerInvocationsTotal.WithLabelValues(providerLabel, normalizeLabel(outcome)).Inc()
	m.providerInvocationDuration.WithLabelValues(providerLabel).Observe(max(duration.Seconds(), 0))
	if attempts > 0 {
		m.providerAttemptsTotal.WithLabelValues(providerLabel).Add(float64(attempts))
	}
}

func (m *Metrics) IncFanoutInFlight() {
	if m == nil {
		return
	}
	m.fanoutInflight.Inc()
}

func (m *Metrics) DecFanoutInFlight() {
	if m == nil {
		return
	}
	m.fanoutInflight.Dec()
}

func (m *Metrics) SetStuckRequests(count int64) {
	if m == nil {
		return
	}
	m.stuckRequests.Set(float64(count))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
