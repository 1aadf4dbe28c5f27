// Package monitoring sets up OpenTelemetry metrics with a Prometheus
// exporter. Instrumentation here is observational only: a metrics
// failure never affects an access decision.
package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Attribute keys for access-control metrics.
const (
	attrGuardRoute   = "rcms.guard.route"
	attrGuardOutcome = "rcms.guard.outcome"
	attrResolveKind  = "rcms.resolve.kind"
)

var (
	httpRequestsCounter   metric.Int64Counter
	httpRequestDuration   metric.Float64Histogram
	guardDecisionsCounter metric.Int64Counter
	resolveDuration       metric.Float64Histogram
	metricsHandler        http.Handler
	initialized           int32
	initOnce              sync.Once
)

// Config holds the configuration for metrics.
type Config struct {
	// ExporterType can be "prometheus" or "none" (disabled).
	ExporterType string
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service; defaults to "dev".
	ServiceVersion string
	// HistogramBuckets customizes duration bucket boundaries in seconds.
	HistogramBuckets []float64
}

// DefaultConfig returns a default configuration.
func DefaultConfig(serviceName string) Config {
	return Config{
		ExporterType:     "prometheus",
		ServiceName:      serviceName,
		ServiceVersion:   "dev",
		HistogramBuckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}
}

// Initialize sets up metrics with the given configuration. Thread-safe;
// only the first call performs initialization.
func Initialize(config Config) error {
	var initErr error
	initOnce.Do(func() {
		initErr = initializeInternal(context.Background(), config)
		if initErr == nil {
			atomic.StoreInt32(&initialized, 1)
		}
	})
	return initErr
}

func initializeInternal(ctx context.Context, config Config) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var reader sdkmetric.Reader

	switch config.ExporterType {
	case "prometheus", "":
		reg := prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		reader = exporter
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		slog.Info("Initialized metrics with Prometheus exporter", "service", config.ServiceName)

	case "none":
		reader = sdkmetric.NewManualReader()
		metricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("# Metrics disabled\n"))
		})
		slog.Info("Metrics disabled", "service", config.ServiceName)

	default:
		return fmt.Errorf("unknown exporter type: %s (supported: prometheus, none)", config.ExporterType)
	}

	histogramBuckets := config.HistogramBuckets
	if len(histogramBuckets) == 0 {
		histogramBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "http_request_duration_seconds"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: histogramBuckets,
				},
			},
		)),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "resolution_duration_seconds"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: histogramBuckets,
				},
			},
		)),
	)

	otel.SetMeterProvider(meterProvider)
	meter := otel.Meter("rcms-portal")

	httpRequestsCounter, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	guardDecisionsCounter, err = meter.Int64Counter(
		"guard_decisions_total",
		metric.WithDescription("Total number of route guard decisions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create guard_decisions_total counter: %w", err)
	}

	resolveDuration, err = meter.Float64Histogram(
		"resolution_duration_seconds",
		metric.WithDescription("Auth and role resolution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create resolution_duration_seconds histogram: %w", err)
	}

	return nil
}

// Handler returns the metrics HTTP endpoint.
func Handler() http.Handler {
	if atomic.LoadInt32(&initialized) == 0 || metricsHandler == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("# Metrics not initialized\n"))
		})
	}
	return metricsHandler
}

// responseWriter captures the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware wraps an HTTP handler to record request metrics.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&initialized) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()

		// Use "unknown" for 404s to prevent cardinality explosion.
		route := normalizeRoute(r.URL.Path)
		if rw.statusCode == http.StatusNotFound {
			route = "unknown"
		}

		httpRequestsCounter.Add(context.Background(), 1,
			metric.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCodeKey.Int(rw.statusCode),
			),
		)
		httpRequestDuration.Record(context.Background(), duration,
			metric.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
			),
		)
	})
}

// RecordGuardDecision counts one route guard outcome (admit, deny,
// redirect_login).
func RecordGuardDecision(route, outcome string) {
	if atomic.LoadInt32(&initialized) == 0 {
		return
	}
	guardDecisionsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(attrGuardRoute, route),
			attribute.String(attrGuardOutcome, outcome),
		),
	)
}

// RecordResolution records the latency of one auth or role resolution.
func RecordResolution(kind string, duration time.Duration) {
	if atomic.LoadInt32(&initialized) == 0 {
		return
	}
	resolveDuration.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(
			attribute.String(attrResolveKind, kind),
		),
	)
}

// normalizeRoute collapses id path segments so route labels stay low
// cardinality.
func normalizeRoute(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if looksLikeID(part) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func looksLikeID(segment string) bool {
	if len(segment) == 0 {
		return false
	}
	digits := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	// UUIDs and numeric ids; plain words pass through.
	return digits > 0 && (digits == len(segment) || len(segment) >= 32)
}
