// Package telemetry wires Prometheus metrics and an OpenTelemetry/Jaeger
// tracer scoped to the engine's concerns: executions, node durations,
// retries, rate-limit throttling, and merge timeouts.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls telemetry initialization.
type Config struct {
	ServiceName    string
	JaegerEndpoint string
	MetricsEnabled bool
	TracingEnabled bool
}

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	ExecutionsStarted   prometheus.Counter
	ExecutionsCompleted *prometheus.CounterVec
	NodeDuration        *prometheus.HistogramVec
	RetryAttempts       prometheus.Counter
	RateLimitThrottled  *prometheus.CounterVec
	MergeTimeouts       prometheus.Counter
}

// Telemetry holds the engine's telemetry components.
type Telemetry struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	registry *prometheus.Registry
	Metrics  *Metrics
}

// New builds a Telemetry instance, registering the engine's metric
// instruments and, if enabled, a Jaeger tracer.
func New(cfg Config) (*Telemetry, error) {
	t := &Telemetry{registry: prometheus.NewRegistry()}

	if cfg.TracingEnabled {
		provider, err := initTracer(cfg.ServiceName, cfg.JaegerEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		t.provider = provider
		t.tracer = otel.Tracer(cfg.ServiceName)
	} else {
		t.tracer = trace.NewNoopTracerProvider().Tracer(cfg.ServiceName)
	}

	if cfg.MetricsEnabled {
		t.Metrics = registerMetrics(t.registry)
	}

	return t, nil
}

func registerMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ExecutionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_executions_started_total",
			Help: "Executions started.",
		}),
		ExecutionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_executions_completed_total",
			Help: "Executions completed, by terminal status.",
		}, []string{"status"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_node_duration_seconds",
			Help:    "Node handler invocation duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node_type"}),
		RetryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_retry_attempts_total",
			Help: "Retry attempts made across all retry nodes.",
		}),
		RateLimitThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_rate_limit_throttled_total",
			Help: "Rate-limit acquires that were throttled, by bucket.",
		}, []string{"bucket_id"}),
		MergeTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_merge_timeouts_total",
			Help: "Merge nodes that produced output via timeout rather than satisfied wait condition.",
		}),
	}
	reg.MustRegister(
		m.ExecutionsStarted,
		m.ExecutionsCompleted,
		m.NodeDuration,
		m.RetryAttempts,
		m.RateLimitThrottled,
		m.MergeTimeouts,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func initTracer(serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the engine's tracer (a no-op tracer if tracing is disabled).
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

// MetricsHandler exposes the registry in the Prometheus exposition format.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Registerer exposes the underlying registry so other packages (the log
// pipeline's metrics sink) can register additional instruments onto the
// same /metrics surface instead of standing up a second registry.
func (t *Telemetry) Registerer() prometheus.Registerer {
	return t.registry
}

// Close shuts down the tracer provider, flushing any pending spans.
func (t *Telemetry) Close() error {
	if t.provider != nil {
		return t.provider.Shutdown(context.Background())
	}
	return nil
}
