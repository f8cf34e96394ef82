package observability

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Telemetry owns the meter and tracer providers installed at startup.
type Telemetry struct {
	MeterProvider  *metric.MeterProvider
	TracerProvider *trace.TracerProvider
	registry       *prom.Registry
}

// Options toggles the exporters.
type Options struct {
	ServiceName    string
	MetricsEnabled bool
	TracingEnabled bool
}

// Setup installs global OpenTelemetry providers. Metrics are exported through a
// dedicated Prometheus registry served by MetricsHandler. Tracing writes spans to
// stdout (replace with OTLP in prod).
func Setup(opts Options) (*Telemetry, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	t := &Telemetry{}

	if opts.MetricsEnabled {
		t.registry = prom.NewRegistry()
		t.registry.MustRegister(prom.NewGoCollector(), prom.NewProcessCollector(prom.ProcessCollectorOpts{}))
		exp, err := prometheus.New(prometheus.WithRegisterer(t.registry))
		if err != nil {
			return nil, fmt.Errorf("initialize prometheus exporter: %w", err)
		}
		t.MeterProvider = metric.NewMeterProvider(metric.WithReader(exp), metric.WithResource(res))
		otel.SetMeterProvider(t.MeterProvider)
	}

	if opts.TracingEnabled {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("initialize stdouttrace exporter: %w", err)
		}
		t.TracerProvider = trace.NewTracerProvider(
			trace.WithBatcher(exp),
			trace.WithResource(res),
		)
		otel.SetTracerProvider(t.TracerProvider)
	}

	return t, nil
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are disabled.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var firstErr error
	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if t.MeterProvider != nil {
		if err := t.MeterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
