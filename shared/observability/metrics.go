package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chat-risk-analysis/backend"

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// PipelineMetrics are the counters and histograms recorded by ingest and the worker.
type PipelineMetrics struct {
	uploads     metric.Int64Counter
	analyses    metric.Int64Counter
	deadLetters metric.Int64Counter
	duration    metric.Float64Histogram
	fragments   metric.Int64Histogram
}

// NewPipelineMetrics registers instruments on the global meter provider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &PipelineMetrics{}
	var err error
	if m.uploads, err = meter.Int64Counter("chat_uploads_total",
		metric.WithDescription("Chat uploads by outcome")); err != nil {
		return nil, err
	}
	if m.analyses, err = meter.Int64Counter("analyses_total",
		metric.WithDescription("Completed analysis tasks by result status")); err != nil {
		return nil, err
	}
	if m.deadLetters, err = meter.Int64Counter("analysis_dead_letters_total",
		metric.WithDescription("Dead letter records by stage")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("analysis_duration_seconds",
		metric.WithDescription("Wall time of one analysis task"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.fragments, err = meter.Int64Histogram("analysis_retrieved_fragments",
		metric.WithDescription("Reference fragments retrieved per analysis")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) Upload(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *PipelineMetrics) Analysis(ctx context.Context, status string, seconds float64, fragments int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.analyses.Add(ctx, 1, attrs)
	m.duration.Record(ctx, seconds, attrs)
	m.fragments.Record(ctx, int64(fragments))
}

func (m *PipelineMetrics) DeadLetter(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.deadLetters.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
