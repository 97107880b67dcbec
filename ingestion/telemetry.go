package ingestion

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/poiesic/docvec/ingestion"

// Run outcomes recorded on the runs counter.
const (
	outcomeIndexed  = "indexed"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
)

type telemetry struct {
	tracer        trace.Tracer
	runs          metric.Int64Counter
	chunks        metric.Int64Counter
	stageDuration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	runs, err := meter.Int64Counter("docvec.ingestion.runs",
		metric.WithDescription("Pipeline runs by outcome"))
	if err != nil {
		return nil, err
	}
	chunks, err := meter.Int64Counter("docvec.ingestion.chunks",
		metric.WithDescription("Chunks stored by successful runs"))
	if err != nil {
		return nil, err
	}
	stageDuration, err := meter.Float64Histogram("docvec.ingestion.stage.duration",
		metric.WithDescription("Pipeline stage duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &telemetry{
		tracer:        tp.Tracer(instrumentationName),
		runs:          runs,
		chunks:        chunks,
		stageDuration: stageDuration,
	}, nil
}

func (t *telemetry) recordStage(ctx context.Context, stage string, started time.Time, err error) {
	t.stageDuration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("error", err != nil),
	))
}

func (t *telemetry) recordRun(ctx context.Context, outcome string, chunks int) {
	t.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if chunks > 0 {
		t.chunks.Add(ctx, int64(chunks))
	}
}
