// Package telemetry wraps the OpenTelemetry tracer and counters used by
// writers and upload pipelines.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/hubject/aws-s3-io"

// Telemetry holds the instruments of one client.
type Telemetry struct {
	tracer    trace.Tracer
	parts     metric.Int64Counter
	bytes     metric.Int64Counter
	aborts    metric.Int64Counter
	completed metric.Int64Counter
}

// New creates instruments from the given providers. Nil providers fall back to
// the global ones.
func New(tp trace.TracerProvider, mp metric.MeterProvider) *Telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(scope)
	t := &Telemetry{tracer: tp.Tracer(scope)}

	// Instrument creation only fails on invalid names; the returned no-op
	// counters are still usable, so the errors are dropped.
	t.parts, _ = meter.Int64Counter("s3io.parts.uploaded",
		metric.WithDescription("Upload parts acknowledged by the store"))
	t.bytes, _ = meter.Int64Counter("s3io.bytes.uploaded",
		metric.WithDescription("Bytes acknowledged by the store"), metric.WithUnit("By"))
	t.aborts, _ = meter.Int64Counter("s3io.sessions.aborted",
		metric.WithDescription("Multipart sessions aborted after a failure"))
	t.completed, _ = meter.Int64Counter("s3io.objects.completed",
		metric.WithDescription("Objects written, by upload mode"))
	return t
}

// Object returns the attributes identifying a target object.
func Object(bucket, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("s3io.bucket", bucket),
		attribute.String("s3io.key", key),
	}
}

// StartSpan starts a child span and returns a function that ends it, recording
// err on the span when it is non-nil.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "s3io."+name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// PartUploaded counts one acknowledged part of size bytes.
func (t *Telemetry) PartUploaded(ctx context.Context, size int64, attrs ...attribute.KeyValue) {
	t.parts.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.bytes.Add(ctx, size, metric.WithAttributes(attrs...))
}

// PutUploaded counts the bytes of a single-shot put.
func (t *Telemetry) PutUploaded(ctx context.Context, size int64, attrs ...attribute.KeyValue) {
	t.bytes.Add(ctx, size, metric.WithAttributes(attrs...))
}

// SessionAborted counts an aborted multipart session.
func (t *Telemetry) SessionAborted(ctx context.Context, attrs ...attribute.KeyValue) {
	t.aborts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ObjectCompleted counts a written object; mode is "put" or "multipart".
func (t *Telemetry) ObjectCompleted(ctx context.Context, mode string, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("s3io.mode", mode))
	t.completed.Add(ctx, 1, metric.WithAttributes(attrs...))
}
