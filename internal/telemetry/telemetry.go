// Package telemetry holds the tracer and metric instruments used by the
// materialization pipeline. Instruments are created on the global otel
// providers, so they are no-ops until the process installs real ones.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/puppyone-ai/puppyone-sub007"

type instruments struct {
	resources metric.Int64Counter
	parts     metric.Int64Counter
	bytes     metric.Int64Counter
	rebuilds  metric.Int64Counter
}

var (
	once sync.Once
	inst instruments
)

func load() *instruments {
	once.Do(func() {
		meter := otel.Meter(instrumentationName)
		// Errors only occur for invalid instrument names; fall back to no-ops.
		var err error
		if inst.resources, err = meter.Int64Counter("materializer.resources",
			metric.WithDescription("Resources processed, by type, storage class and outcome")); err != nil {
			otel.Handle(err)
		}
		if inst.parts, err = meter.Int64Counter("storage.parts_uploaded",
			metric.WithDescription("Parts and manifests written to object storage")); err != nil {
			otel.Handle(err)
		}
		if inst.bytes, err = meter.Int64Counter("storage.bytes_uploaded",
			metric.WithDescription("Bytes written to object storage"),
			metric.WithUnit("By")); err != nil {
			otel.Handle(err)
		}
		if inst.rebuilds, err = meter.Int64Counter("rebuild.outcomes",
			metric.WithDescription("Vector auto-rebuild outcomes by status")); err != nil {
			otel.Handle(err)
		}
	})
	return &inst
}

// Tracer returns the pipeline tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named name with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordResource counts one processed resource.
func RecordResource(ctx context.Context, resourceType, storageClass, outcome string) {
	if c := load().resources; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource.type", resourceType),
			attribute.String("storage.class", storageClass),
			attribute.String("outcome", outcome),
		))
	}
}

// RecordUpload counts one object written and its size.
func RecordUpload(ctx context.Context, kind string, size int64) {
	i := load()
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if i.parts != nil {
		i.parts.Add(ctx, 1, attrs)
	}
	if i.bytes != nil {
		i.bytes.Add(ctx, size, attrs)
	}
}

// RecordRebuild counts one auto-rebuild outcome.
func RecordRebuild(ctx context.Context, status string) {
	if c := load().rebuilds; c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}
