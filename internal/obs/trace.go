package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "arteng.org"

// Tracer returns the tracer used for spans around identity and store calls.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// InitTracing installs an SDK tracer provider whose finished spans are written
// to the shared logger at debug level. The returned function flushes and
// shuts the provider down.
func InitTracing(serviceName, version string, sampleRatio float64) func(context.Context) error {
	if sampleRatio <= 0 {
		sampleRatio = 1
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
		sdktrace.WithBatcher(logExporter{}),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// logExporter writes span summaries to the process logger.
type logExporter struct{}

func (logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	l := Logger()
	for _, s := range spans {
		l.Debug("span",
			zap.String("name", s.Name()),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
			zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
			zap.String("status", s.Status().Code.String()),
		)
	}
	return nil
}

func (logExporter) Shutdown(context.Context) error { return nil }
