package cycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// ServiceName is the resource service.name of every exported span
const ServiceName = "pleno-audit"

// LogSpanExporter writes finished spans to a zap logger at debug level.
// It never fails an export.
type LogSpanExporter struct {
	logger *zap.Logger
}

// NewLogSpanExporter creates an exporter writing to logger
func NewLogSpanExporter(logger *zap.Logger) *LogSpanExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSpanExporter{logger: logger.Named("trace")}
}

// ExportSpans implements sdktrace.SpanExporter
func (e *LogSpanExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		fields := []zap.Field{
			zap.String("span", span.Name()),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
			zap.Duration("duration", span.EndTime().Sub(span.StartTime())),
			zap.String("status", span.Status().Code.String()),
		}
		if parent := span.Parent(); parent.IsValid() {
			fields = append(fields, zap.String("parent_id", parent.SpanID().String()))
		}
		for _, kv := range span.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug("span", fields...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter
func (e *LogSpanExporter) Shutdown(context.Context) error {
	return nil
}

// NewTracerProvider returns a provider exporting spans synchronously to logger.
// Callers own the provider and must Shutdown it.
func NewTracerProvider(logger *zap.Logger) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", ServiceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(NewLogSpanExporter(logger))),
		sdktrace.WithResource(res),
	)
}
