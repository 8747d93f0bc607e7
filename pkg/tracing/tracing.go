// Package tracing wraps OpenTelemetry tracing for the Realtime API
// client: one span per control-plane call and around clock-offset
// estimation. A nil *Tracer is a no-op, so the core streaming path
// never requires an SDK to be configured.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ethan/neon-realtime/pkg/control"

// Tracer wraps an OpenTelemetry tracer.
type Tracer struct {
	tracer trace.Tracer
}

// NewStdout builds a Tracer that writes spans to stdout, useful for
// local inspection without a collector.
func NewStdout() (*Tracer, func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return &Tracer{tracer: provider.Tracer(instrumentationName)}, provider.Shutdown, nil
}

// New wraps an already-configured global TracerProvider.
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// StartControlSpan starts a span around one control-plane call. If t
// is nil, ctx is returned unchanged and the returned end function is
// a no-op.
func (t *Tracer) StartControlSpan(ctx context.Context, path string) (context.Context, func(err error)) {
	if t == nil {
		return ctx, func(error) {}
	}

	ctx, span := t.tracer.Start(ctx, "control."+path, trace.WithAttributes(
		attribute.String("realtime.api.path", path),
	))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StartTimeEchoSpan starts a span around a time-offset estimation
// round. If t is nil, ctx is returned unchanged and the returned end
// function is a no-op.
func (t *Tracer) StartTimeEchoSpan(ctx context.Context, numberOfMeasurements int) (context.Context, func(err error)) {
	if t == nil {
		return ctx, func(error) {}
	}

	ctx, span := t.tracer.Start(ctx, "timeecho.estimate", trace.WithAttributes(
		attribute.Int("realtime.timeecho.measurements", numberOfMeasurements),
	))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
