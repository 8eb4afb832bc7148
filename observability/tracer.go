package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig configures the engine's tracer provider. There is no
// exporter wired by default (SamplingRate governs cost even when every
// span is dropped locally); a deployment that wants spans shipped
// somewhere attaches a sdktrace.SpanProcessor to the returned provider.
type TracerConfig struct {
	Enabled      bool
	SamplingRate float64
	ServiceName  string
}

// InitGlobalTracer installs a tracer provider as the process-wide default,
// returning a noop provider when tracing is disabled so every call site
// can unconditionally start spans without a nil check.
func InitGlobalTracer(cfg TracerConfig) trace.TracerProvider {
	if !cfg.Enabled {
		return noop.NewTracerProvider()
	}
	if cfg.SamplingRate <= 0 {
		cfg.SamplingRate = 1.0
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan is a small helper so call sites don't repeat the
// Tracer(name).Start(ctx, spanName) pair.
func StartSpan(ctx context.Context, tracerName, spanName string) (context.Context, trace.Span) {
	return Tracer(tracerName).Start(ctx, spanName)
}
