package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used across the service.
const InstrumentationName = "farm-notify"

// GetTracer returns the tracer of the current global provider, so a
// provider installed after package init (as tests do) is picked up.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "notify.Dispatch")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Init installs an SDK tracer provider and the W3C trace-context
// propagator. Spans are not exported; the provider exists so that trace
// ids are generated for log correlation and propagated to gateways.
// ratio is the sampling ratio for root spans.
func Init(ratio float64) (shutdown func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown
}
