// Package tracing wires OpenTelemetry into the service: the shared tracer,
// provider setup, and the HTTP server middleware.
//
//	shutdown := tracing.Init(1.0)
//	defer shutdown(context.Background())
//
//	handler := tracing.Middleware(mux)
package tracing
