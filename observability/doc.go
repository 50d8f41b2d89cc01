// Package observability provides OpenTelemetry tracing and metrics for
// consulagent invocations.
//
// Telemetry is off unless an OTLP endpoint is configured; the global no-op
// providers then absorb every span and measurement.
//
//	shutdown, err := observability.Setup(ctx, observability.Config{
//	    ServiceName: "consulagent",
//	    Endpoint:    "localhost:4318",
//	})
//	defer shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "registration.build")
//	defer span.End()
//
// Invocation-scoped context:
//
//	inv := observability.NewInvocation("register", id)
//	ctx, span := inv.Start(ctx)
//	defer inv.End(span, err)
package observability
