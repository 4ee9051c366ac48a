package api

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gridsignals/urbangrid-simulator/internal/logging"
	"github.com/gridsignals/urbangrid-simulator/internal/observability"
)

const requestIDHeader = "X-Request-Id"

const tracerName = "github.com/gridsignals/urbangrid-simulator/internal/api"

// withRequestLogger ensures a request_id is present on the context, sourcing
// it from the inbound X-Request-Id header if provided, and attaches a
// per-request logger annotated with request_id and route.
func withRequestLogger(base logging.Logger, route string, next http.Handler) http.Handler {
	if base == nil {
		base = logging.Noop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("route", route)))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withSpan wraps the handler in an OTel span named after the route.
func withSpan(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer(tracerName).Start(r.Context(), route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// instrument stacks the standard middleware for one route: request-scoped
// logging, Prometheus counters, and a tracing span.
func instrument(log logging.Logger, collector *observability.EngineCollector, route string, h http.HandlerFunc) http.Handler {
	var handler http.Handler = h
	handler = withSpan(route, handler)
	if collector != nil {
		handler = collector.Middleware(route, handler)
	}
	return withRequestLogger(log, route, handler)
}
