// Package observability holds the tracing, metrics and log-filter stages of
// the request pipeline.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"user-gateway/pkg/logger"
)

const tracerName = "user-gateway/http"

// NewTracerProvider builds the process tracer provider and installs it, with
// W3C trace-context propagation, as the otel global. Callers own Shutdown.
func NewTracerProvider(service, version string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		attribute.String("service.name", service),
		attribute.String("service.version", version),
	)
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}, opts...)

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp
}

// Tracer returns the tracer used by the tracing stage.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(tracerName)
}

// Tracing opens one span per request, binds a request-scoped logger and, once
// the rest of the chain has run, writes the request summary log and ends the
// span. It must be the first stage of every group.
func Tracing(tracer trace.Tracer, base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := routeOf(c)
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", c.Request.URL.Path),
			),
		)
		defer span.End()

		rid := logger.RequestID(c)
		l := base.With("request_id", rid)
		if sc := span.SpanContext(); sc.HasTraceID() {
			l = l.With("trace_id", sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)
		logger.Bind(c, l)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}

		logger.LogRequest(c, l, start)
	}
}

func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

