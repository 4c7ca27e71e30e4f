package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/mc-profile-service/config"
)

const tracerName = "github.com/duynhne/mc-profile-service"

var (
	tracerProvider *sdktrace.TracerProvider
	serviceName    = unknownService
)

// InitTracing initializes OpenTelemetry tracing using centralized config package
//
// Example:
//
//	cfg := config.Load()
//	tp, err := middleware.InitTracing(cfg)
//	defer middleware.Shutdown(ctx)
func InitTracing(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Tracing.Enabled {
		return nil, errors.New("tracing is disabled (TRACING_ENABLED=false)")
	}
	if cfg.Tracing.Endpoint == "" {
		return nil, errors.New("OTEL_COLLECTOR_ENDPOINT is required when tracing is enabled")
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1.0 {
		return nil, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got: %.2f", cfg.Tracing.SampleRate)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint),
		otlptracehttp.WithInsecure(), // in-cluster collector
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// a partial resource is still usable
	res, _ := CreateResource(ctx, cfg.Service)
	serviceName = GetServiceName(res)

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithExportTimeout(30*time.Second),
			sdktrace.WithMaxExportBatchSize(cfg.Tracing.MaxExportBatchSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRate))),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tracerProvider, nil
}

// TracingMiddleware returns a Gin middleware for OpenTelemetry tracing.
// Probe and metrics endpoints are not traced.
func TracingMiddleware() gin.HandlerFunc {
	otelMiddleware := otelgin.Middleware(
		serviceName,
		otelgin.WithTracerProvider(otel.GetTracerProvider()),
	)

	return func(c *gin.Context) {
		if !shouldCollectMetrics(c.Request.URL.Path) {
			c.Next()
			return
		}
		otelMiddleware(c)
	}
}

// StartSpan starts a new span with the given name
//
// Usage:
//
//	ctx, span := middleware.StartSpan(ctx, "profile.reconcile")
//	defer span.End()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	//nolint:spancheck // span is returned to caller who is responsible for calling span.End()
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Shutdown flushes pending spans and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	if err := tracerProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("failed to flush traces: %w", err)
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}
