// Package otel provides OpenTelemetry tracer provider initialization and management.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mrzor/execsnoop/internal/config"
	"github.com/mrzor/execsnoop/internal/log"
)

// InitProvider initializes the OpenTelemetry tracer provider exporting to the
// configured OTLP/HTTP endpoint. Root spans take their trace ID from
// ContextWithTraceID when one is set.
//
// Note: The HTTP client automatically honors HTTP_PROXY, HTTPS_PROXY, and
// NO_PROXY environment variables through Go's standard net/http transport.
func InitProvider(ctx context.Context, cfg *config.OTELConfig) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoint := cfg.GetEndpoint()
	log.Info("OTEL configuration",
		"service", cfg.ServiceName,
		"endpoint", endpoint,
		"resource_attributes", cfg.ResourceAttributes,
	)

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := NewResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewProvider(sdktrace.NewBatchSpanProcessor(exporter), res), nil
}

// NewResource describes this process from cfg.
func NewResource(ctx context.Context, cfg *config.OTELConfig) (*resource.Resource, error) {
	resourceAttrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if customAttrs := cfg.ParseResourceAttributes(); len(customAttrs) > 0 {
		resourceAttrs = append(resourceAttrs, resource.WithAttributes(customAttrs...))
	}

	res, err := resource.New(ctx, resourceAttrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// NewProvider builds a tracer provider around processor. Every span is
// sampled.
func NewProvider(processor sdktrace.SpanProcessor, res *resource.Resource) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithIDGenerator(newIDGenerator()),
	)
}

// ShutdownProvider gracefully shuts down the tracer provider, flushing any remaining spans.
func ShutdownProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}

	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	return nil
}
