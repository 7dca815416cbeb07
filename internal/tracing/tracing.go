// Package tracing настраивает экспорт spans через OTLP/HTTP.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	defaultExportTimeout = 10 * time.Second
	defaultMaxQueueSize  = 2048
)

// Config задаёт параметры экспорта трейсов.
type Config struct {
	// Endpoint задаёт host:port OTLP-коллектора. Пустое значение выключает экспорт.
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
}

// Shutdown сбрасывает буфер spans и останавливает провайдер.
type Shutdown func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup регистрирует глобальный TracerProvider с OTLP-экспортёром.
// При пустом Endpoint ничего не делает и возвращает пустой Shutdown.
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	if cfg.Endpoint == "" {
		return noopShutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, err
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	provider := newProvider(res, sdktrace.NewBatchSpanProcessor(exporter,
		sdktrace.WithExportTimeout(defaultExportTimeout),
		sdktrace.WithMaxQueueSize(defaultMaxQueueSize),
	))
	install(provider)

	return provider.Shutdown, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil && !errors.Is(err, resource.ErrSchemaURLConflict) {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

func newProvider(res *resource.Resource, processor sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
	)
}

func install(provider *sdktrace.TracerProvider) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(provider)
}
