package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/config"
)

// InstrumentationName identifies spans emitted by this module.
const InstrumentationName = "github.com/Tdawg-development/Canvas-Tracker-V3-sub000"

// Init installs a global tracer provider and returns its shutdown func.
// When tracing is disabled the global no-op provider stays in place.
func Init(ctx context.Context, cfg *config.Config, log *zap.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Tracing.Enabled {
		return noop, nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	name := strings.TrimSpace(cfg.Tracing.ServiceName)
	if name == "" {
		name = "canvas-sync"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", name),
		attribute.String("deployment.environment", cfg.Env),
	))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", zap.Error(err))
	}

	exporter, err := newExporter(ctx, cfg.Tracing)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("otel tracing initialized", zap.String("service", name), zap.String("endpoint", cfg.Tracing.OTLPEndpoint))
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}
