package otelx

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/canchas/libs/config"
)

type Config struct {
	Enabled       bool
	ServiceName   string
	Version       string
	OTLPEndpoint  string // host:port
	SampleRatio   float64
	ExportTimeout time.Duration
}

// ConfigFromEnv reads OTEL_* variables. Tracing is off unless OTEL_ENABLED
// is set; a CLI on a workstation rarely has a collector next to it.
func ConfigFromEnv(serviceName string) Config {
	sampleRatio := 1.0
	if f, err := strconv.ParseFloat(config.String("OTEL_SAMPLING_RATIO", "1"), 64); err == nil && f >= 0 && f <= 1 {
		sampleRatio = f
	}
	timeout, err := config.Duration("OTEL_EXPORTER_OTLP_TIMEOUT", 3*time.Second)
	if err != nil {
		timeout = 3 * time.Second
	}
	return Config{
		Enabled:       config.Bool("OTEL_ENABLED", false),
		ServiceName:   serviceName,
		Version:       config.String("SERVICE_VERSION", "dev"),
		OTLPEndpoint:  config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		SampleRatio:   sampleRatio,
		ExportTimeout: timeout,
	}
}

// Resource describes one process run. Every CLI invocation is its own
// instance, so spans from two terminals never merge.
func Resource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			attribute.String("service.instance.id", uuid.NewString()),
		),
		resource.WithProcessPID(),
		resource.WithProcessExecutableName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithHost(),
	)
	// a detector that cannot read the host still leaves the service attrs
	if errors.Is(err, resource.ErrPartialResource) {
		err = nil
	}
	return res, err
}

// Setup installs propagators and, when enabled, a batching tracer provider.
// The returned func flushes pending spans before shutting the provider
// down; short-lived commands must call it before exiting.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = 3 * time.Second
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	)
	if err != nil {
		return nil, err
	}

	res, err := Resource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
