package tracer

import (
	"context"
	"log"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const defaultEndpoint = "localhost:4318"

// Settings is the tracing part of the environment.
type Settings struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

// SettingsFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_SAMPLE_RATIO. The ratio is clamped to [0, 1] and defaults to 1.
func SettingsFromEnv() Settings {
	s := Settings{
		Enabled:     os.Getenv("OTEL_ENABLED") == "true",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if s.Endpoint == "" {
		s.Endpoint = defaultEndpoint
	}
	if raw := os.Getenv("OTEL_SAMPLE_RATIO"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			s.SampleRatio = min(max(v, 0), 1)
		}
	}
	return s
}

// InitTracer installs an OTLP/HTTP tracer provider (Jaeger accepts OTLP on
// 4318) and returns its shutdown function. Tracing is off unless
// OTEL_ENABLED=true; mark-read and event handling spans are sampled by
// OTEL_SAMPLE_RATIO.
func InitTracer(serviceName string) func(context.Context) error {
	noop := func(context.Context) error { return nil }

	s := SettingsFromEnv()
	if !s.Enabled {
		log.Println("OpenTelemetry tracing is disabled (set OTEL_ENABLED=true to enable)")
		return noop
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(s.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Printf("Warning: Failed to create OTLP exporter: %v (tracing disabled)", err)
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SampleRatio))),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	log.Printf("OpenTelemetry tracer initialized for %s (endpoint: %s, sample ratio: %.2f)", serviceName, s.Endpoint, s.SampleRatio)

	return tp.Shutdown
}
