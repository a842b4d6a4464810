// Package tracing installs the process-wide OpenTelemetry tracer provider that
// the intake, review and batch spans are recorded on.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporters accepted by WithExporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrNoEndpoint is returned when the otlp exporter is chosen without a URL.
var ErrNoEndpoint = errors.New("otlp exporter needs an endpoint")

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(ctx context.Context) error

type settings struct {
	exporter string
	endpoint string
	ratio    float64
	service  string
	out      io.Writer
}

// Option configures Init.
type Option func(*settings)

// WithExporter selects none (default), stdout or otlp.
func WithExporter(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.exporter = strings.ToLower(name)
		}
	}
}

// WithEndpoint sets the OTLP/HTTP collector URL, e.g. http://localhost:4318.
func WithEndpoint(url string) Option {
	return func(s *settings) { s.endpoint = url }
}

// WithSampleRatio samples that fraction of root traces. Child spans follow
// their parent's decision.
func WithSampleRatio(ratio float64) Option {
	return func(s *settings) { s.ratio = ratio }
}

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.service = name
		}
	}
}

// WithOutput redirects the stdout exporter, mainly for tests.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.out = w
		}
	}
}

// Init builds a tracer provider for the selected exporter and installs it
// globally along with the W3C trace-context propagator. With the none
// exporter nothing is installed and the returned shutdown does nothing.
func Init(ctx context.Context, opts ...Option) (ShutdownFunc, error) {
	s := settings{exporter: ExporterNone, ratio: 1, service: "attendee-intake", out: os.Stderr}
	for _, opt := range opts {
		opt(&s)
	}
	noop := func(context.Context) error { return nil }

	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch s.exporter {
	case ExporterNone:
		return noop, nil
	case ExporterStdout:
		exp, err = stdouttrace.New(stdouttrace.WithWriter(s.out))
	case ExporterOTLP:
		if s.endpoint == "" {
			return noop, ErrNoEndpoint
		}
		exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(s.endpoint))
	default:
		return noop, fmt.Errorf("unknown trace exporter: %s", s.exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("create %s trace exporter: %w", s.exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.ratio))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", s.service))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
