package observability

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

const DefaultServiceName = "roadmap-tracker"

const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

type OtelConfig struct {
	Enabled     bool
	ServiceName string
	Environment string
	Version     string

	// Exporter is otlp, stdout or none. Empty picks otlp when Endpoint is
	// set and stdout otherwise.
	Exporter    string
	Endpoint    string
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

var (
	otelOnce     sync.Once
	otelShutdown = func(context.Context) error { return nil }
)

// InitOTel installs the global tracer provider on first call; later calls
// return the same shutdown func. The result is never nil.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		if !cfg.Enabled {
			return
		}
		log = log.With("component", "otel")
		cfg.ServiceName = strings.TrimSpace(cfg.ServiceName)
		if cfg.ServiceName == "" {
			cfg.ServiceName = DefaultServiceName
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(cfg.SampleRatio)))),
			sdktrace.WithResource(newResource(ctx, log, cfg)),
		}
		exporter, err := newExporter(ctx, cfg)
		switch {
		case err != nil:
			log.Warn("trace exporter unavailable, spans stay local", "exporter", cfg.Exporter, "error", err)
		case exporter != nil:
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otelShutdown = tp.Shutdown
		log.Info("tracing enabled", "service", cfg.ServiceName, "exporter", exporterKind(cfg), "endpoint", cfg.Endpoint)
	})
	return otelShutdown
}

func newResource(ctx context.Context, log *logger.Logger, cfg OtelConfig) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if v := strings.TrimSpace(cfg.Version); v != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(v))
	}
	if env := strings.TrimSpace(cfg.Environment); env != "" {
		attrs = append(attrs, attribute.String("deployment.environment", env))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		log.Warn("otel resource incomplete", "error", err)
	}
	return res
}

func exporterKind(cfg OtelConfig) string {
	kind := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if kind != "" {
		return kind
	}
	if strings.TrimSpace(cfg.Endpoint) != "" {
		return ExporterOTLP
	}
	return ExporterStdout
}

func newExporter(ctx context.Context, cfg OtelConfig) (sdktrace.SpanExporter, error) {
	switch kind := exporterKind(cfg); kind {
	case ExporterNone:
		return nil, nil
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		endpoint := strings.TrimSpace(cfg.Endpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("otlp exporter needs an endpoint")
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", kind)
	}
}

// Tracer returns a named tracer from the global provider; a no-op until
// InitOTel installs one.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(DefaultServiceName + "/" + name)
}

// StartSpan opens a span named "<scope>.<op>" on the scope's tracer.
func StartSpan(ctx context.Context, scope, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(scope).Start(ctx, scope+"."+op, trace.WithAttributes(attrs...))
}

// FinishSpan records err (if any) and ends span.
func FinishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func clampRatio(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// ParseHeaders reads "k1=v1,k2=v2" as used by OTEL_EXPORTER_OTLP_HEADERS.
func ParseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(part, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			continue
		}
		headers[key] = val
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
