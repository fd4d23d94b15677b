// Package observability wires OpenTelemetry tracing for the reference host.
// Tracing is opt-in; a disabled provider hands out no-op tracers.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"storylet.ai/internal/sim/director"
)

type Config struct {
	Enabled     bool    `env:"ENABLED"`
	Endpoint    string  `env:"ENDPOINT"`
	ServiceName string  `env:"SERVICE_NAME" envDefault:"storylet-director"`
	SampleRatio float64 `env:"SAMPLE_RATIO" envDefault:"1"`
}

type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
}

// WithExporter replaces the OTLP exporter. Spans are exported synchronously.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup builds a tracer provider and registers it globally. Disabled config,
// or enabled with neither an endpoint nor an exporter, yields a no-op
// provider.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if !cfg.Enabled || (cfg.Endpoint == "" && o.exporter == nil) {
		return &Provider{}, nil
	}

	var sp sdktrace.TracerProviderOption
	if o.exporter != nil {
		sp = sdktrace.WithSyncer(o.exporter)
	} else {
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		sp = sdktrace.WithBatcher(exp)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	tp := sdktrace.NewTracerProvider(sp, sdktrace.WithResource(res), sdktrace.WithSampler(sampler))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return &Provider{tp: tp}, nil
}

func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

func (p *Provider) Tracer(name string) trace.Tracer {
	if !p.Enabled() {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// StepAttributes describes one director step on a span.
func StepAttributes(e director.LogEntry) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int64("storylet.tick", int64(e.Tick)),
		attribute.Bool("storylet.fired", e.Fired),
		attribute.Float64("storylet.heat", float64(e.Heat)),
		attribute.String("storylet.phase", e.Phase.String()),
		attribute.Int("storylet.candidates", e.Candidates),
		attribute.Int("storylet.queue_len", e.QueueLen),
	}
	if e.Session != "" {
		attrs = append(attrs, attribute.String("session.id", e.Session))
	}
	if e.Fired {
		attrs = append(attrs,
			attribute.String("storylet.id", e.StoryletID),
			attribute.Bool("storylet.forced", e.Forced),
			attribute.Bool("storylet.from_queue", e.FromQueue),
		)
		if e.Score != nil {
			attrs = append(attrs, attribute.Float64("storylet.score", e.Score.TotalScore))
		}
	}
	return attrs
}
