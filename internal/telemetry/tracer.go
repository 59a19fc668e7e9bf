// Package telemetry wires OpenTelemetry tracing, Prometheus metrics and a
// gRPC health endpoint around the scheduling core. None of it is imported
// by internal/scheduler or any package it depends on; the core only ever
// talks to host.Host. This package is purely the driver's observability
// shell, sitting outside the handler path entirely.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the tracer provider.
type TracingConfig struct {
	Enabled     bool
	Exporter    string // otlp-http, stdout
	Endpoint    string
	ServiceName string
	SampleRate  float64
}

type provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var global = &provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer("")}

// InitTracing initializes the global tracer provider. A disabled config
// installs a no-op tracer so span-producing code never branches on
// Enabled itself.
func InitTracing(ctx context.Context, cfg TracingConfig) error {
	if !cfg.Enabled {
		global = &provider{enabled: false, tracer: trace.NewNoopTracerProvider().Tracer("")}
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp-http", "otlp":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("create OTLP exporter: %w", err)
		}
		exporter = exp
	case "stdout":
		exporter = &noopExporter{}
	default:
		return fmt.Errorf("unknown exporter: %s", cfg.Exporter)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 && cfg.SampleRate >= 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global = &provider{tp: tp, tracer: tp.Tracer(cfg.ServiceName), enabled: true}
	return nil
}

// ShutdownTracing flushes and releases the tracer provider.
func ShutdownTracing(ctx context.Context) error {
	if global.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return global.tp.Shutdown(ctx)
}

// TracingEnabled reports whether a real exporter is wired up.
func TracingEnabled() bool { return global.enabled }

// StartHandlerSpan starts one span per scheduling core handler invocation.
func StartHandlerSpan(ctx context.Context, handler string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{AttrHandler.String(handler)}, attrs...)
	return global.tracer.Start(ctx, "helios."+handler, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindInternal))
}

// RecordSpanError marks span as failed.
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSpanOK marks span as successful.
func RecordSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Attribute keys attached to handler spans.
var (
	AttrHandler = attribute.Key("helios.handler")
	AttrMachine = attribute.Key("helios.machine.id")
	AttrVM      = attribute.Key("helios.vm.id")
	AttrTask    = attribute.Key("helios.task.id")
	AttrTier    = attribute.Key("helios.placement.tier")
)

type noopExporter struct{}

func (e *noopExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error { return nil }
func (e *noopExporter) Shutdown(ctx context.Context) error                                  { return nil }
