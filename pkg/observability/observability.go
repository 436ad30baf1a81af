// Package observability exports traces and metrics for RPC calls and
// condition verification over OTLP/gRPC.
//
// A nil or disabled Provider is usable: spans come from the global no-op
// tracer and nothing is recorded.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/Mindburn-Labs/cryptoconditions"

// Config selects the collector and sampling.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // host:port of an OTLP gRPC collector
	SampleRate     float64
	ExportInterval time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig is disabled; serve turns it on from configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "cryptoconditions",
		ServiceVersion: "0.3.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		ExportInterval: 15 * time.Second,
		Insecure:       true,
	}
}

// instruments are created once per enabled Provider.
type instruments struct {
	calls      metric.Int64Counter
	failures   metric.Int64Counter
	latency    metric.Float64Histogram
	inFlight   metric.Int64UpDownCounter
	verdicts   metric.Int64Counter
	signatures metric.Int64Counter
}

// Provider owns the SDK providers and the service's instruments.
type Provider struct {
	config *Config
	logger *slog.Logger

	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	tracer  trace.Tracer
	inst    *instruments
}

// New starts the exporters when config.Enabled is set. Exporters dial
// lazily, so New succeeds without a reachable collector.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		p.logger.DebugContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	if p.traces, err = newTracerProvider(ctx, config, res); err != nil {
		return nil, err
	}
	if p.metrics, err = newMeterProvider(ctx, config, res); err != nil {
		_ = p.traces.Shutdown(ctx)
		return nil, err
	}
	otel.SetTracerProvider(p.traces)
	otel.SetMeterProvider(p.metrics)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracer = p.traces.Tracer(scope, trace.WithInstrumentationVersion(config.ServiceVersion))
	if p.inst, err = newInstruments(p.metrics.Meter(scope, metric.WithInstrumentationVersion(config.ServiceVersion))); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	p.logger.InfoContext(ctx, "telemetry enabled",
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

func newTracerProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(config.SampleRate))),
	), nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func newMeterProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	interval := config.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		in   instruments
		errs []error
		err  error
	)
	in.calls, err = m.Int64Counter("cryptoconditions.rpc.calls",
		metric.WithDescription("RPC calls dispatched"), metric.WithUnit("{call}"))
	errs = append(errs, err)
	in.failures, err = m.Int64Counter("cryptoconditions.rpc.failures",
		metric.WithDescription("RPC calls answered with an error"), metric.WithUnit("{call}"))
	errs = append(errs, err)
	in.latency, err = m.Float64Histogram("cryptoconditions.rpc.duration",
		metric.WithDescription("RPC call latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1))
	errs = append(errs, err)
	in.inFlight, err = m.Int64UpDownCounter("cryptoconditions.rpc.in_flight",
		metric.WithDescription("RPC calls in progress"), metric.WithUnit("{call}"))
	errs = append(errs, err)
	in.verdicts, err = m.Int64Counter("cryptoconditions.verify.verdicts",
		metric.WithDescription("Fulfillments checked, by outcome"), metric.WithUnit("{fulfillment}"))
	errs = append(errs, err)
	in.signatures, err = m.Int64Counter("cryptoconditions.sign.signatures",
		metric.WithDescription("Ed25519 nodes signed by signTreeEd25519"), metric.WithUnit("{signature}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("telemetry instruments: %w", err)
	}
	return &in, nil
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.traces != nil {
		errs = append(errs, p.traces.Shutdown(ctx))
	}
	if p.metrics != nil {
		errs = append(errs, p.metrics.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.WarnContext(ctx, "telemetry shutdown incomplete", "error", err)
	}
	return nil
}

// Tracer returns the service tracer, or the global one when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return otel.Tracer(scope)
	}
	return p.tracer
}

// TrackOperation opens a span for one RPC call and counts it. The returned
// func must be called exactly once with the call's error.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	set := metric.WithAttributes(attrs...)
	if in := p.instruments(); in != nil {
		in.calls.Add(ctx, 1, set)
		in.inFlight.Add(ctx, 1, set)
	}

	return ctx, func(err error) {
		if in := p.instruments(); in != nil {
			in.inFlight.Add(ctx, -1, set)
			in.latency.Record(ctx, time.Since(start).Seconds(), set)
			if err != nil {
				in.failures.Add(ctx, 1, set)
			}
		}
		SetSpanStatus(ctx, err)
		span.End()
	}
}

// RecordVerdict counts one verified fulfillment.
func (p *Provider) RecordVerdict(ctx context.Context, valid bool) {
	if in := p.instruments(); in != nil {
		in.verdicts.Add(ctx, 1, metric.WithAttributes(AttrVerifyValid.Bool(valid)))
	}
	SetSpanAttributes(ctx, AttrVerifyValid.Bool(valid))
}

// RecordSigned counts the nodes one signTreeEd25519 call signed.
func (p *Provider) RecordSigned(ctx context.Context, n int) {
	if in := p.instruments(); in != nil && n > 0 {
		in.signatures.Add(ctx, int64(n))
	}
	SetSpanAttributes(ctx, AttrNumSigned.Int(n))
}

func (p *Provider) instruments() *instruments {
	if p == nil {
		return nil
	}
	return p.inst
}
