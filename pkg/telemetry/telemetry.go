// OTel SDK bootstrap for the demo service.
// Builds one resource and one provider per signal (traces, metrics, logs).
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Supported OTLP transport protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

const (
	defaultGRPCPort = "4317"
	defaultHTTPPort = "4318"
)

// Config describes where and how telemetry leaves the process.
type Config struct {
	Endpoint       string        // collector address as host or host:port
	Protocol       string        // "grpc" or "http/protobuf"
	Insecure       bool          // plaintext transport to the collector
	Stdout         bool          // emit all signals to stdout instead of OTLP
	SampleRatio    float64       // parent-based trace-id ratio, 1.0 samples everything
	MetricInterval time.Duration // periodic metric export interval, 0 uses the SDK default
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("unsupported protocol %q, supported: grpc, http/protobuf", c.Protocol)
	}
	if !c.Stdout && c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty unless stdout mode is enabled")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be within [0, 1], got %g", c.SampleRatio)
	}
	if c.MetricInterval < 0 {
		return fmt.Errorf("metric interval must not be negative, got %s", c.MetricInterval)
	}
	return nil
}

// HostPort returns the endpoint with the protocol's default port
// appended when the configured value carries none.
func (c Config) HostPort() string {
	host := c.Endpoint
	if _, _, err := net.SplitHostPort(host); err != nil {
		port := defaultHTTPPort
		if c.Protocol == ProtocolGRPC {
			port = defaultGRPCPort
		}
		host = net.JoinHostPort(host, port)
	}
	return host
}

// Providers bundles the three signal providers sharing one resource.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
}

// Setup constructs exporters and providers for all three signals.
// Exporters are batched against the OTLP endpoint, or synchronous to stdout
// when cfg.Stdout is set. Export failures after Setup stay inside the SDK
// pipeline and never surface to request handling.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	traceExporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	metricExporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		shutdownAll(ctx, []shutdownable{traceExporter})
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	logExporter, err := newLogExporter(ctx, cfg)
	if err != nil {
		shutdownAll(ctx, []shutdownable{traceExporter, metricExporter})
		return nil, fmt.Errorf("creating log exporter: %w", err)
	}

	var spanProcessor sdktrace.SpanProcessor
	if cfg.Stdout {
		spanProcessor = sdktrace.NewSimpleSpanProcessor(traceExporter)
	} else {
		spanProcessor = sdktrace.NewBatchSpanProcessor(traceExporter)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if cfg.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
	}

	var logProcessor sdklog.Processor
	if cfg.Stdout {
		logProcessor = sdklog.NewSimpleProcessor(logExporter)
	} else {
		logProcessor = sdklog.NewBatchProcessor(logExporter)
	}

	return &Providers{
		TracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(spanProcessor),
			sdktrace.WithSampler(sampler),
			sdktrace.WithResource(res),
		),
		MeterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, readerOpts...)),
			sdkmetric.WithResource(res),
		),
		LoggerProvider: sdklog.NewLoggerProvider(
			sdklog.WithProcessor(logProcessor),
			sdklog.WithResource(res),
		),
	}, nil
}

// Slog returns a structured logger whose records flow through the log
// pipeline, carrying the trace/span ids of any span active in the ctx
// passed at the call site.
func (p *Providers) Slog(name string) *slog.Logger {
	return otelslog.NewLogger(name, otelslog.WithLoggerProvider(p.LoggerProvider))
}

// ForceFlush drains every pending batch across all three signals.
func (p *Providers) ForceFlush(ctx context.Context) error {
	return errors.Join(
		p.TracerProvider.ForceFlush(ctx),
		p.MeterProvider.ForceFlush(ctx),
		p.LoggerProvider.ForceFlush(ctx),
	)
}

// Shutdown stops all providers concurrently, flushing batched telemetry.
// A slow provider does not block the others beyond ctx.
func (p *Providers) Shutdown(ctx context.Context) error {
	return shutdownAll(ctx, []shutdownable{
		p.TracerProvider,
		p.MeterProvider,
		p.LoggerProvider,
	})
}

func newResource(cfg Config) (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
}

// shutdownable is anything with a Shutdown method (providers and exporters).
type shutdownable interface {
	Shutdown(context.Context) error
}

func shutdownAll(ctx context.Context, items []shutdownable) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, item := range items {
		wg.Go(func() {
			if err := item.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}
