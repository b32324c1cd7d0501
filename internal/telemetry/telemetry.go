// Package telemetry bootstraps trace export for warren services: an OTLP
// HTTP exporter, a batching tracer provider, and an otelwarren
// instrumentor configured from warren.yml.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/pkg/otelwarren"
)

// Setup builds the instrumentor for a service. When the config carries an
// OTLP endpoint, spans are exported there and the returned shutdown
// function flushes them; otherwise the global (no-op by default) provider
// is used and shutdown does nothing. Always call shutdown on exit.
func Setup(ctx context.Context, cfg *config.WarrenConfig) (*otelwarren.Instrumentor, func(context.Context) error, error) {
	otelCfg := otelwarren.Config{}
	if cfg.Telemetry != nil {
		otelCfg.SendHeaders = cfg.Telemetry.SendHeaders
		otelCfg.SendRequestPayloads = cfg.Telemetry.SendRequestPayloads
		otelCfg.SendResponsePayloads = cfg.Telemetry.SendResponsePayloads
		otelCfg.TruncateMaxLength = cfg.Telemetry.TruncateMaxLength
	}

	endpoint := cfg.TelemetryEndpoint()
	if endpoint == "" {
		noop := func(context.Context) error { return nil }
		return otelwarren.New(otelCfg), noop, nil
	}

	exporterOpts, err := exporterOptions(endpoint)
	if err != nil {
		return nil, nil, err
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", cfg.Service.Name),
		)),
	)
	otel.SetTracerProvider(provider)

	otelCfg.TracerProvider = provider
	return otelwarren.New(otelCfg), provider.Shutdown, nil
}

// exporterOptions translates a collector URL into otlptracehttp options.
// Plain host:port values are accepted and treated as insecure.
func exporterOptions(endpoint string) ([]otlptracehttp.Option, error) {
	if !strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		}, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid telemetry endpoint %q: %w", endpoint, err)
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(u.Host)}
	switch u.Scheme {
	case "http":
		opts = append(opts, otlptracehttp.WithInsecure())
	case "https":
	default:
		return nil, fmt.Errorf("invalid telemetry endpoint %q: unsupported scheme %s", endpoint, u.Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(u.Path))
	}
	return opts, nil
}
