// Package otel provides OpenTelemetry integration for toolpack tool runs and
// installs.
package otel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petal-labs/toolpack/tool"
)

// InstrumentationName is the meter and tracer name used by toolpack.
const InstrumentationName = "github.com/petal-labs/toolpack"

// Config selects the telemetry pipeline.
type Config struct {
	ServiceName string
	// Endpoint is an OTLP/HTTP collector host:port. Empty disables export.
	Endpoint string
	Insecure bool
	// Logger receives a metric summary on shutdown. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Telemetry owns the providers created by Setup.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Observer       *ToolObserver

	reader *sdkmetric.ManualReader
	logger *slog.Logger
}

// Setup builds tracer and meter providers, installs a ToolObserver as the
// process-wide tool observer and returns the handle used to shut them down.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "toolpack"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
			logger.Warn("using insecure connection for OTLP exporter", "endpoint", endpoint)
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("otel: create OTLP trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))

	observer, err := NewToolObserver(mp.Meter(InstrumentationName), tp.Tracer(InstrumentationName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("otel: create tool observer: %w", err)
	}
	tool.SetObserver(observer)

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		Observer:       observer,
		reader:         reader,
		logger:         logger,
	}, nil
}

// Collect returns the metrics recorded so far.
func (t *Telemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	if t == nil || t.reader == nil {
		return rm, nil
	}
	err := t.reader.Collect(ctx, &rm)
	return rm, err
}

// Shutdown logs a metric summary at debug level, detaches the tool observer
// and flushes the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if rm, err := t.Collect(ctx); err == nil {
		for _, scope := range rm.ScopeMetrics {
			for _, m := range scope.Metrics {
				t.logger.Debug("metric", "name", m.Name, "points", dataPoints(m.Data))
			}
		}
	}
	tool.SetObserver(nil)
	return errors.Join(t.TracerProvider.Shutdown(ctx), t.MeterProvider.Shutdown(ctx))
}

func dataPoints(data metricdata.Aggregation) int {
	switch d := data.(type) {
	case metricdata.Sum[int64]:
		return len(d.DataPoints)
	case metricdata.Sum[float64]:
		return len(d.DataPoints)
	case metricdata.Histogram[float64]:
		return len(d.DataPoints)
	default:
		return 0
	}
}
