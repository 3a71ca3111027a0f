package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolpack/tool"
)

// Metric names recorded by ToolObserver.
const (
	MetricInvocations = "toolpack.tool.invocations"
	MetricInstalls    = "toolpack.tool.installs"
	MetricRetries     = "toolpack.tool.download.retries"
	MetricLatency     = "toolpack.tool.latency"
	MetricBytes       = "toolpack.tool.download.bytes"
)

// ToolObserver records tool runs and installs into OpenTelemetry.
type ToolObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	installs    metric.Int64Counter
	retries     metric.Int64Counter
	bytes       metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		MetricInvocations,
		metric.WithDescription("Number of tool runs"),
	)
	if err != nil {
		return nil, err
	}
	installs, err := meter.Int64Counter(
		MetricInstalls,
		metric.WithDescription("Number of install tasks"),
	)
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter(
		MetricRetries,
		metric.WithDescription("Number of retried download attempts"),
	)
	if err != nil {
		return nil, err
	}
	bytes, err := meter.Int64Counter(
		MetricBytes,
		metric.WithDescription("Bytes written by install downloads"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		MetricLatency,
		metric.WithDescription("Tool run and install latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:      tracer,
		invocations: invocations,
		installs:    installs,
		retries:     retries,
		bytes:       bytes,
		latency:     latency,
	}, nil
}

func seconds(ms int64) float64 {
	return float64(time.Duration(ms)*time.Millisecond) / float64(time.Second)
}

func (o *ToolObserver) span(ctx context.Context, name string, success bool, errorCode string, attrs []attribute.KeyValue) {
	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	if !success {
		span.SetStatus(codes.Error, errorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ObserveInvoke records one run result.
func (o *ToolObserver) ObserveInvoke(observation tool.ToolInvokeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.String("package", observation.Package),
		attribute.Bool("dry_run", observation.DryRun),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs,
			attribute.String("error_code", observation.ErrorCode),
			attribute.Int("exit_code", observation.ExitCode),
		)
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, seconds(observation.DurationMS), options)
	o.span(ctx, "tool.run", observation.Success, observation.ErrorCode, attrs)
}

// ObserveInstall records one install task result.
func (o *ToolObserver) ObserveInstall(observation tool.ToolInstallObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.String("package", observation.Package),
		attribute.Bool("skipped", observation.Skipped),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.installs.Add(ctx, 1, options)
	if observation.Skipped {
		return
	}
	o.latency.Record(ctx, seconds(observation.DurationMS), options)
	if observation.Bytes > 0 {
		o.bytes.Add(ctx, observation.Bytes, metric.WithAttributes(attribute.String("tool_name", observation.ToolName)))
	}
	o.span(ctx, "tool.install", observation.Success, observation.ErrorCode,
		append(attrs, attribute.String("source", observation.Source), attribute.Int("attempts", observation.Attempts)))
}

// ObserveRetry records one retried download attempt.
func (o *ToolObserver) ObserveRetry(observation tool.ToolRetryObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.Int("attempt", observation.Attempt),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}
	o.retries.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

var _ tool.Observer = (*ToolObserver)(nil)
