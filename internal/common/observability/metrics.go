package observability

import (
	"context"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records tool-level OpenTelemetry metrics exported through
// the Prometheus registry. A zero value is a valid no-op.
type Observability struct {
	meterProvider *metric.MeterProvider
	toolCounter   otelmetric.Int64Counter
	toolDuration  otelmetric.Float64Histogram
}

func New(serviceName string) (*Observability, error) {
	return NewWithRegisterer(serviceName, promclient.DefaultRegisterer)
}

func NewWithRegisterer(serviceName string, reg promclient.Registerer) (*Observability, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return &Observability{}, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	toolCounter, err := meter.Int64Counter(
		"tool.calls",
		otelmetric.WithDescription("Tool calls handled per session"),
	)
	if err != nil {
		return &Observability{}, err
	}

	toolDuration, err := meter.Float64Histogram(
		"tool.duration",
		otelmetric.WithDescription("Tool call duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return &Observability{}, err
	}

	return &Observability{
		meterProvider: provider,
		toolCounter:   toolCounter,
		toolDuration:  toolDuration,
	}, nil
}

func (o *Observability) RecordToolCall(ctx context.Context, tool, status string, duration time.Duration) {
	if o == nil || o.toolCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	o.toolCounter.Add(ctx, 1, attrs)
	o.toolDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
