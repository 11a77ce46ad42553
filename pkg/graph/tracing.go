package graph

import (
	"context"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/narrative-kg/extract"

// Telemetry bundles the tracer and meter the pipeline stages report to.
// The metric side bridges into the same Prometheus registry the rest of
// the process scrapes, so OTel instruments and the ad hoc collectors in
// pkg/graph/metrics share one endpoint.
type Telemetry struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// NewTelemetry wires a tracer provider and a Prometheus-backed meter
// provider. reg may be nil, in which case the default registerer is used.
func NewTelemetry(reg promclient.Registerer) (*Telemetry, error) {
	opts := []prometheus.Option{}
	if reg != nil {
		opts = append(opts, prometheus.WithRegisterer(reg))
	}
	exporter, err := prometheus.New(opts...)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Telemetry{
		Tracer:         tp.Tracer(instrumentationName),
		Meter:          mp.Meter(instrumentationName),
		tracerProvider: tp,
		meterProvider:  mp,
	}, nil
}

// NopTelemetry returns a Telemetry whose tracer and meter discard
// everything; used when a host does not care about instrumentation.
func NopTelemetry() *Telemetry {
	return &Telemetry{
		Tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		Meter:  sdkmetric.NewMeterProvider().Meter(instrumentationName),
	}
}

// Shutdown flushes and releases both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var first error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			first = err
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
