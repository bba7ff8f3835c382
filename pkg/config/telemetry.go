package config

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/version"
)

// TelemetryStdout as endpoint writes metrics and traces to stdout
const TelemetryStdout = "stdout"

type Telemetry struct {
	ctx    context.Context
	meter  *metric.MeterProvider
	tracer *trace.TracerProvider
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
	defer cancel()
	err := errors.Join(t.meter.Shutdown(ctx), t.tracer.Shutdown(ctx))
	if err != nil {
		log.Warn("telemetry shutdown", log.ErrorField(err))
	}
}

// SetupTelemetry installs global meter and tracer providers exporting to
// TelemetryEndpoint.
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", "trackside"),
		attribute.String("service.version", version.Version),
	)
	var (
		metricExporter metric.Exporter
		traceExporter  trace.SpanExporter
		err            error
	)
	if TelemetryEndpoint == TelemetryStdout {
		if metricExporter, err = stdoutmetric.New(); err != nil {
			return nil, err
		}
		if traceExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint()); err != nil {
			return nil, err
		}
	} else {
		metricExporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		traceExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(TelemetryEndpoint),
			otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
	}
	ret := &Telemetry{
		ctx: ctx,
		meter: metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(metricExporter,
				metric.WithInterval(15*time.Second))),
		),
		tracer: trace.NewTracerProvider(
			trace.WithResource(res),
			trace.WithBatcher(traceExporter),
		),
	}
	otel.SetMeterProvider(ret.meter)
	otel.SetTracerProvider(ret.tracer)
	log.Info("telemetry enabled", log.String("endpoint", TelemetryEndpoint))
	return ret, nil
}
