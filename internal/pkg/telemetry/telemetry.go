// Package telemetry wires the OpenTelemetry SDK for the process: OTLP/gRPC
// exporters for traces and metrics, a resource naming the service, and the
// W3C trace context propagator used by the HTTP server.
//
// Exporter endpoints and headers come from the standard OTEL_EXPORTER_OTLP_*
// environment variables. Until Init runs, the global providers are no-ops.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// ShutdownFunc flushes and stops the providers registered by Init.
type ShutdownFunc func(ctx context.Context) error

func newResource(serviceName, serviceVersion string) (*sdkresource.Resource, error) {
	return sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
}

func newMeterProvider(ctx context.Context, res *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

func newTracerProvider(ctx context.Context, res *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// propagator reads and writes the traceparent/tracestate and baggage headers.
func propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// Init registers global meter and tracer providers exporting over OTLP/gRPC,
// plus the trace context propagator. The returned ShutdownFunc must be called
// before exit so buffered spans and the last metric collection are sent.
//
// Logs are not exported through OpenTelemetry. The logger package correlates
// them with traces through the trace_id and span_id fields.
func Init(ctx context.Context, serviceName, serviceVersion string) (ShutdownFunc, error) {
	res, err := newResource(serviceName, serviceVersion)
	if err != nil {
		return nil, err
	}

	mp, err := newMeterProvider(ctx, res)
	if err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(ctx, res)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(ctx))
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator())

	return func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}, nil
}
