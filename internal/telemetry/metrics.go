package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// endpointEnv names the environment variable that selects an OTLP/HTTP
// metrics collector in place of the stdout default (spec.md §4.11's
// domain-stack wiring for internal/telemetry).
const endpointEnv = "KNOTS_OTEL_ENDPOINT"

// ShutdownFunc flushes and stops the meter provider Init installed.
type ShutdownFunc func(context.Context) error

// Init installs the process-wide MeterProvider. With KNOTS_OTEL_ENDPOINT
// unset, metrics are periodically dumped to stderr via stdoutmetric; with
// it set, they are pushed to that collector over OTLP/HTTP. Components
// register their instruments against Meter(name) regardless of which
// exporter ends up wired, the same way the teacher's storage/dolt and
// compact packages register instruments against a global delegating
// provider that is a no-op until Init runs.
func Init(ctx context.Context) (ShutdownFunc, error) {
	reader, err := newMetricReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry: init metrics: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

func newMetricReader(ctx context.Context) (sdkmetric.Reader, error) {
	endpoint := os.Getenv(endpointEnv)
	if endpoint == "" {
		exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second)), nil
	}

	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(exporter), nil
}

// Meter returns a named meter against the global MeterProvider, matching
// the `otel.Meter(name)` calls the teacher's storage/dolt and compact
// packages make against their own (missing from this pack) telemetry
// package.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Tracer returns a named tracer against the global (no-op, by design —
// see SPEC_FULL.md §4.11) TracerProvider, kept for parity with the
// teacher's Meter/Tracer pairing even though no span exporter is wired.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
