package telemetry

import (
	"context"
	"testing"
)

func TestInitInstallsMeterProviderAndShutsDown(t *testing.T) {
	t.Setenv(endpointEnv, "")

	shutdown, err := Init(context.Background())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	}()

	counter, err := Meter("test").Int64Counter("knots.test.counter")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(context.Background(), 1)
}

func TestTracerReturnsNonNilTracer(t *testing.T) {
	if Tracer("test") == nil {
		t.Fatal("Tracer() returned nil")
	}
}
