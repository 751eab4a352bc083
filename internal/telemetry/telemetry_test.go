package telemetry

import (
	"context"
	"testing"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if Enabled() {
		t.Fatal("disabled config should leave tracing disabled")
	}
	_, span := StartTaskSpan(context.Background(), 0, 0)
	span.End() // must not panic against the no-op tracer

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of a never-enabled provider should be a no-op: %v", err)
	}
}
