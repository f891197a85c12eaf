// internal/tracing/tracing_test.go
package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInit_ExportsSpans(t *testing.T) {
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	var buf bytes.Buffer
	shutdown, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "model.infer")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), "model.infer") {
		t.Errorf("Expected exported span in output, got: %s", buf.String())
	}
}
