// internal/metrics/metrics_test.go
package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("ok"))
	RecordRun("ok")
	after := testutil.ToFloat64(RunsTotal.WithLabelValues("ok"))

	if after-before != 1 {
		t.Errorf("Expected counter to increase by 1, got %v", after-before)
	}
}

func TestSetTopScore(t *testing.T) {
	SetTopScore(0.75)
	if got := testutil.ToFloat64(TopScore); got != 0.75 {
		t.Errorf("Expected 0.75, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	RecordStage("rank", 0.001)
	RecordInferenceLatency(0.02)
	RecordCacheLookup("miss")

	path := filepath.Join(t.TempDir(), "predict.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, name := range []string{
		"predict_stage_seconds",
		"predict_inference_latency_seconds",
		"predict_cache_lookups_total",
	} {
		if !strings.Contains(string(data), name) {
			t.Errorf("Expected %s in textfile output", name)
		}
	}
}
