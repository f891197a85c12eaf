// internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/SyedDaiam9101/image-predict/internal/cache"
	"github.com/SyedDaiam9101/image-predict/internal/config"
	"github.com/SyedDaiam9101/image-predict/internal/inference"
	"github.com/SyedDaiam9101/image-predict/internal/labels"
	"github.com/SyedDaiam9101/image-predict/internal/preprocess"
	"github.com/SyedDaiam9101/image-predict/internal/rank"
	"github.com/SyedDaiam9101/image-predict/internal/runid"
)

// fixture writes a 512x300 JPEG, a label file and an empty model artifact
// into a temp dir and returns a config pointing at them relative to BaseDir.
func fixture(t *testing.T, labelLines []string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 512, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 512; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "parrot.jpg"))
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode image: %v", err)
	}
	f.Close()

	content := strings.Join(labelLines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "labels.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write labels: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.tflite"), []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	return &config.Config{
		ModelPath:     "model.tflite",
		ImagePath:     "parrot.jpg",
		LabelsPath:    "labels.txt",
		BaseDir:       dir,
		Backend:       "mock",
		TopK:          2,
		Interpolation: "bilinear",
		Normalization: "legacy",
		Format:        "text",
		CacheTTL:      time.Hour,
	}
}

var fourLabels = []string{"0: cat", "1: dog", "2: bird", "3: fish"}

func withMock(mock *inference.MockBackend) BackendFactory {
	return func() (inference.Backend, error) { return mock, nil }
}

func TestRun_RanksMockScores(t *testing.T) {
	cfg := fixture(t, fourLabels)
	mock := inference.NewMock()

	ctx := runid.WithRunID(context.Background(), "test-run")
	result, err := New(cfg, withMock(mock), nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.RunID != "test-run" {
		t.Errorf("Expected run ID test-run, got %s", result.RunID)
	}
	if len(result.Predictions) != 2 {
		t.Fatalf("Expected 2 predictions, got %d", len(result.Predictions))
	}
	if p := result.Predictions[0]; p.Label != "dog" || math.Abs(p.Score-250.0/255.0) > 1e-9 {
		t.Errorf("Unexpected first prediction %+v", p)
	}
	if p := result.Predictions[1]; p.Label != "fish" || math.Abs(p.Score-90.0/255.0) > 1e-9 {
		t.Errorf("Unexpected second prediction %+v", p)
	}

	// The bound tensor follows the model's declared input shape, not the image's
	want := []int64{1, 224, 224, 3}
	if fmt.Sprint(mock.Bound.Shape) != fmt.Sprint(want) {
		t.Errorf("Expected bound shape %v, got %v", want, mock.Bound.Shape)
	}
	if mock.LoadCount != 1 || mock.AllocateCount != 1 || mock.InvokeCount != 1 {
		t.Errorf("Expected exactly one load, allocate and invoke, got %d/%d/%d",
			mock.LoadCount, mock.AllocateCount, mock.InvokeCount)
	}
	if !mock.Closed {
		t.Error("Expected model to be released at the end of the run")
	}
}

func TestRun_GeneratesRunID(t *testing.T) {
	result, err := New(fixture(t, fourLabels), withMock(inference.NewMock()), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.RunID) != 36 {
		t.Errorf("Expected generated UUID run ID, got %q", result.RunID)
	}
}

func TestRun_LabelCountMismatch(t *testing.T) {
	cfg := fixture(t, fourLabels[:3])
	mock := inference.NewMock()

	_, err := New(cfg, withMock(mock), nil).Run(context.Background())
	if !errors.Is(err, rank.ErrLabelCountMismatch) {
		t.Fatalf("Expected ErrLabelCountMismatch, got %v", err)
	}
	if ExitCode(err) != ExitLabelCountMismatch {
		t.Errorf("Expected exit code %d, got %d", ExitLabelCountMismatch, ExitCode(err))
	}
}

func TestRun_LabelFormatError(t *testing.T) {
	cfg := fixture(t, []string{"0: cat", "dog", "2: bird", "3: fish"})

	_, err := New(cfg, withMock(inference.NewMock()), nil).Run(context.Background())
	if !errors.Is(err, labels.ErrLabelFormat) {
		t.Fatalf("Expected ErrLabelFormat, got %v", err)
	}
}

func TestRun_ModelLoadError(t *testing.T) {
	cfg := fixture(t, fourLabels)
	mock := inference.NewMock()
	mock.LoadError = "unsupported operator"

	_, err := New(cfg, withMock(mock), nil).Run(context.Background())
	if ExitCode(err) != ExitModelLoad {
		t.Fatalf("Expected model load exit code, got %d (%v)", ExitCode(err), err)
	}
	if mock.InvokeCount != 0 {
		t.Error("Expected no invocation after failed load")
	}
}

func TestRun_ImageDecodeError(t *testing.T) {
	cfg := fixture(t, fourLabels)
	cfg.ImagePath = "missing.jpg"
	mock := inference.NewMock()

	_, err := New(cfg, withMock(mock), nil).Run(context.Background())
	if !errors.Is(err, preprocess.ErrImageDecode) {
		t.Fatalf("Expected ErrImageDecode, got %v", err)
	}
	if !mock.Closed {
		t.Error("Expected model to be closed after failed preprocessing")
	}
}

func TestRun_InferenceError(t *testing.T) {
	cfg := fixture(t, fourLabels)
	mock := inference.NewMock()
	mock.SetInvokeError("model execution failed")

	_, err := New(cfg, withMock(mock), nil).Run(context.Background())
	if !errors.Is(err, inference.ErrInference) {
		t.Fatalf("Expected ErrInference, got %v", err)
	}
	if mock.InvokeCount != 1 {
		t.Errorf("Expected a single, unretried invocation, got %d", mock.InvokeCount)
	}
}

func TestRun_Float32Input(t *testing.T) {
	cfg := fixture(t, fourLabels)
	mock := inference.NewMock()
	mock.InputType = inference.Float32
	mock.InputShape = []int64{1, 32, 48, 3}

	if _, err := New(cfg, withMock(mock), nil).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if mock.Bound.DataType != inference.Float32 || len(mock.Bound.Float32) != 32*48*3 {
		t.Errorf("Expected float32 tensor of %d elements, got %s with %d",
			32*48*3, mock.Bound.DataType, mock.Bound.Len())
	}
}

func TestRun_QuantizationNormalization(t *testing.T) {
	cfg := fixture(t, fourLabels)
	cfg.Normalization = "quantization"
	cfg.TopK = 1
	mock := inference.NewMock()
	mock.OutputQuantization = &inference.Quantization{Scale: 0.004, ZeroPoint: 0}

	result, err := New(cfg, withMock(mock), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := result.Predictions[0].Score; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Expected dequantized score 1.0, got %v", got)
	}
}

func TestRun_BackendFactoryError(t *testing.T) {
	cfg := fixture(t, fourLabels)
	cfg.Backend = "coreml"

	_, err := New(cfg, ConfiguredBackend(cfg), nil).Run(context.Background())
	if ExitCode(err) != ExitModelLoad {
		t.Errorf("Expected model load exit code, got %d (%v)", ExitCode(err), err)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := inference.NewMock()

	_, err := New(fixture(t, fourLabels), withMock(mock), nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if mock.LoadCount != 0 {
		t.Error("Expected no model load for canceled run")
	}
}

func TestRun_CacheHitSkipsModel(t *testing.T) {
	cfg := fixture(t, fourLabels)
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer c.Close()

	first := inference.NewMock()
	miss, err := New(cfg, withMock(first), c).Run(context.Background())
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if miss.Cached {
		t.Error("Expected first run to miss the cache")
	}
	if first.LoadCount != 1 {
		t.Errorf("Expected first run to load the model, got %d loads", first.LoadCount)
	}
	if keys := mr.Keys(); len(keys) != 1 || !strings.HasPrefix(keys[0], cache.KeyPrefix) {
		t.Errorf("Expected one stored result, got keys %v", keys)
	}

	second := inference.NewMock()
	hit, err := New(cfg, withMock(second), c).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !hit.Cached {
		t.Error("Expected second run to be served from cache")
	}
	if second.LoadCount != 0 || second.InvokeCount != 0 {
		t.Errorf("Expected no load or invoke on cache hit, got %d/%d", second.LoadCount, second.InvokeCount)
	}
	if len(hit.Predictions) != len(miss.Predictions) {
		t.Fatalf("Expected %d cached predictions, got %d", len(miss.Predictions), len(hit.Predictions))
	}
	for i := range miss.Predictions {
		if hit.Predictions[i] != miss.Predictions[i] {
			t.Errorf("Prediction %d: expected %+v, got %+v", i, miss.Predictions[i], hit.Predictions[i])
		}
	}
	if d := hit.Elapsed - miss.Elapsed; d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("Expected cached elapsed %v, got %v", miss.Elapsed, hit.Elapsed)
	}
}

func TestRun_CacheKeyFollowsSettings(t *testing.T) {
	cfg := fixture(t, fourLabels)
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer c.Close()

	if _, err := New(cfg, withMock(inference.NewMock()), c).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cfg.TopK = 3
	mock := inference.NewMock()
	result, err := New(cfg, withMock(mock), c).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Cached || mock.LoadCount != 1 {
		t.Errorf("Expected a different top_k to miss the cache, cached=%v loads=%d", result.Cached, mock.LoadCount)
	}
	if len(result.Predictions) != 3 {
		t.Errorf("Expected 3 predictions, got %d", len(result.Predictions))
	}
}

func TestRun_CacheErrorFallsThrough(t *testing.T) {
	cfg := fixture(t, fourLabels)
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer c.Close()
	mr.SetError("LOADING server is loading")

	mock := inference.NewMock()
	result, err := New(cfg, withMock(mock), c).Run(context.Background())
	if err != nil {
		t.Fatalf("Expected run to continue uncached, got %v", err)
	}
	if result.Cached || mock.InvokeCount != 1 {
		t.Errorf("Expected an uncached run, cached=%v invokes=%d", result.Cached, mock.InvokeCount)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, ExitOK},
		{fmt.Errorf("wrap: %w", config.ErrConfig), ExitConfig},
		{fmt.Errorf("wrap: %w", labels.ErrLabelFile), ExitConfig},
		{fmt.Errorf("wrap: %w", rank.ErrInvalidTopK), ExitConfig},
		{fmt.Errorf("wrap: %w", inference.ErrModelLoad), ExitModelLoad},
		{fmt.Errorf("wrap: %w", preprocess.ErrImageDecode), ExitImageDecode},
		{fmt.Errorf("wrap: %w", inference.ErrInference), ExitInference},
		{fmt.Errorf("wrap: %w", labels.ErrLabelFormat), ExitLabelFormat},
		{fmt.Errorf("wrap: %w", rank.ErrLabelCountMismatch), ExitLabelCountMismatch},
		{errors.New("disk on fire"), ExitFailure},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.code {
			t.Errorf("ExitCode(%v) = %d, expected %d", c.err, got, c.code)
		}
	}
}
