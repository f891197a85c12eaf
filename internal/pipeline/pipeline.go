// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/SyedDaiam9101/image-predict/internal/cache"
	"github.com/SyedDaiam9101/image-predict/internal/config"
	"github.com/SyedDaiam9101/image-predict/internal/inference"
	"github.com/SyedDaiam9101/image-predict/internal/labels"
	"github.com/SyedDaiam9101/image-predict/internal/metrics"
	"github.com/SyedDaiam9101/image-predict/internal/preprocess"
	"github.com/SyedDaiam9101/image-predict/internal/rank"
	"github.com/SyedDaiam9101/image-predict/internal/report"
	"github.com/SyedDaiam9101/image-predict/internal/runid"
	"github.com/SyedDaiam9101/image-predict/internal/tracing"
)

// Stage names, used for spans and the stage latency histogram
const (
	StageCache   = "cache.lookup"
	StageLabels  = "labels.load"
	StageLoad    = "model.load"
	StagePrepare = "image.prepare"
	StageInfer   = "model.infer"
	StageRank    = "rank"
)

// BackendFactory builds the backend for one run
type BackendFactory func() (inference.Backend, error)

// Pipeline runs one image through one model.
type Pipeline struct {
	cfg        *config.Config
	newBackend BackendFactory
	cache      *cache.Cache
}

// New creates a Pipeline. cache may be nil.
func New(cfg *config.Config, newBackend BackendFactory, c *cache.Cache) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		newBackend: newBackend,
		cache:      c,
	}
}

// ConfiguredBackend returns a factory for the backend named in cfg
func ConfiguredBackend(cfg *config.Config) BackendFactory {
	return func() (inference.Backend, error) {
		return inference.New(cfg.Backend, inference.Options{
			NumThreads:  cfg.Threads,
			LibraryPath: cfg.ONNXLibrary,
		})
	}
}

// Run loads the model, prepares the image, invokes the model once and ranks
// the scores. Nothing is printed; the caller renders the returned result.
func (p *Pipeline) Run(ctx context.Context) (result *report.Result, err error) {
	if p.cfg == nil {
		return nil, fmt.Errorf("%w: configuration is nil", config.ErrConfig)
	}
	if p.newBackend == nil {
		return nil, fmt.Errorf("%w: backend factory is nil", config.ErrConfig)
	}

	id := runid.Get(ctx)
	if id == "" {
		ctx = runid.WithRunID(ctx, "")
		id = runid.Get(ctx)
	}

	ctx, span := tracing.Tracer().Start(ctx, "predict")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.RecordRun(Outcome(err))
	}()
	span.SetAttributes(
		attribute.String("run.id", id),
		attribute.String("model.path", p.cfg.Model()),
		attribute.String("image.path", p.cfg.Image()),
		attribute.String("backend", p.cfg.Backend),
	)

	interp, err := preprocess.ParseInterpolation(p.cfg.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	norm, err := rank.ParseNormalization(p.cfg.Normalization)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	cacheKey := p.cacheKey(id, norm)
	if cacheKey != "" {
		if hit := p.lookup(ctx, id, cacheKey); hit != nil {
			return hit, nil
		}
	}

	var table labels.Table
	err = stage(ctx, StageLabels, func(context.Context) error {
		var err error
		table, err = labels.Load(p.cfg.Labels())
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[%s] Loaded %d labels from %s", id, len(table), p.cfg.Labels())

	var model *inference.Model
	err = stage(ctx, StageLoad, func(ctx context.Context) error {
		backend, err := p.newBackend()
		if err != nil {
			return err
		}
		model, err = inference.Load(ctx, backend, p.cfg.Model())
		return err
	})
	if err != nil {
		return nil, err
	}
	defer model.Close()
	log.Printf("[%s] Loaded model %s: input=%s output=%s", id, model.Path(), model.Input, model.Output)

	var tensor *inference.Tensor
	err = stage(ctx, StagePrepare, func(context.Context) error {
		height, width, err := model.Input.ImageSize()
		if err != nil {
			return err
		}
		tensor, err = preprocess.Prepare(p.cfg.Image(), width, height, preprocess.Options{
			Interpolation: interp,
			DataType:      model.Input.DataType,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		scores  inference.ScoreVector
		elapsed time.Duration
	)
	err = stage(ctx, StageInfer, func(ctx context.Context) error {
		var err error
		scores, elapsed, err = model.Infer(ctx, tensor)
		return err
	})
	if err != nil {
		log.Printf("[%s] Inference error: %v", id, err)
		return nil, err
	}
	metrics.RecordInferenceLatency(elapsed.Seconds())

	var predictions []rank.Prediction
	err = stage(ctx, StageRank, func(context.Context) error {
		var err error
		predictions, err = rank.Rank(scores, table, p.cfg.TopK, norm.Normalizer(model.Output.Quantization))
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(predictions) > 0 {
		metrics.SetTopScore(predictions[0].Score)
	}

	log.Printf("[%s] Predict: classes=%d, top_k=%d, inference_ms=%.2f",
		id, len(scores), len(predictions), float64(elapsed.Microseconds())/1000.0)

	result = &report.Result{
		RunID:       id,
		Elapsed:     elapsed,
		Predictions: predictions,
	}
	if cacheKey != "" {
		p.store(ctx, id, cacheKey, result)
	}
	return result, nil
}

func (p *Pipeline) cacheKey(id string, norm rank.Normalization) string {
	if p.cache == nil {
		return ""
	}
	key, err := cache.Key(cache.KeyInputs{
		ModelPath:     p.cfg.Model(),
		ImagePath:     p.cfg.Image(),
		LabelsPath:    p.cfg.Labels(),
		TopK:          p.cfg.TopK,
		Normalization: norm,
		Interpolation: p.cfg.Interpolation,
	})
	if err != nil {
		// Missing inputs surface from the stage that reads them
		log.Printf("[%s] Warning: cache key: %v (continuing without cache)", id, err)
		return ""
	}
	return key
}

func (p *Pipeline) lookup(ctx context.Context, id, key string) *report.Result {
	var entry *cache.Entry
	err := stage(ctx, StageCache, func(ctx context.Context) error {
		var err error
		entry, err = p.cache.Get(ctx, key)
		return err
	})
	switch {
	case err != nil:
		metrics.RecordCacheLookup("error")
		log.Printf("[%s] Warning: cache lookup failed: %v (continuing without cache)", id, err)
		return nil
	case entry == nil:
		metrics.RecordCacheLookup("miss")
		return nil
	}

	metrics.RecordCacheLookup("hit")
	log.Printf("[%s] Cache hit for %s", id, key)
	return &report.Result{
		RunID:       id,
		Elapsed:     time.Duration(math.Round(entry.ElapsedSeconds * float64(time.Second))),
		Predictions: entry.Predictions,
		Cached:      true,
	}
}

func (p *Pipeline) store(ctx context.Context, id, key string, r *report.Result) {
	entry := &cache.Entry{
		ElapsedSeconds: r.Elapsed.Seconds(),
		Predictions:    r.Predictions,
	}
	if err := p.cache.Set(ctx, key, entry, p.cfg.CacheTTL); err != nil {
		log.Printf("[%s] Warning: cache store failed: %v", id, err)
	}
}

// stage runs fn inside a span and records its latency.
func stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := tracing.Tracer().Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.RecordStage(name, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
