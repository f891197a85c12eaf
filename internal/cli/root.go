// internal/cli/root.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/image-predict/internal/cache"
	"github.com/SyedDaiam9101/image-predict/internal/config"
	"github.com/SyedDaiam9101/image-predict/internal/inference"
	"github.com/SyedDaiam9101/image-predict/internal/metrics"
	"github.com/SyedDaiam9101/image-predict/internal/pipeline"
	"github.com/SyedDaiam9101/image-predict/internal/report"
	"github.com/SyedDaiam9101/image-predict/internal/runid"
	"github.com/SyedDaiam9101/image-predict/internal/tracing"
)

// Usage is printed to stdout when positional arguments are missing
const Usage = "usage: predict <model_path> <image_path> <labels_path>"

// CachedNotice goes to stderr when a text or table report was served from
// the cache. The time line then reports the original run.
const CachedNotice = "result served from cache, time is from the original run"

// errUsage marks a wrong positional argument count
var errUsage = fmt.Errorf("%w: expected 3 arguments", config.ErrConfig)

// App wires the root command to its output streams. Backends may be
// overridden for tests.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// NewBackend, if set, replaces the configured backend
	NewBackend pipeline.BackendFactory
}

// Run executes the command line and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	cmd := a.command()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return pipeline.ExitOK
	case errors.Is(err, errUsage):
		fmt.Fprintln(a.Stdout, Usage)
		return pipeline.ExitConfig
	default:
		fmt.Fprintf(a.Stderr, "predict: %s: %v\n", pipeline.Kind(err), err)
		return pipeline.ExitCode(err)
	}
}

func (a *App) command() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "predict <model_path> <image_path> <labels_path>",
		Short: "Classify one image with a quantized model and print the top labels",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				return errUsage
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New(), cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			cfg.ModelPath, cfg.ImagePath, cfg.LabelsPath = args[0], args[1], args[2]
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.predict(cmd.Context(), cfg)
		},
	}
	cmd.SetOut(a.Stdout)
	cmd.SetErr(a.Stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	})

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "Path to config file (optional)")
	f.String("base-dir", "", "Directory relative input paths are resolved against")
	f.String("backend", "tflite", "Inference backend: "+strings.Join(inference.Names(), ", "))
	f.Int("threads", 0, "Interpreter threads for tflite, intra-op threads for onnx (0: runtime default)")
	f.String("onnx-library", "", "Path to the onnxruntime shared library")
	f.Int("top-k", 3, "Number of predictions to print")
	f.String("interpolation", "bicubic", "Resize filter: nearest, bilinear, bicubic, mitchell, lanczos2, lanczos3")
	f.String("normalization", "legacy", "Score display: legacy (raw/255), quantization, raw")
	f.String("format", "text", "Output format: text, table, json")
	f.BoolP("verbose", "v", false, "Log progress to stderr")
	f.Bool("trace", false, "Print OpenTelemetry spans to stderr")
	f.String("metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	f.String("cache-addr", "", "Redis address for the result cache (empty: disabled)")
	f.Duration("cache-ttl", 24*time.Hour, "Result cache entry lifetime")

	return cmd
}

func (a *App) predict(ctx context.Context, cfg *config.Config) error {
	if cfg.Verbose {
		log.SetOutput(a.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	ctx = runid.WithRunID(ctx, "")
	id := runid.Get(ctx)
	log.Printf("[%s] Configuration: model=%s, image=%s, labels=%s, backend=%s, top_k=%d",
		id, cfg.Model(), cfg.Image(), cfg.Labels(), cfg.Backend, cfg.TopK)

	if cfg.Trace {
		shutdown, err := tracing.Init(a.Stderr)
		if err != nil {
			log.Printf("[%s] Warning: Failed to initialize tracer: %v", id, err)
		} else {
			defer shutdown(context.Background())
		}
	}

	var resultCache *cache.Cache
	if cfg.CacheAddr != "" {
		c, err := cache.New(ctx, cfg.CacheAddr)
		if err != nil {
			log.Printf("[%s] Warning: %v (continuing without cache)", id, err)
		} else {
			defer c.Close()
			resultCache = c
		}
	}

	newBackend := a.NewBackend
	if newBackend == nil {
		newBackend = pipeline.ConfiguredBackend(cfg)
	}

	result, err := pipeline.New(cfg, newBackend, resultCache).Run(ctx)

	if cfg.MetricsTextfile != "" {
		if mErr := metrics.WriteTextfile(cfg.MetricsTextfile); mErr != nil {
			log.Printf("[%s] Warning: %v", id, mErr)
		}
	}
	if err != nil {
		return err
	}
	if result.Cached && !strings.EqualFold(cfg.Format, report.FormatJSON) {
		fmt.Fprintf(a.Stderr, "predict: %s\n", CachedNotice)
	}

	return report.Write(a.Stdout, cfg.Format, result)
}
