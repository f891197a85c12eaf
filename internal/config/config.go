// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/image-predict/internal/inference"
	"github.com/SyedDaiam9101/image-predict/internal/preprocess"
	"github.com/SyedDaiam9101/image-predict/internal/rank"
)

// ErrConfig is returned for missing or invalid arguments and settings.
var ErrConfig = errors.New("invalid configuration")

// EnvPrefix prefixes every environment override, e.g. PREDICT_TOP_K.
const EnvPrefix = "PREDICT"

// Config holds all configuration for one run
type Config struct {
	// Inputs, positional on the command line
	ModelPath  string `mapstructure:"model"`
	ImagePath  string `mapstructure:"image"`
	LabelsPath string `mapstructure:"labels"`

	// BaseDir anchors relative input paths; empty means the working directory
	BaseDir string `mapstructure:"base_dir"`

	// Inference configuration
	Backend     string `mapstructure:"backend"`
	Threads     int    `mapstructure:"threads"`
	ONNXLibrary string `mapstructure:"onnx_library"`

	// Preprocessing and ranking
	TopK          int    `mapstructure:"top_k"`
	Interpolation string `mapstructure:"interpolation"`
	Normalization string `mapstructure:"normalization"`

	// Output
	Format  string `mapstructure:"format"`
	Verbose bool   `mapstructure:"verbose"`

	// Observability
	Trace           bool   `mapstructure:"trace"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`

	// Optional result cache
	CacheAddr string        `mapstructure:"cache_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_dir", "")
	v.SetDefault("backend", "tflite")
	v.SetDefault("threads", 0)
	v.SetDefault("onnx_library", "")
	v.SetDefault("top_k", 3)
	v.SetDefault("interpolation", "bicubic")
	v.SetDefault("normalization", string(rank.LegacyDisplayNormalization))
	v.SetDefault("format", "text")
	v.SetDefault("verbose", false)
	v.SetDefault("trace", false)
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("cache_addr", "")
	v.SetDefault("cache_ttl", 24*time.Hour)
}

// Load merges configuration from defaults, an optional config file,
// PREDICT_* environment variables and flags.
// Priority (highest to lowest): flags > env vars > config file > defaults
func Load(v *viper.Viper, flags *pflag.FlagSet, configFile string) (*Config, error) {
	SetDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	// Config file (optional unless named explicitly)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("predict")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.predict")
		v.AddConfigPath("/etc/predict/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: error reading config file: %v", ErrConfig, err)
		}
		// Config file not found; ignore
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", ErrConfig, err)
	}
	return &cfg, nil
}

// bindFlags maps each flag name (dashes) onto its config key (underscores).
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" || err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		err = v.BindPFlag(key, f)
	})
	if err != nil {
		return fmt.Errorf("%w: bind flags: %v", ErrConfig, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ModelPath == "" || c.ImagePath == "" || c.LabelsPath == "" {
		return fmt.Errorf("%w: model, image and labels paths are required", ErrConfig)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrConfig, c.TopK)
	}
	if c.Threads < 0 {
		return fmt.Errorf("%w: threads must not be negative, got %d", ErrConfig, c.Threads)
	}
	if !contains(inference.Names(), strings.ToLower(c.Backend)) {
		return fmt.Errorf("%w: unknown backend %q (available: %s)",
			ErrConfig, c.Backend, strings.Join(inference.Names(), ", "))
	}
	if _, err := preprocess.ParseInterpolation(c.Interpolation); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if _, err := rank.ParseNormalization(c.Normalization); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	switch strings.ToLower(c.Format) {
	case "text", "table", "json":
	default:
		return fmt.Errorf("%w: unknown format %q", ErrConfig, c.Format)
	}
	if c.CacheAddr != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl must be positive when cache_addr is set", ErrConfig)
	}
	return nil
}

// Resolve returns p anchored at the configured base directory. Absolute
// paths and an empty base are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || c.BaseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// Model, Image and Labels return the resolved input paths.
func (c *Config) Model() string  { return c.Resolve(c.ModelPath) }
func (c *Config) Image() string  { return c.Resolve(c.ImagePath) }
func (c *Config) Labels() string { return c.Resolve(c.LabelsPath) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
