// internal/pipeline/errors.go
package pipeline

import (
	"context"
	"errors"

	"github.com/SyedDaiam9101/image-predict/internal/config"
	"github.com/SyedDaiam9101/image-predict/internal/inference"
	"github.com/SyedDaiam9101/image-predict/internal/labels"
	"github.com/SyedDaiam9101/image-predict/internal/preprocess"
	"github.com/SyedDaiam9101/image-predict/internal/rank"
)

// Process exit codes, one per error kind
const (
	ExitOK                 = 0
	ExitFailure            = 1
	ExitConfig             = 2
	ExitModelLoad          = 3
	ExitImageDecode        = 4
	ExitInference          = 5
	ExitLabelFormat        = 6
	ExitLabelCountMismatch = 7
)

// Kind names the error class of err, for exit codes, metrics and diagnostics
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, config.ErrConfig),
		errors.Is(err, labels.ErrLabelFile),
		errors.Is(err, rank.ErrInvalidTopK):
		return "ConfigError"
	case errors.Is(err, inference.ErrModelLoad):
		return "ModelLoadError"
	case errors.Is(err, preprocess.ErrImageDecode):
		return "ImageDecodeError"
	case errors.Is(err, inference.ErrInference):
		return "InferenceError"
	case errors.Is(err, labels.ErrLabelFormat):
		return "LabelFormatError"
	case errors.Is(err, rank.ErrLabelCountMismatch):
		return "LabelCountMismatchError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	default:
		return "Error"
	}
}

// ExitCode maps err to the process exit status
func ExitCode(err error) int {
	switch Kind(err) {
	case "ok":
		return ExitOK
	case "ConfigError":
		return ExitConfig
	case "ModelLoadError":
		return ExitModelLoad
	case "ImageDecodeError":
		return ExitImageDecode
	case "InferenceError":
		return ExitInference
	case "LabelFormatError":
		return ExitLabelFormat
	case "LabelCountMismatchError":
		return ExitLabelCountMismatch
	default:
		return ExitFailure
	}
}

// Outcome is the metrics label for a run ending with err
func Outcome(err error) string {
	return Kind(err)
}
