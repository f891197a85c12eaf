// Package rank orders model scores into labelled top-k predictions.
package rank

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/SyedDaiam9101/image-predict/internal/inference"
	"github.com/SyedDaiam9101/image-predict/internal/labels"
)

var (
	// ErrLabelCountMismatch is returned when the label table and the score
	// vector differ in length.
	ErrLabelCountMismatch = errors.New("label count does not match model output")

	// ErrInvalidTopK is returned for top_k < 1.
	ErrInvalidTopK = errors.New("top_k must be at least 1")
)

// Prediction is one ranked (score, label) pair.
type Prediction struct {
	Index int     `json:"index"`
	Raw   float64 `json:"raw"`
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// Normalization converts a raw model score into the displayed score.
type Normalization string

const (
	// LegacyDisplayNormalization divides by 255 regardless of the model's
	// actual quantization parameters.
	LegacyDisplayNormalization Normalization = "legacy"
	// QuantizationNormalization applies (raw - zero_point) * scale from the
	// output descriptor, falling back to legacy when there is none.
	QuantizationNormalization Normalization = "quantization"
	// RawNormalization leaves scores untouched.
	RawNormalization Normalization = "raw"
)

// ParseNormalization validates a normalization name.
func ParseNormalization(name string) (Normalization, error) {
	switch n := Normalization(strings.ToLower(name)); n {
	case LegacyDisplayNormalization, QuantizationNormalization, RawNormalization:
		return n, nil
	default:
		return "", fmt.Errorf("unknown normalization %q", name)
	}
}

// Normalizer returns the score conversion for n. q is the output tensor's
// quantization and may be nil.
func (n Normalization) Normalizer(q *inference.Quantization) func(float64) float64 {
	switch {
	case n == RawNormalization:
		return func(v float64) float64 { return v }
	case n == QuantizationNormalization && q != nil:
		scale, zp := q.Scale, float64(q.ZeroPoint)
		return func(v float64) float64 { return (v - zp) * scale }
	default:
		return func(v float64) float64 { return v / 255.0 }
	}
}

type entry struct {
	score float64
	index int
}

// Rank returns the topK highest scores, highest first, paired with their
// labels. topK larger than the number of classes is clamped. Ordering among
// equal scores is unspecified.
func Rank(scores inference.ScoreVector, table labels.Table, topK int, normalize func(float64) float64) ([]Prediction, error) {
	if len(scores) != len(table) {
		return nil, fmt.Errorf("%w: %d labels for %d scores", ErrLabelCountMismatch, len(table), len(scores))
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if normalize == nil {
		normalize = LegacyDisplayNormalization.Normalizer(nil)
	}

	entries := make([]entry, len(scores))
	for i, s := range scores {
		entries[i] = entry{score: s, index: i}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].index < entries[j].index
	})

	if topK > len(entries) {
		topK = len(entries)
	}
	top := entries[len(entries)-topK:]

	out := make([]Prediction, 0, topK)
	for i := len(top) - 1; i >= 0; i-- {
		e := top[i]
		name, err := table.Name(e.index)
		if err != nil {
			return nil, err
		}
		out = append(out, Prediction{
			Index: e.index,
			Raw:   e.score,
			Score: normalize(e.score),
			Label: name,
		})
	}
	return out, nil
}
