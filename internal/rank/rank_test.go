package rank

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/SyedDaiam9101/image-predict/internal/inference"
	"github.com/SyedDaiam9101/image-predict/internal/labels"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestRank_Scenario(t *testing.T) {
	scores := inference.ScoreVector{10, 250, 5, 90}
	table := labels.Table{"0: cat", "1: dog", "2: bird", "3: fish"}

	got, err := Rank(scores, table, 2, LegacyDisplayNormalization.Normalizer(nil))
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 predictions, got %d", len(got))
	}

	if got[0].Label != "dog" || !approx(got[0].Score, 250.0/255.0) {
		t.Errorf("First prediction = %+v, expected dog at 0.980392", got[0])
	}
	if got[1].Label != "fish" || !approx(got[1].Score, 90.0/255.0) {
		t.Errorf("Second prediction = %+v, expected fish at 0.352941", got[1])
	}
	if got := fmt.Sprintf("%08.6f", got[0].Score); got != "0.980392" {
		t.Errorf("Formatted score = %s, expected 0.980392", got)
	}
}

func TestRank_TopKLargestDescendingAligned(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 1 + r.Intn(60)
		scores := make(inference.ScoreVector, n)
		table := make(labels.Table, n)
		for i := range scores {
			scores[i] = float64(r.Intn(256))
			table[i] = fmt.Sprintf("%d: class%d", i, i)
		}
		k := 1 + r.Intn(n)

		got, err := Rank(scores, table, k, RawNormalization.Normalizer(nil))
		if err != nil {
			t.Fatalf("trial %d: Rank failed: %v", trial, err)
		}
		if len(got) != k {
			t.Fatalf("trial %d: expected %d predictions, got %d", trial, k, len(got))
		}

		sorted := append(inference.ScoreVector(nil), scores...)
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

		for i, p := range got {
			if i > 0 && p.Score > got[i-1].Score {
				t.Fatalf("trial %d: not descending at %d: %v", trial, i, got)
			}
			if p.Score != sorted[i] {
				t.Fatalf("trial %d: position %d has %v, expected %v", trial, i, p.Score, sorted[i])
			}
			if scores[p.Index] != p.Raw {
				t.Fatalf("trial %d: index %d holds %v, prediction says %v", trial, p.Index, scores[p.Index], p.Raw)
			}
			if want := fmt.Sprintf("class%d", p.Index); p.Label != want {
				t.Fatalf("trial %d: label %q, expected %q", trial, p.Label, want)
			}
		}
	}
}

func TestRank_LabelCountMismatch(t *testing.T) {
	scores := make(inference.ScoreVector, 1000)
	table := make(labels.Table, 999)

	_, err := Rank(scores, table, 3, nil)
	if !errors.Is(err, ErrLabelCountMismatch) {
		t.Errorf("Expected ErrLabelCountMismatch, got %v", err)
	}
}

func TestRank_InvalidTopK(t *testing.T) {
	_, err := Rank(inference.ScoreVector{1}, labels.Table{"0: a"}, 0, nil)
	if !errors.Is(err, ErrInvalidTopK) {
		t.Errorf("Expected ErrInvalidTopK, got %v", err)
	}
}

func TestRank_TopKClamped(t *testing.T) {
	got, err := Rank(inference.ScoreVector{3, 1}, labels.Table{"0: a", "1: b"}, 5, nil)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 predictions, got %d", len(got))
	}
}

func TestRank_LabelFormatError(t *testing.T) {
	_, err := Rank(inference.ScoreVector{1, 200}, labels.Table{"0: a", "macaw"}, 1, nil)
	if !errors.Is(err, labels.ErrLabelFormat) {
		t.Errorf("Expected ErrLabelFormat, got %v", err)
	}
}

func TestRank_MalformedLabelOutsideTopKIgnored(t *testing.T) {
	got, err := Rank(inference.ScoreVector{200, 1}, labels.Table{"0: a", "macaw"}, 1, nil)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if got[0].Label != "a" {
		t.Errorf("Expected a, got %s", got[0].Label)
	}
}

func TestNormalizer(t *testing.T) {
	q := &inference.Quantization{Scale: 0.00390625, ZeroPoint: 0}

	if v := LegacyDisplayNormalization.Normalizer(q)(255); !approx(v, 1) {
		t.Errorf("legacy(255) = %v, expected 1", v)
	}
	if v := QuantizationNormalization.Normalizer(q)(128); !approx(v, 0.5) {
		t.Errorf("quantization(128) = %v, expected 0.5", v)
	}
	if v := QuantizationNormalization.Normalizer(nil)(51); !approx(v, 0.2) {
		t.Errorf("quantization without params should fall back to legacy, got %v", v)
	}
	if v := RawNormalization.Normalizer(q)(42); v != 42 {
		t.Errorf("raw(42) = %v, expected 42", v)
	}
}

func TestParseNormalization(t *testing.T) {
	n, err := ParseNormalization("Legacy")
	if err != nil || n != LegacyDisplayNormalization {
		t.Errorf("ParseNormalization(Legacy) = %v, %v", n, err)
	}
	if _, err := ParseNormalization("softmax"); err == nil {
		t.Error("Expected error for unknown normalization")
	}
}
