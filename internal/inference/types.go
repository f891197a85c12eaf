// internal/inference/types.go
package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad is returned when a model cannot be read, parsed or allocated.
	ErrModelLoad = errors.New("model load failed")

	// ErrInference is returned when binding, invoking or reading back fails.
	ErrInference = errors.New("inference failed")
)

// DataType is the element type of a tensor.
type DataType int

const (
	Unknown DataType = iota
	Uint8
	Float32
)

func (d DataType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}

// Quantization holds the affine parameters real = (q - ZeroPoint) * Scale.
type Quantization struct {
	Scale     float64
	ZeroPoint int64
}

// TensorDescriptor is static metadata about one model input or output.
type TensorDescriptor struct {
	Name         string
	Shape        []int64
	DataType     DataType
	Quantization *Quantization
}

// Elements returns the product of the shape dimensions.
func (d TensorDescriptor) Elements() int64 {
	if len(d.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, dim := range d.Shape {
		n *= dim
	}
	return n
}

// ImageSize returns the (height, width) an NHWC image input expects.
func (d TensorDescriptor) ImageSize() (height, width int, err error) {
	if len(d.Shape) != 4 {
		return 0, 0, fmt.Errorf("%w: input %q has rank %d, expected [batch, height, width, channels]",
			ErrInference, d.Name, len(d.Shape))
	}
	if d.Shape[3] != 3 {
		return 0, 0, fmt.Errorf("%w: input %q expects %d channels, only RGB is supported",
			ErrInference, d.Name, d.Shape[3])
	}
	return int(d.Shape[1]), int(d.Shape[2]), nil
}

func (d TensorDescriptor) String() string {
	s := fmt.Sprintf("%s%v %s", d.Name, d.Shape, d.DataType)
	if d.Quantization != nil {
		s += fmt.Sprintf(" q(scale=%g, zero_point=%d)", d.Quantization.Scale, d.Quantization.ZeroPoint)
	}
	return s
}

// Tensor is a dense NHWC buffer. Exactly one of Uint8 or Float32 is populated,
// according to DataType.
type Tensor struct {
	Shape    []int64
	DataType DataType
	Uint8    []uint8
	Float32  []float32
}

// Len returns the number of populated elements.
func (t *Tensor) Len() int {
	switch t.DataType {
	case Uint8:
		return len(t.Uint8)
	case Float32:
		return len(t.Float32)
	default:
		return 0
	}
}

// ScoreVector holds one raw score per class index.
type ScoreVector []float64

// resolveShape replaces dynamic (negative or zero) dimensions with 1.
func resolveShape(shape []int64) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
