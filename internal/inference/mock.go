// internal/inference/mock.go
package inference

import (
	"fmt"
)

// MockBackend is a Backend that needs no native runtime. It reports a fixed
// input descriptor and returns preset scores from every Invoke.
type MockBackend struct {
	// InputShape is the declared input shape, NHWC
	InputShape []int64
	// InputType is the declared input element type
	InputType DataType
	// Scores are returned by ReadOutput
	Scores ScoreVector
	// OutputQuantization is reported on the output descriptor when set
	OutputQuantization *Quantization
	// LoadError, if set, makes Load fail
	LoadError string
	// InvokeError, if set, makes Invoke fail
	InvokeError string

	// LoadCount, AllocateCount and InvokeCount track calls
	LoadCount     int
	AllocateCount int
	InvokeCount   int
	// Bound is the last tensor passed to BindInput
	Bound *Tensor
	// Closed reports whether Close was called
	Closed bool

	loaded    bool
	allocated bool
}

// NewMock creates a MockBackend with a [1, 224, 224, 3] uint8 input and four
// class scores [10, 250, 5, 90].
func NewMock() *MockBackend {
	return &MockBackend{
		InputShape: []int64{1, 224, 224, 3},
		InputType:  Uint8,
		Scores:     ScoreVector{10, 250, 5, 90},
	}
}

// NewMockWithScores creates a MockBackend returning the given scores
func NewMockWithScores(scores ScoreVector) *MockBackend {
	m := NewMock()
	m.Scores = scores
	return m
}

func (m *MockBackend) Load(path string) error {
	m.LoadCount++
	if m.LoadError != "" {
		return fmt.Errorf("%w: %s", ErrModelLoad, m.LoadError)
	}
	m.loaded = true
	return nil
}

func (m *MockBackend) AllocateTensors() error {
	m.AllocateCount++
	if !m.loaded {
		return fmt.Errorf("%w: allocate before load", ErrModelLoad)
	}
	if m.allocated {
		return fmt.Errorf("%w: tensors already allocated", ErrModelLoad)
	}
	m.allocated = true
	return nil
}

func (m *MockBackend) InputDescriptor() (TensorDescriptor, error) {
	if !m.allocated {
		return TensorDescriptor{}, fmt.Errorf("%w: tensors not allocated", ErrModelLoad)
	}
	return TensorDescriptor{
		Name:     "input",
		Shape:    append([]int64(nil), m.InputShape...),
		DataType: m.InputType,
	}, nil
}

func (m *MockBackend) OutputDescriptor() (TensorDescriptor, error) {
	if !m.allocated {
		return TensorDescriptor{}, fmt.Errorf("%w: tensors not allocated", ErrModelLoad)
	}
	return TensorDescriptor{
		Name:         "output",
		Shape:        []int64{1, int64(len(m.Scores))},
		DataType:     Uint8,
		Quantization: m.OutputQuantization,
	}, nil
}

func (m *MockBackend) BindInput(t *Tensor) error {
	if !m.allocated {
		return fmt.Errorf("%w: tensors not allocated", ErrInference)
	}
	m.Bound = t
	return nil
}

func (m *MockBackend) Invoke() error {
	m.InvokeCount++
	if m.InvokeError != "" {
		return fmt.Errorf("%s", m.InvokeError)
	}
	if m.Bound == nil {
		return fmt.Errorf("%w: no input bound", ErrInference)
	}
	return nil
}

func (m *MockBackend) ReadOutput() (ScoreVector, error) {
	out := make(ScoreVector, len(m.Scores))
	copy(out, m.Scores)
	return out, nil
}

// Close is a no-op apart from recording the call
func (m *MockBackend) Close() error {
	m.Closed = true
	return nil
}

// SetInvokeError makes every Invoke fail until ClearError
func (m *MockBackend) SetInvokeError(msg string) {
	m.InvokeError = msg
}

// ClearError clears any configured error
func (m *MockBackend) ClearError() {
	m.LoadError = ""
	m.InvokeError = ""
}

// Ensure MockBackend implements Backend at compile time
var _ Backend = (*MockBackend)(nil)
