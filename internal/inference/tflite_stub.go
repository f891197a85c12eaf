//go:build notflite

// internal/inference/tflite_stub.go
package inference

import "fmt"

// TFLite is unavailable in builds tagged notflite, which skip linking
// libtensorflowlite_c.
type TFLite struct{}

func NewTFLite(int) *TFLite { return &TFLite{} }

func (*TFLite) Load(string) error {
	return fmt.Errorf("%w: built without tflite support (notflite tag)", ErrModelLoad)
}

func (*TFLite) AllocateTensors() error {
	return fmt.Errorf("%w: built without tflite support", ErrModelLoad)
}

func (*TFLite) InputDescriptor() (TensorDescriptor, error) {
	return TensorDescriptor{}, fmt.Errorf("%w: built without tflite support", ErrModelLoad)
}

func (*TFLite) OutputDescriptor() (TensorDescriptor, error) {
	return TensorDescriptor{}, fmt.Errorf("%w: built without tflite support", ErrModelLoad)
}

func (*TFLite) BindInput(*Tensor) error {
	return fmt.Errorf("%w: built without tflite support", ErrInference)
}

func (*TFLite) Invoke() error {
	return fmt.Errorf("%w: built without tflite support", ErrInference)
}

func (*TFLite) ReadOutput() (ScoreVector, error) {
	return nil, fmt.Errorf("%w: built without tflite support", ErrInference)
}

func (*TFLite) Close() error { return nil }

var _ Backend = (*TFLite)(nil)
