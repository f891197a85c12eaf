//go:build !notflite

// internal/inference/tflite.go
package inference

import (
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-tflite"
)

// TFLite runs a model through the TensorFlow Lite C API.
type TFLite struct {
	numThreads int

	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	allocated   bool
}

// NewTFLite creates a TFLite backend. numThreads <= 0 leaves the runtime default.
func NewTFLite(numThreads int) *TFLite {
	return &TFLite{numThreads: numThreads}
}

func (t *TFLite) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	t.model = tflite.NewModelFromFile(path)
	if t.model == nil {
		return fmt.Errorf("%w: cannot parse model %s", ErrModelLoad, path)
	}

	t.options = tflite.NewInterpreterOptions()
	if t.numThreads > 0 {
		t.options.SetNumThread(t.numThreads)
	}
	t.options.SetErrorReporter(func(msg string, _ interface{}) {
		log.Printf("tflite: %s", msg)
	}, nil)

	t.interpreter = tflite.NewInterpreter(t.model, t.options)
	if t.interpreter == nil {
		return fmt.Errorf("%w: cannot create interpreter for %s", ErrModelLoad, path)
	}
	return nil
}

func (t *TFLite) AllocateTensors() error {
	if t.interpreter == nil {
		return fmt.Errorf("%w: allocate before load", ErrModelLoad)
	}
	if t.allocated {
		return fmt.Errorf("%w: tensors already allocated", ErrModelLoad)
	}
	if status := t.interpreter.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("%w: allocate tensors: status %v", ErrModelLoad, status)
	}
	t.allocated = true
	return nil
}

func (t *TFLite) InputDescriptor() (TensorDescriptor, error) {
	if !t.allocated {
		return TensorDescriptor{}, fmt.Errorf("%w: tensors not allocated", ErrModelLoad)
	}
	if t.interpreter.GetInputTensorCount() == 0 {
		return TensorDescriptor{}, fmt.Errorf("%w: model declares no inputs", ErrModelLoad)
	}
	return tfliteDescriptor(t.interpreter.GetInputTensor(0))
}

func (t *TFLite) OutputDescriptor() (TensorDescriptor, error) {
	if !t.allocated {
		return TensorDescriptor{}, fmt.Errorf("%w: tensors not allocated", ErrModelLoad)
	}
	if t.interpreter.GetOutputTensorCount() == 0 {
		return TensorDescriptor{}, fmt.Errorf("%w: model declares no outputs", ErrModelLoad)
	}
	return tfliteDescriptor(t.interpreter.GetOutputTensor(0))
}

func (t *TFLite) BindInput(in *Tensor) error {
	if !t.allocated {
		return fmt.Errorf("%w: tensors not allocated", ErrInference)
	}
	dst := t.interpreter.GetInputTensor(0)

	var status tflite.Status
	switch {
	case dst.Type() == tflite.UInt8 && in.DataType == Uint8:
		status = dst.CopyFromBuffer(in.Uint8)
	case dst.Type() == tflite.Float32 && in.DataType == Float32:
		status = dst.CopyFromBuffer(in.Float32)
	default:
		return fmt.Errorf("%w: cannot bind %s tensor to %v input", ErrInference, in.DataType, dst.Type())
	}
	if status != tflite.OK {
		return fmt.Errorf("%w: copy input: status %v", ErrInference, status)
	}
	return nil
}

func (t *TFLite) Invoke() error {
	if !t.allocated {
		return fmt.Errorf("%w: tensors not allocated", ErrInference)
	}
	if status := t.interpreter.Invoke(); status != tflite.OK {
		return fmt.Errorf("%w: invoke: status %v", ErrInference, status)
	}
	return nil
}

func (t *TFLite) ReadOutput() (ScoreVector, error) {
	if !t.allocated {
		return nil, fmt.Errorf("%w: tensors not allocated", ErrInference)
	}
	out := t.interpreter.GetOutputTensor(0)
	switch out.Type() {
	case tflite.UInt8:
		return scoresFrom(out.UInt8s()), nil
	case tflite.Float32:
		return scoresFrom(out.Float32s()), nil
	default:
		return nil, fmt.Errorf("%w: unsupported output type %v", ErrInference, out.Type())
	}
}

// Close deletes the interpreter, its options and the model, in that order.
func (t *TFLite) Close() error {
	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
	t.allocated = false
	return nil
}

func tfliteDescriptor(tensor *tflite.Tensor) (TensorDescriptor, error) {
	if tensor == nil {
		return TensorDescriptor{}, fmt.Errorf("%w: tensor is nil", ErrModelLoad)
	}
	d := TensorDescriptor{Name: tensor.Name()}
	for i := 0; i < tensor.NumDims(); i++ {
		d.Shape = append(d.Shape, int64(tensor.Dim(i)))
	}

	switch tensor.Type() {
	case tflite.UInt8:
		d.DataType = Uint8
	case tflite.Float32:
		d.DataType = Float32
	default:
		return d, fmt.Errorf("%w: tensor %q has unsupported type %v", ErrModelLoad, d.Name, tensor.Type())
	}

	// Float tensors report a zero scale
	if q := tensor.QuantizationParams(); q.Scale != 0 {
		d.Quantization = &Quantization{Scale: float64(q.Scale), ZeroPoint: int64(q.ZeroPoint)}
	}
	return d, nil
}

// Ensure TFLite implements Backend at compile time
var _ Backend = (*TFLite)(nil)
