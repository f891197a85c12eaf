// internal/inference/onnx.go
package inference

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNX runs a model through onnxruntime. Input and output tensors are
// allocated once and reused by the session.
type ONNX struct {
	libraryPath string
	numThreads  int
	path        string
	ownsEnv     bool

	in  TensorDescriptor
	out TensorDescriptor

	session   *ort.AdvancedSession
	inputU8   *ort.Tensor[uint8]
	inputF32  *ort.Tensor[float32]
	outputU8  *ort.Tensor[uint8]
	outputF32 *ort.Tensor[float32]
}

// NewONNX creates an ONNX backend. libraryPath points at the onnxruntime
// shared library; empty uses the platform default. numThreads sets the
// intra-op thread count; 0 leaves the runtime default.
func NewONNX(libraryPath string, numThreads int) *ONNX {
	return &ONNX{libraryPath: libraryPath, numThreads: numThreads}
}

// Load initializes the ONNX runtime environment and reads the model's
// input/output metadata. The session itself is created by AllocateTensors.
func (o *ONNX) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	if !ort.IsInitialized() {
		if o.libraryPath != "" {
			ort.SetSharedLibraryPath(o.libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("%w: failed to initialize ONNX environment: %v", ErrModelLoad, err)
		}
		o.ownsEnv = true
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read model metadata: %v", ErrModelLoad, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("%w: model declares %d inputs and %d outputs", ErrModelLoad, len(inputs), len(outputs))
	}

	o.in, err = onnxDescriptor(inputs[0])
	if err != nil {
		return err
	}
	o.out, err = onnxDescriptor(outputs[0])
	if err != nil {
		return err
	}
	o.path = path
	return nil
}

func (o *ONNX) AllocateTensors() error {
	if o.path == "" {
		return fmt.Errorf("%w: allocate before load", ErrModelLoad)
	}
	if o.session != nil {
		return fmt.Errorf("%w: tensors already allocated", ErrModelLoad)
	}

	// Create input tensor with the declared shape, batch resolved to 1
	var input ort.ArbitraryTensor
	inputShape := ort.NewShape(o.in.Shape...)
	switch o.in.DataType {
	case Uint8:
		t, err := ort.NewEmptyTensor[uint8](inputShape)
		if err != nil {
			return fmt.Errorf("%w: failed to create input tensor: %v", ErrModelLoad, err)
		}
		o.inputU8, input = t, t
	case Float32:
		t, err := ort.NewEmptyTensor[float32](inputShape)
		if err != nil {
			return fmt.Errorf("%w: failed to create input tensor: %v", ErrModelLoad, err)
		}
		o.inputF32, input = t, t
	}

	var output ort.ArbitraryTensor
	outputShape := ort.NewShape(o.out.Shape...)
	switch o.out.DataType {
	case Uint8:
		t, err := ort.NewEmptyTensor[uint8](outputShape)
		if err != nil {
			o.destroyTensors()
			return fmt.Errorf("%w: failed to create output tensor: %v", ErrModelLoad, err)
		}
		o.outputU8, output = t, t
	case Float32:
		t, err := ort.NewEmptyTensor[float32](outputShape)
		if err != nil {
			o.destroyTensors()
			return fmt.Errorf("%w: failed to create output tensor: %v", ErrModelLoad, err)
		}
		o.outputF32, output = t, t
	}

	options, err := o.sessionOptions()
	if err != nil {
		o.destroyTensors()
		return err
	}
	if options != nil {
		defer options.Destroy()
	}

	session, err := ort.NewAdvancedSession(o.path,
		[]string{o.in.Name}, []string{o.out.Name},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		options)
	if err != nil {
		o.destroyTensors()
		return fmt.Errorf("%w: failed to create ONNX session: %v", ErrModelLoad, err)
	}
	o.session = session
	return nil
}

// sessionOptions returns nil when every setting is at its runtime default.
func (o *ONNX) sessionOptions() (*ort.SessionOptions, error) {
	if o.numThreads <= 0 {
		return nil, nil
	}
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session options: %v", ErrModelLoad, err)
	}
	if err := options.SetIntraOpNumThreads(o.numThreads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("%w: failed to set %d threads: %v", ErrModelLoad, o.numThreads, err)
	}
	return options, nil
}

func (o *ONNX) InputDescriptor() (TensorDescriptor, error) {
	if o.session == nil {
		return TensorDescriptor{}, fmt.Errorf("%w: session is nil", ErrModelLoad)
	}
	return o.in, nil
}

func (o *ONNX) OutputDescriptor() (TensorDescriptor, error) {
	if o.session == nil {
		return TensorDescriptor{}, fmt.Errorf("%w: session is nil", ErrModelLoad)
	}
	return o.out, nil
}

func (o *ONNX) BindInput(t *Tensor) error {
	if o.session == nil {
		return fmt.Errorf("%w: session is nil", ErrInference)
	}
	switch {
	case o.inputU8 != nil && t.DataType == Uint8:
		dst := o.inputU8.GetData()
		if len(dst) != len(t.Uint8) {
			return fmt.Errorf("%w: input has wrong size: got %d, expected %d", ErrInference, len(t.Uint8), len(dst))
		}
		copy(dst, t.Uint8)
	case o.inputF32 != nil && t.DataType == Float32:
		dst := o.inputF32.GetData()
		if len(dst) != len(t.Float32) {
			return fmt.Errorf("%w: input has wrong size: got %d, expected %d", ErrInference, len(t.Float32), len(dst))
		}
		copy(dst, t.Float32)
	default:
		return fmt.Errorf("%w: cannot bind %s tensor to %s input", ErrInference, t.DataType, o.in.DataType)
	}
	return nil
}

func (o *ONNX) Invoke() error {
	if o.session == nil {
		return fmt.Errorf("%w: session is nil", ErrInference)
	}
	if err := o.session.Run(); err != nil {
		return fmt.Errorf("%w: %v", ErrInference, err)
	}
	return nil
}

func (o *ONNX) ReadOutput() (ScoreVector, error) {
	switch {
	case o.outputU8 != nil:
		return scoresFrom(o.outputU8.GetData()), nil
	case o.outputF32 != nil:
		return scoresFrom(o.outputF32.GetData()), nil
	default:
		return nil, fmt.Errorf("%w: output tensor not allocated", ErrInference)
	}
}

// Close releases the session, its tensors, and the environment if this
// backend initialized it.
func (o *ONNX) Close() error {
	var err error
	if o.session != nil {
		err = o.session.Destroy()
		o.session = nil
	}
	o.destroyTensors()

	if o.ownsEnv {
		o.ownsEnv = false
		if envErr := ort.DestroyEnvironment(); envErr != nil && err == nil {
			err = envErr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func (o *ONNX) destroyTensors() {
	if o.inputU8 != nil {
		o.inputU8.Destroy()
		o.inputU8 = nil
	}
	if o.inputF32 != nil {
		o.inputF32.Destroy()
		o.inputF32 = nil
	}
	if o.outputU8 != nil {
		o.outputU8.Destroy()
		o.outputU8 = nil
	}
	if o.outputF32 != nil {
		o.outputF32.Destroy()
		o.outputF32 = nil
	}
}

func onnxDescriptor(info ort.InputOutputInfo) (TensorDescriptor, error) {
	d := TensorDescriptor{
		Name:  info.Name,
		Shape: resolveShape([]int64(info.Dimensions)),
	}
	switch info.DataType {
	case ort.TensorElementDataTypeUint8:
		d.DataType = Uint8
	case ort.TensorElementDataTypeFloat:
		d.DataType = Float32
	default:
		return d, fmt.Errorf("%w: tensor %q has unsupported element type %v", ErrModelLoad, info.Name, info.DataType)
	}
	return d, nil
}

func scoresFrom[T uint8 | float32](data []T) ScoreVector {
	out := make(ScoreVector, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// Ensure ONNX implements Backend at compile time
var _ Backend = (*ONNX)(nil)
