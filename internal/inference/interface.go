// internal/inference/interface.go
package inference

// Backend is the minimal capability set a classification runtime must provide.
// The Model Loader and Invoker only talk to this interface, so tflite, onnx and
// the mock are interchangeable.
type Backend interface {
	// Load reads the serialized model at path and prepares an interpreter for it.
	Load(path string) error

	// AllocateTensors sizes the runtime's execution buffers from the static graph.
	// It must be called exactly once, after Load and before BindInput.
	AllocateTensors() error

	// InputDescriptor and OutputDescriptor describe the designated input and
	// output slots. Only valid after AllocateTensors.
	InputDescriptor() (TensorDescriptor, error)
	OutputDescriptor() (TensorDescriptor, error)

	// BindInput copies t into the designated input slot.
	BindInput(t *Tensor) error

	// Invoke runs a single synchronous forward pass.
	Invoke() error

	// ReadOutput returns the designated output slot as raw scores.
	ReadOutput() (ScoreVector, error)

	// Close releases any resources held by the backend.
	Close() error
}
