// internal/inference/model.go
package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Model is a loaded, allocated backend plus its input/output descriptors.
// It serializes invocations; the underlying runtimes are not safe for
// concurrent use.
type Model struct {
	mu      sync.Mutex
	backend Backend
	path    string

	Input  TensorDescriptor
	Output TensorDescriptor
}

// Load loads the model at path into backend, allocates its tensors and reads
// the descriptors. The backend is closed if any step fails.
func Load(ctx context.Context, backend Backend, path string) (*Model, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is nil", ErrModelLoad)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := backend.Load(path); err != nil {
		backend.Close()
		return nil, wrapKind(ErrModelLoad, err)
	}
	if err := backend.AllocateTensors(); err != nil {
		backend.Close()
		return nil, wrapKind(ErrModelLoad, err)
	}

	in, err := backend.InputDescriptor()
	if err != nil {
		backend.Close()
		return nil, wrapKind(ErrModelLoad, err)
	}
	out, err := backend.OutputDescriptor()
	if err != nil {
		backend.Close()
		return nil, wrapKind(ErrModelLoad, err)
	}
	in.Shape = resolveShape(in.Shape)
	out.Shape = resolveShape(out.Shape)

	return &Model{
		backend: backend,
		path:    path,
		Input:   in,
		Output:  out,
	}, nil
}

// Path returns the artifact path the model was loaded from.
func (m *Model) Path() string {
	return m.path
}

// Infer binds t to the input slot, runs one forward pass and reads back the
// output scores. The returned duration covers the Invoke call only.
func (m *Model) Infer(ctx context.Context, t *Tensor) (ScoreVector, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend == nil {
		return nil, 0, fmt.Errorf("%w: model is closed", ErrInference)
	}
	if t == nil {
		return nil, 0, fmt.Errorf("%w: input tensor is nil", ErrInference)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if t.DataType != m.Input.DataType {
		return nil, 0, fmt.Errorf("%w: input tensor is %s, model expects %s",
			ErrInference, t.DataType, m.Input.DataType)
	}
	if !sameShape(t.Shape, m.Input.Shape) {
		return nil, 0, fmt.Errorf("%w: input tensor has shape %v, model expects %v",
			ErrInference, t.Shape, m.Input.Shape)
	}
	if int64(t.Len()) != m.Input.Elements() {
		return nil, 0, fmt.Errorf("%w: input tensor has %d elements, model expects %d",
			ErrInference, t.Len(), m.Input.Elements())
	}

	if err := m.backend.BindInput(t); err != nil {
		return nil, 0, wrapKind(ErrInference, err)
	}

	start := time.Now()
	err := m.backend.Invoke()
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, wrapKind(ErrInference, err)
	}

	scores, err := m.backend.ReadOutput()
	if err != nil {
		return nil, elapsed, wrapKind(ErrInference, err)
	}
	return scores, elapsed, nil
}

// Close releases the backend. It is safe to call more than once.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend == nil {
		return nil
	}
	err := m.backend.Close()
	m.backend = nil
	return err
}

// wrapKind tags err with kind unless it already carries it.
func wrapKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}
