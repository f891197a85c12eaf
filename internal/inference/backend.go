// internal/inference/backend.go
package inference

import (
	"fmt"
	"sort"
	"strings"
)

// Options carries backend-specific settings.
type Options struct {
	// NumThreads is the interpreter thread count (tflite, onnx intra-op).
	NumThreads int
	// LibraryPath is the onnxruntime shared library (onnx).
	LibraryPath string
}

// Factory builds a fresh, unloaded Backend.
type Factory func(opts Options) Backend

var factories = map[string]Factory{
	"tflite": func(opts Options) Backend { return NewTFLite(opts.NumThreads) },
	"onnx":   func(opts Options) Backend { return NewONNX(opts.LibraryPath, opts.NumThreads) },
	"mock":   func(Options) Backend { return NewMock() },
}

// New returns a Backend by name.
func New(name string, opts Options) (Backend, error) {
	f, ok := factories[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q (available: %s)",
			ErrModelLoad, name, strings.Join(Names(), ", "))
	}
	return f(opts), nil
}

// Names lists the registered backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
