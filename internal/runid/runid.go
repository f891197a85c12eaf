// internal/runid/runid.go
package runid

import (
	"context"

	"github.com/google/uuid"
)

// runIDKey is the context key for storing the run ID
type runIDKey struct{}

// New generates a fresh run ID
func New() string {
	return uuid.New().String()
}

// WithRunID returns a copy of ctx carrying id. An empty id is replaced with a
// generated one.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = New()
	}
	return context.WithValue(ctx, runIDKey{}, id)
}

// Get retrieves the run ID from the context
func Get(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
