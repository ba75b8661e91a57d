// Package embedding wraps a remote text-embedding provider with batching,
// dimensionality checks and per-call failure isolation.
package embedding

import (
	"context"

	"github.com/timmy/stitchrag/internal/domain"
)

// Request is one provider call.
type Request struct {
	Texts          []string
	TaskType       string
	Dimensionality int
}

// Provider performs a single embedding call. Implementations return one
// vector per input text in input order.
type Provider interface {
	Name() string
	Embed(ctx context.Context, req *Request) ([]domain.Vector, error)
}
