package llm

import (
	"context"

	"tablerag/internal/domain"
)

// ChatProvider is one interchangeable chat LLM vendor. Implementations
// differ only in request/response marshaling.
type ChatProvider interface {
	Name() string
	Model() string
	// Available probes whether the provider can be called at all
	// (credential present, endpoint reachable). It does not guarantee a
	// later call will succeed.
	Available() error
	Chat(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error)
}
