package domain

import "context"

// Chunker splits raw text into bounded, overlapping chunks.
type Chunker interface {
	Chunk(text, sourceID string, strategy ChunkStrategy) []Chunk
}

// Embedder converts text into fixed-dimension vectors. Implementations must
// return vectors whose length equals Dimension() for every input.
type Embedder interface {
	Provider() string
	Dimension() int
	Embed(ctx context.Context, text string) (*EmbeddingResult, error)
	EmbedBatch(ctx context.Context, chunks []Chunk) ([]EmbeddingResult, error)
}

// ChatClient is the chat-completion surface consumed by components that
// need an LLM but not provider management. It never returns a Go error;
// failures are reported through LLMResponse.Success and Error.
type ChatClient interface {
	Chat(ctx context.Context, req *LLMRequest) *LLMResponse
}
