// Package llmproxy is the embedding backend used when no dedicated embedding
// model is configured. It asks the chat LLM for a short summary of the text
// and hashes text plus summary into a seeded pseudo-random vector, trading
// true semantic geometry for availability. When the chat call fails it falls
// back internally to the pure hash vector instead of erroring.
package llmproxy

import (
	"context"
	"errors"

	"tablerag/internal/domain"
	"tablerag/internal/embedding/hash"
)

const (
	defaultDimension = 256
	maxSummaryInput  = 2000
)

type Backend struct {
	chat      domain.ChatClient
	dimension int
}

func New(chat domain.ChatClient, dimension int) (*Backend, error) {
	if chat == nil {
		return nil, errors.New("llmproxy requires a chat client")
	}
	if dimension <= 0 {
		dimension = defaultDimension
	}
	return &Backend{chat: chat, dimension: dimension}, nil
}

func (b *Backend) Name() string { return "llm_proxy" }

func (b *Backend) Model() string { return "summary-hash" }

func (b *Backend) Embed(ctx context.Context, text string) ([]float64, error) {
	input := text
	if len(input) > maxSummaryInput {
		input = input[:maxSummaryInput]
	}
	resp := b.chat.Chat(ctx, &domain.LLMRequest{
		Prompt:      "Summarize the following text in one sentence:\n\n" + input,
		Temperature: 0.1,
		MaxTokens:   80,
	})
	seed := text
	if resp.Success && resp.Content != "" {
		seed = text + "\n" + resp.Content
	}
	return hash.Vector(seed, b.dimension), nil
}
