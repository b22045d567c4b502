package llmproxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablerag/internal/domain"
	"tablerag/internal/embedding/hash"
)

type fakeChat struct {
	content string
	fail    bool
}

func (f *fakeChat) Chat(_ context.Context, _ *domain.LLMRequest) *domain.LLMResponse {
	if f.fail {
		return &domain.LLMResponse{Success: false, Error: "provider down"}
	}
	return &domain.LLMResponse{Content: f.content, Success: true}
}

func TestRequiresChatClient(t *testing.T) {
	_, err := New(nil, 128)
	assert.Error(t, err)
}

func TestSummaryChangesVector(t *testing.T) {
	a, err := New(&fakeChat{content: "summary one"}, 128)
	require.NoError(t, err)
	b, err := New(&fakeChat{content: "summary two"}, 128)
	require.NoError(t, err)

	va, err := a.Embed(context.Background(), "same input")
	require.NoError(t, err)
	vb, err := b.Embed(context.Background(), "same input")
	require.NoError(t, err)
	assert.Len(t, va, 128)
	assert.NotEqual(t, va, vb, "the summary participates in the seed")
}

func TestFallsBackToPureHashWhenChatFails(t *testing.T) {
	b, err := New(&fakeChat{fail: true}, 128)
	require.NoError(t, err)
	vec, err := b.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, hash.Vector("some text", 128), vec)
}
