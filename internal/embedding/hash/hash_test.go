package hash

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic(t *testing.T) {
	b := New(128)
	v1, err := b.Embed(context.Background(), "the same text")
	require.NoError(t, err)
	v2, err := b.Embed(context.Background(), "the same text")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	v3, err := b.Embed(context.Background(), "different text")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
}

func TestUnitNorm(t *testing.T) {
	vec := Vector("anything", 256)
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestDefaultDimension(t *testing.T) {
	b := New(0)
	vec, err := b.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, 256)
}
