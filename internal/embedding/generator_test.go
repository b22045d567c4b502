package embedding

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablerag/internal/domain"
)

type fakeBackend struct {
	dim     int
	failOn  string
	jitter  bool
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-1" }

func (f *fakeBackend) Embed(_ context.Context, text string) ([]float64, error) {
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New("backend exploded")
	}
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
	vec := make([]float64, f.dim)
	for i := range vec {
		vec[i] = float64(i) / float64(f.dim)
	}
	return vec, nil
}

func fakeFactory(dim int) Factory {
	return func() (Backend, error) { return &fakeBackend{dim: dim}, nil }
}

func TestEmbedResamplesToTargetDimension(t *testing.T) {
	for _, native := range []int{64, 384, 1536} {
		g, err := NewGenerator(fakeFactory(native), Config{TargetDimension: 384}, nil)
		require.NoError(t, err)
		res, err := g.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Len(t, res.Vector, 384, "native=%d", native)
		assert.Equal(t, 384, res.Dimensions)
		assert.Equal(t, native, res.RawDimensions)
		assert.Equal(t, "fake", res.Provider)
	}
}

func TestNewGeneratorFailsFastOnBackendError(t *testing.T) {
	factory := func() (Backend, error) { return nil, errors.New("no credentials") }
	_, err := NewGenerator(factory, Config{TargetDimension: 384}, nil)
	assert.Error(t, err)
}

func TestEmbedBatchPreservesInputOrder(t *testing.T) {
	g, err := NewGenerator(func() (Backend, error) {
		return &fakeBackend{dim: 128, jitter: true}, nil
	}, Config{TargetDimension: 384, BatchSize: 4, Workers: 4}, nil)
	require.NoError(t, err)

	chunks := make([]domain.Chunk, 50)
	for i := range chunks {
		chunks[i] = domain.Chunk{Content: fmt.Sprintf("chunk %d", i), SourceID: "s", Index: i}
	}
	results, err := g.EmbedBatch(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, results, 50)
	for i, r := range results {
		require.NotNil(t, r.Chunk)
		assert.Equal(t, i, r.Chunk.Index, "results must come back in input order")
		assert.Len(t, r.Vector, 384)
	}
}

func TestEmbedBatchSkipsFailingChunks(t *testing.T) {
	g, err := NewGenerator(func() (Backend, error) {
		return &fakeBackend{dim: 128, failOn: "chunk 3"}, nil
	}, Config{TargetDimension: 384, BatchSize: 2, Workers: 2}, nil)
	require.NoError(t, err)

	chunks := make([]domain.Chunk, 6)
	for i := range chunks {
		chunks[i] = domain.Chunk{Content: fmt.Sprintf("chunk %d", i), SourceID: "s", Index: i}
	}
	results, err := g.EmbedBatch(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, results, 5, "the failing chunk is skipped, the rest survive")
	for _, r := range results {
		assert.NotEqual(t, 3, r.Chunk.Index)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	g, err := NewGenerator(fakeFactory(16), Config{TargetDimension: 384}, nil)
	require.NoError(t, err)
	results, err := g.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestResample(t *testing.T) {
	t.Run("identity when widths match", func(t *testing.T) {
		in := []float64{1, 2, 3, 4}
		assert.Equal(t, in, Resample(in, 4))
	})
	t.Run("preserves endpoints", func(t *testing.T) {
		in := []float64{0.5, 1, 2, 3, -0.5}
		out := Resample(in, 17)
		assert.InDelta(t, 0.5, out[0], 1e-12)
		assert.InDelta(t, -0.5, out[16], 1e-12)
	})
	t.Run("upsamples by interpolation", func(t *testing.T) {
		out := Resample([]float64{0, 1}, 3)
		assert.InDelta(t, 0.5, out[1], 1e-12)
	})
	t.Run("downsamples", func(t *testing.T) {
		out := Resample([]float64{0, 1, 2, 3, 4}, 3)
		assert.InDelta(t, 0.0, out[0], 1e-12)
		assert.InDelta(t, 2.0, out[1], 1e-12)
		assert.InDelta(t, 4.0, out[2], 1e-12)
	})
	t.Run("single element broadcast", func(t *testing.T) {
		out := Resample([]float64{7}, 4)
		for _, v := range out {
			assert.Equal(t, 7.0, v)
		}
	})
}
