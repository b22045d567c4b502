package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablerag/internal/domain"
	"tablerag/internal/vectorstore"
)

func embWithChunk(vec []float64, source string, index int) domain.EmbeddingResult {
	return domain.EmbeddingResult{
		SourceText: "text",
		Vector:     vec,
		Provider:   "mock",
		Model:      "hash-v1",
		Dimensions: len(vec),
		Chunk:      &domain.Chunk{SourceID: source, Index: index},
	}
}

func TestStoreRejectsDimensionMismatch(t *testing.T) {
	s := NewStorage(4)
	results := []domain.EmbeddingResult{
		embWithChunk([]float64{1, 0, 0, 0}, "a", 0),
		embWithChunk([]float64{1, 0, 0}, "a", 1), // wrong width
	}
	_, err := s.Store(context.Background(), results, "csv")
	require.Error(t, err)

	stats, err := s.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalVectors, "a rejected batch persists zero rows")
}

func TestSearchRanksAndThresholds(t *testing.T) {
	s := NewStorage(3)
	ctx := context.Background()
	_, err := s.Store(ctx, []domain.EmbeddingResult{
		embWithChunk([]float64{1, 0, 0}, "a", 0),
		embWithChunk([]float64{0.9, 0.1, 0}, "a", 1),
		embWithChunk([]float64{-1, 0, 0}, "b", 0),
	}, "csv")
	require.NoError(t, err)

	results, err := s.Search(ctx, []float64{1, 0, 0}, vectorstore.SearchOptions{Threshold: 0.5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2, "the opposite vector falls below threshold")
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.0)
		assert.LessOrEqual(t, r.Similarity, 1.0)
		assert.False(t, r.Degraded)
	}
}

func TestSearchSimilarityClampedToUnitInterval(t *testing.T) {
	s := NewStorage(2)
	ctx := context.Background()
	_, err := s.Store(ctx, []domain.EmbeddingResult{embWithChunk([]float64{0, -1}, "a", 0)}, "csv")
	require.NoError(t, err)
	results, err := s.Search(ctx, []float64{0, 1}, vectorstore.SearchOptions{Threshold: 0, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Similarity)
}

func TestSearchFilters(t *testing.T) {
	s := NewStorage(2)
	ctx := context.Background()
	_, err := s.Store(ctx, []domain.EmbeddingResult{
		embWithChunk([]float64{1, 0}, "a.csv", 0),
		embWithChunk([]float64{1, 0}, "b.csv", 0),
	}, "csv")
	require.NoError(t, err)

	results, err := s.Search(ctx, []float64{1, 0}, vectorstore.SearchOptions{
		Limit:   10,
		Filters: map[string]any{"source": "a.csv"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.csv", results[0].Source)
}

func TestDeleteBySource(t *testing.T) {
	s := NewStorage(2)
	ctx := context.Background()
	_, err := s.Store(ctx, []domain.EmbeddingResult{
		embWithChunk([]float64{1, 0}, "a.csv", 0),
		embWithChunk([]float64{1, 0}, "a.csv", 1),
		embWithChunk([]float64{1, 0}, "b.csv", 0),
	}, "csv")
	require.NoError(t, err)

	deleted, err := s.DeleteBySource(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	stats, err := s.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVectors)
	assert.Equal(t, 1, stats.Sources["b.csv"])
}

func TestStoreRecordsMetadata(t *testing.T) {
	s := NewStorage(2)
	ctx := context.Background()
	res := embWithChunk([]float64{1, 0}, "a.csv", 0)
	res.Chunk.Extra = map[string]any{"start_row": 1, "end_row": 5, "total_rows": 10}
	ids, err := s.Store(ctx, []domain.EmbeddingResult{res}, "csv")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	results, err := s.Search(ctx, []float64{1, 0}, vectorstore.SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[0], results[0].ID)
	assert.Equal(t, "csv", results[0].Metadata["source_type"])
	assert.Equal(t, 10, results[0].Metadata["total_rows"])
	assert.Equal(t, "mock", results[0].Metadata["provider"])
}
