package vectorstore

import (
	"context"
	"fmt"
	"time"

	"tablerag/internal/domain"
)

// SearchOptions bounds a similarity search. Filters match payload fields
// exactly (e.g. {"source": "credit.csv"}).
type SearchOptions struct {
	Threshold float64
	Limit     int
	Filters   map[string]any
}

// Stats describes the store contents, optionally scoped to one source.
type Stats struct {
	TotalVectors int            `json:"total_vectors"`
	Dimension    int            `json:"dimension"`
	Sources      map[string]int `json:"sources,omitempty"`
}

// Store persists embeddings and performs similarity search. Every stored
// vector must have exactly the configured target dimension.
type Store interface {
	Store(ctx context.Context, results []domain.EmbeddingResult, sourceType string) ([]string, error)
	Search(ctx context.Context, vector []float64, opts SearchOptions) ([]domain.SearchResult, error)
	DeleteBySource(ctx context.Context, sourceID string) (int, error)
	Stats(ctx context.Context, sourceID string) (*Stats, error)
}

// ValidateDimensions rejects the whole batch when any vector deviates from
// the target dimension. Partial writes of mismatched widths would corrupt
// similarity search irrecoverably, so this runs before any network call.
func ValidateDimensions(results []domain.EmbeddingResult, dimension int) error {
	for i, r := range results {
		if len(r.Vector) != dimension {
			return fmt.Errorf("embedding %d has dimension %d, want %d; rejecting batch", i, len(r.Vector), dimension)
		}
	}
	return nil
}

// Metadata builds the persisted payload for one embedding, merging in any
// strategy-specific chunk extras (CSV row ranges and the like).
func Metadata(res domain.EmbeddingResult, sourceType string, now time.Time) map[string]any {
	meta := map[string]any{
		"provider":             res.Provider,
		"model":                res.Model,
		"dimensions":           res.Dimensions,
		"raw_dimensions":       res.RawDimensions,
		"processing_time_secs": res.ProcessingTime.Seconds(),
		"source_type":          sourceType,
		"created_at":           now.UTC().Format(time.RFC3339),
	}
	if res.Chunk != nil {
		meta["source"] = res.Chunk.SourceID
		meta["chunk_index"] = res.Chunk.Index
		meta["strategy"] = string(res.Chunk.Strategy)
		for k, v := range res.Chunk.Extra {
			meta[k] = v
		}
	}
	return meta
}
