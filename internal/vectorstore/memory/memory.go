// Package memory is an in-process vector store using brute-force cosine
// similarity. It honors the same contract as the qdrant store and exists for
// offline development and tests.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tablerag/internal/domain"
	"tablerag/internal/vectorstore"
)

type record struct {
	id        string
	text      string
	vector    []float64
	metadata  map[string]any
	source    string
	chunkIdx  int
	createdAt time.Time
}

type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   []record
}

func NewStorage(dimension int) *Storage {
	return &Storage{dimension: dimension}
}

func (s *Storage) Store(_ context.Context, results []domain.EmbeddingResult, sourceType string) ([]string, error) {
	if err := vectorstore.ValidateDimensions(results, s.dimension); err != nil {
		return nil, err
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(results))
	for _, r := range results {
		rec := record{
			id:        uuid.NewString(),
			text:      r.SourceText,
			vector:    r.Vector,
			metadata:  vectorstore.Metadata(r, sourceType, now),
			createdAt: now,
		}
		if r.Chunk != nil {
			rec.source = r.Chunk.SourceID
			rec.chunkIdx = r.Chunk.Index
		}
		s.records = append(s.records, rec)
		ids = append(ids, rec.id)
	}
	return ids, nil
}

func (s *Storage) Search(_ context.Context, vector []float64, opts vectorstore.SearchOptions) ([]domain.SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []domain.SearchResult
	for _, rec := range s.records {
		if !matches(rec.metadata, opts.Filters) {
			continue
		}
		sim := clamp01(cosine(rec.vector, vector))
		if sim < opts.Threshold {
			continue
		}
		results = append(results, domain.SearchResult{
			ID:         rec.id,
			Text:       rec.text,
			Similarity: sim,
			Source:     rec.source,
			ChunkIndex: rec.chunkIdx,
			Metadata:   rec.metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *Storage) DeleteBySource(_ context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	deleted := 0
	for _, rec := range s.records {
		if rec.source == sourceID {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

func (s *Storage) Stats(_ context.Context, sourceID string) (*vectorstore.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &vectorstore.Stats{Dimension: s.dimension, Sources: map[string]int{}}
	for _, rec := range s.records {
		if sourceID != "" && rec.source != sourceID {
			continue
		}
		stats.TotalVectors++
		stats.Sources[rec.source]++
	}
	return stats, nil
}

func matches(metadata, filters map[string]any) bool {
	for k, want := range filters {
		if metadata[k] != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
