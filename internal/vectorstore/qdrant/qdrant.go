// Package qdrant is a minimal REST client to Qdrant implementing the
// vectorstore contract. It assumes cosine distance and creates the
// collection if missing.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tablerag/internal/domain"
	"tablerag/internal/vectorstore"
)

// Config contains connection details and batching bounds.
type Config struct {
	URL         string
	APIKey      string
	Collection  string
	Timeout     time.Duration
	BatchSize   int
	Heuristic   string // degraded-mode ranking: "length" or "none"
	SampleLimit int    // maximum records scanned in degraded mode
}

type Storage struct {
	cfg       Config
	dimension int
	client    *http.Client
	log       *logrus.Logger
}

func NewStorage(cfg Config, log *logrus.Logger) *Storage {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Heuristic == "" {
		cfg.Heuristic = "length"
	}
	if cfg.SampleLimit <= 0 {
		cfg.SampleLimit = 200
	}
	if log == nil {
		log = logrus.New()
	}
	return &Storage{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, log: log}
}

// Init ensures the collection exists with the given dimension and cosine
// distance. Qdrant returns 200 when the collection already exists with the
// same schema.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.cfg.Collection), body, nil)
}

// Store upserts embeddings in fixed-size batches, sequentially. Any batch
// failure aborts the call, naming the failing batch; previously written
// batches stay persisted (at-least-once, non-atomic).
func (s *Storage) Store(ctx context.Context, results []domain.EmbeddingResult, sourceType string) ([]string, error) {
	if err := vectorstore.ValidateDimensions(results, s.dimension); err != nil {
		return nil, err
	}
	now := time.Now()
	ids := make([]string, 0, len(results))
	for batchIdx, start := 0, 0; start < len(results); batchIdx, start = batchIdx+1, start+s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(results) {
			end = len(results)
		}
		batch := results[start:end]
		points := make([]map[string]any, len(batch))
		batchIDs := make([]string, len(batch))
		for i, r := range batch {
			id := uuid.NewString()
			payload := vectorstore.Metadata(r, sourceType, now)
			payload["text"] = r.SourceText
			points[i] = map[string]any{
				"id":      id,
				"vector":  r.Vector,
				"payload": payload,
			}
			batchIDs[i] = id
		}
		body := map[string]any{"points": points}
		path := fmt.Sprintf("/collections/%s/points?wait=true", s.cfg.Collection)
		if err := s.do(ctx, http.MethodPut, path, body, nil); err != nil {
			return nil, fmt.Errorf("upsert batch %d failed: %w", batchIdx, err)
		}
		ids = append(ids, batchIDs...)
		s.log.WithFields(logrus.Fields{"batch": batchIdx, "points": len(batch)}).Debug("stored batch")
	}
	return ids, nil
}

// Search delegates cosine ranking to Qdrant with server-side threshold,
// limit and filters. On any failure of the similarity path it degrades to a
// sampled heuristic ranking so the system keeps answering; degraded results
// are marked so callers can detect the quality loss.
func (s *Storage) Search(ctx context.Context, vector []float64, opts vectorstore.SearchOptions) ([]domain.SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	req := map[string]any{
		"vector":          vector,
		"limit":           opts.Limit,
		"score_threshold": opts.Threshold,
		"with_payload":    true,
	}
	if f := filterClause(opts.Filters); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", s.cfg.Collection)
	if err := s.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		s.log.WithError(err).Warn("vector search failed, falling back to degraded ranking")
		return s.degradedSearch(ctx, opts)
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, resultFromPayload(fmt.Sprint(r.ID), clamp01(r.Score), r.Payload, false))
	}
	return results, nil
}

// degradedSearch scrolls a capped sample and ranks it with a crude proxy for
// relevance. The default length heuristic is a placeholder kept only so the
// system responds instead of hard-failing.
func (s *Storage) degradedSearch(ctx context.Context, opts vectorstore.SearchOptions) ([]domain.SearchResult, error) {
	req := map[string]any{
		"limit":        s.cfg.SampleLimit,
		"with_payload": true,
	}
	if f := filterClause(opts.Filters); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", s.cfg.Collection)
	if err := s.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("degraded search failed: %w", err)
	}
	points := resp.Result.Points
	results := make([]domain.SearchResult, 0, len(points))
	maxLen := 1
	for _, p := range points {
		if t, ok := p.Payload["text"].(string); ok && len(t) > maxLen {
			maxLen = len(t)
		}
	}
	for _, p := range points {
		text, _ := p.Payload["text"].(string)
		score := 0.0
		if s.cfg.Heuristic == "length" {
			score = float64(len(text)) / float64(maxLen)
		}
		results = append(results, resultFromPayload(fmt.Sprint(p.ID), score, p.Payload, true))
	}
	if s.cfg.Heuristic == "length" {
		sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// DeleteBySource removes every point belonging to a source and reports how
// many were deleted.
func (s *Storage) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	filter := filterClause(map[string]any{"source": sourceID})
	count, err := s.count(ctx, filter)
	if err != nil {
		return 0, err
	}
	body := map[string]any{"filter": filter}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.cfg.Collection)
	if err := s.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Storage) Stats(ctx context.Context, sourceID string) (*vectorstore.Stats, error) {
	var filter map[string]any
	if sourceID != "" {
		filter = filterClause(map[string]any{"source": sourceID})
	}
	count, err := s.count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &vectorstore.Stats{TotalVectors: count, Dimension: s.dimension}, nil
}

func (s *Storage) count(ctx context.Context, filter map[string]any) (int, error) {
	body := map[string]any{"exact": true}
	if filter != nil {
		body["filter"] = filter
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", s.cfg.Collection)
	if err := s.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func filterClause(filters map[string]any) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(filters))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": filters[k]},
		})
	}
	return map[string]any{"must": must}
}

func resultFromPayload(id string, score float64, payload map[string]any, degraded bool) domain.SearchResult {
	res := domain.SearchResult{
		ID:         id,
		Similarity: score,
		Metadata:   payload,
		Degraded:   degraded,
	}
	if v, ok := payload["text"].(string); ok {
		res.Text = v
	}
	if v, ok := payload["source"].(string); ok {
		res.Source = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		res.ChunkIndex = int(v)
	}
	return res
}

func (s *Storage) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
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
