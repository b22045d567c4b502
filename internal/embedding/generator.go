package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tablerag/internal/domain"
)

// Config bounds the generator. TargetDimension is the system-wide vector
// width every stored and query vector must have.
type Config struct {
	TargetDimension int
	BatchSize       int
	Workers         int
}

// Generator wraps a Backend and normalizes every vector to the target
// dimension. It implements domain.Embedder.
type Generator struct {
	factory Factory
	backend Backend // owned by the calling goroutine for single embeds
	cfg     Config
	log     *logrus.Logger
}

// NewGenerator builds one backend eagerly so misconfiguration fails at
// construction instead of corrupting the index later.
func NewGenerator(factory Factory, cfg Config, log *logrus.Logger) (*Generator, error) {
	if cfg.TargetDimension <= 0 {
		return nil, fmt.Errorf("invalid target dimension %d", cfg.TargetDimension)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if log == nil {
		log = logrus.New()
	}
	backend, err := factory()
	if err != nil {
		return nil, fmt.Errorf("embedding backend init failed: %w", err)
	}
	return &Generator{factory: factory, backend: backend, cfg: cfg, log: log}, nil
}

func (g *Generator) Provider() string { return g.backend.Name() }

func (g *Generator) Dimension() int { return g.cfg.TargetDimension }

// Embed turns one text into a target-dimension vector.
func (g *Generator) Embed(ctx context.Context, text string) (*domain.EmbeddingResult, error) {
	return g.embedWith(ctx, g.backend, text)
}

func (g *Generator) embedWith(ctx context.Context, backend Backend, text string) (*domain.EmbeddingResult, error) {
	start := time.Now()
	raw, err := backend.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("backend %s returned an empty vector", backend.Name())
	}
	return &domain.EmbeddingResult{
		SourceText:     text,
		Vector:         Resample(raw, g.cfg.TargetDimension),
		Provider:       backend.Name(),
		Model:          backend.Model(),
		Dimensions:     g.cfg.TargetDimension,
		RawDimensions:  len(raw),
		ProcessingTime: time.Since(start),
	}, nil
}

type batch struct {
	start  int
	chunks []domain.Chunk
}

type batchResult struct {
	start   int
	results []domain.EmbeddingResult
}

// EmbedBatch embeds chunks in fixed-size batches across a bounded worker
// pool. Each worker owns a private backend instance. A failing chunk is
// logged and skipped; the rest of its batch is still returned. Output order
// always equals input order regardless of worker completion order.
func (g *Generator) EmbedBatch(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddingResult, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	var batches []batch
	for i := 0; i < len(chunks); i += g.cfg.BatchSize {
		end := i + g.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, batch{start: i, chunks: chunks[i:end]})
	}

	var mu sync.Mutex
	completed := make([]batchResult, 0, len(batches))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for _, b := range batches {
		b := b
		eg.Go(func() error {
			backend, err := g.factory()
			if err != nil {
				return fmt.Errorf("worker backend init failed: %w", err)
			}
			results := make([]domain.EmbeddingResult, 0, len(b.chunks))
			for i := range b.chunks {
				ch := b.chunks[i]
				res, err := g.embedWith(ctx, backend, ch.Content)
				if err != nil {
					g.log.WithError(err).WithFields(logrus.Fields{
						"source": ch.SourceID,
						"chunk":  ch.Index,
					}).Warn("embedding failed, skipping chunk")
					continue
				}
				res.Chunk = &ch
				results = append(results, *res)
			}
			mu.Lock()
			completed = append(completed, batchResult{start: b.start, results: results})
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Workers finish in arbitrary order; re-sorting by batch offset is what
	// restores the original chunk ordering.
	sort.Slice(completed, func(i, j int) bool { return completed[i].start < completed[j].start })
	var out []domain.EmbeddingResult
	for _, c := range completed {
		out = append(out, c.results...)
	}
	return out, nil
}

// Resample linearly interpolates a vector onto evenly spaced indices so any
// backend's native width maps to the target dimension. This is a deliberate,
// lossy approximation kept for cross-provider comparability; it is not a
// learned projection.
func Resample(vec []float64, target int) []float64 {
	out := make([]float64, target)
	switch {
	case len(vec) == 0 || target <= 0:
		return out
	case len(vec) == target:
		copy(out, vec)
		return out
	case len(vec) == 1 || target == 1:
		for i := range out {
			out[i] = vec[0]
		}
		return out
	}
	scale := float64(len(vec)-1) / float64(target-1)
	for i := range out {
		pos := float64(i) * scale
		lo := int(pos)
		if lo >= len(vec)-1 {
			out[i] = vec[len(vec)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = vec[lo]*(1-frac) + vec[lo+1]*frac
	}
	return out
}
