// Package hash provides a deterministic offline embedding backend. Vectors
// are seeded from a hash of the input text, so identical texts always map to
// identical vectors. There is no semantic geometry; it exists for local
// development and tests.
package hash

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

const defaultDimension = 256

type Backend struct {
	dimension int
}

func New(dimension int) *Backend {
	if dimension <= 0 {
		dimension = defaultDimension
	}
	return &Backend{dimension: dimension}
}

func (b *Backend) Name() string { return "mock" }

func (b *Backend) Model() string { return "hash-v1" }

func (b *Backend) Embed(_ context.Context, text string) ([]float64, error) {
	return Vector(text, b.dimension), nil
}

// Vector returns the seeded pseudo-random unit vector for the given text.
// Exposed so the LLM-proxy backend can reuse it as its internal fallback.
func Vector(text string, dimension int) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	vec := make([]float64, dimension)
	norm := 0.0
	for i := range vec {
		vec[i] = rng.Float64()*2 - 1
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
