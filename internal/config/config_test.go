package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.TargetDimension)
	assert.Equal(t, 4, cfg.Embedding.Workers)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "length", cfg.VectorStore.Fallback.Heuristic)
	assert.Equal(t, []string{"openai", "anthropic", "ollama"}, cfg.LLM.Preference)
	assert.Equal(t, 0.7, cfg.Query.SimilarityThreshold)
	assert.True(t, cfg.Guardrails.Enabled)
	assert.Equal(t, 0.1, cfg.Guardrails.CorrectionTemperature)
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `embedding:
  provider: remote
  remote:
    model: nomic-embed-text
vector_store:
  type: qdrant
  qdrant:
    url: http://localhost:6333
chunking:
  csv_chunk_rows: 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "remote", cfg.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Remote.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.Remote.BaseURL)
	assert.Equal(t, 384, cfg.Embedding.TargetDimension)
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "tablerag", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, 50, cfg.VectorStore.Qdrant.BatchSize)
	assert.Equal(t, 5, cfg.Chunking.CSVChunkRows)
	assert.Equal(t, 2, cfg.Chunking.CSVOverlapRows)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding: [not: a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := defaultConfig()
	cfg.Embedding.Provider = "llm_proxy"
	cfg.Query.MaxResults = 9

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llm_proxy", loaded.Embedding.Provider)
	assert.Equal(t, 9, loaded.Query.MaxResults)
	assert.Equal(t, cfg.Embedding.TargetDimension, loaded.Embedding.TargetDimension)
}
