package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EmbeddingConfig selects and configures the embedding backend. Every vector
// produced by any backend is resampled to TargetDimension before use.
type EmbeddingConfig struct {
	Provider        string        `yaml:"provider"`
	TargetDimension int           `yaml:"target_dimension"`
	BatchSize       int           `yaml:"batch_size"`
	Workers         int           `yaml:"workers"`
	Remote          *RemoteConfig `yaml:"remote,omitempty"`
}

// RemoteConfig holds connection details for an OpenAI/Ollama-compatible
// embeddings endpoint.
type RemoteConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ChunkingConfig configures how source text is split into chunks.
type ChunkingConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	OverlapSize    int `yaml:"overlap_size"`
	MinChunkSize   int `yaml:"min_chunk_size"`
	CSVChunkRows   int `yaml:"csv_chunk_rows"`
	CSVOverlapRows int `yaml:"csv_overlap_rows"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Fallback *FallbackConfig `yaml:"fallback,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// FallbackConfig configures the degraded search mode used when the vector
// similarity path is unavailable.
type FallbackConfig struct {
	Heuristic   string `yaml:"heuristic"` // "length" or "none"
	SampleLimit int    `yaml:"sample_limit"`
}

// ProviderConfig holds connection details for one chat LLM vendor.
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMConfig configures the chat provider pool and default sampling.
type LLMConfig struct {
	Preference  []string        `yaml:"preference"`
	Temperature float64         `yaml:"temperature"`
	MaxTokens   int             `yaml:"max_tokens"`
	OpenAI      *ProviderConfig `yaml:"openai,omitempty"`
	Anthropic   *ProviderConfig `yaml:"anthropic,omitempty"`
	Ollama      *ProviderConfig `yaml:"ollama,omitempty"`
}

// QueryConfig holds retrieval defaults.
type QueryConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxResults          int     `yaml:"max_results"`
}

// GuardrailsConfig configures post-answer numeric validation.
type GuardrailsConfig struct {
	Enabled               bool    `yaml:"enabled"`
	CorrectionTemperature float64 `yaml:"correction_temperature"`
	MinConfidence         float64 `yaml:"min_confidence"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Query       QueryConfig       `yaml:"query"`
	Guardrails  GuardrailsConfig  `yaml:"guardrails"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/tablerag/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tablerag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedding:   EmbeddingConfig{Provider: "mock"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		LLM:         LLMConfig{Preference: []string{"openai", "anthropic", "ollama"}},
		Guardrails:  GuardrailsConfig{Enabled: true},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedding.TargetDimension == 0 {
		cfg.Embedding.TargetDimension = 384
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 16
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Embedding.Provider == "remote" && cfg.Embedding.Remote != nil {
		if cfg.Embedding.Remote.BaseURL == "" {
			cfg.Embedding.Remote.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedding.Remote.APIKeyEnv == "" {
			cfg.Embedding.Remote.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedding.Remote.Model == "" {
			cfg.Embedding.Remote.Model = "text-embedding-3-small"
		}
		if cfg.Embedding.Remote.TimeoutSecs == 0 {
			cfg.Embedding.Remote.TimeoutSecs = 30
		}
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.OverlapSize == 0 {
		cfg.Chunking.OverlapSize = 200
	}
	if cfg.Chunking.MinChunkSize == 0 {
		cfg.Chunking.MinChunkSize = 100
	}
	if cfg.Chunking.CSVChunkRows == 0 {
		cfg.Chunking.CSVChunkRows = 20
	}
	if cfg.Chunking.CSVOverlapRows == 0 {
		cfg.Chunking.CSVOverlapRows = 2
	}
	if cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
			cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "tablerag"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
		if cfg.VectorStore.Qdrant.BatchSize == 0 {
			cfg.VectorStore.Qdrant.BatchSize = 50
		}
	}
	if cfg.VectorStore.Fallback == nil {
		cfg.VectorStore.Fallback = &FallbackConfig{}
	}
	if cfg.VectorStore.Fallback.Heuristic == "" {
		cfg.VectorStore.Fallback.Heuristic = "length"
	}
	if cfg.VectorStore.Fallback.SampleLimit == 0 {
		cfg.VectorStore.Fallback.SampleLimit = 200
	}
	if len(cfg.LLM.Preference) == 0 {
		cfg.LLM.Preference = []string{"openai", "anthropic", "ollama"}
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.Query.SimilarityThreshold == 0 {
		cfg.Query.SimilarityThreshold = 0.7
	}
	if cfg.Query.MaxResults == 0 {
		cfg.Query.MaxResults = 5
	}
	if cfg.Guardrails.CorrectionTemperature == 0 {
		cfg.Guardrails.CorrectionTemperature = 0.1
	}
	if cfg.Guardrails.MinConfidence == 0 {
		cfg.Guardrails.MinConfidence = 0.6
	}
}
