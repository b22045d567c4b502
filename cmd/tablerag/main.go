package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tablerag/internal/chunker"
	"tablerag/internal/config"
	"tablerag/internal/domain"
	"tablerag/internal/embedding"
	"tablerag/internal/embedding/hash"
	"tablerag/internal/embedding/llmproxy"
	"tablerag/internal/embedding/remote"
	"tablerag/internal/engine"
	"tablerag/internal/guardrails"
	"tablerag/internal/llm"
	"tablerag/internal/llm/anthropic"
	"tablerag/internal/llm/ollama"
	"tablerag/internal/llm/openai"
	"tablerag/internal/tui"
	"tablerag/internal/vectorstore"
	"tablerag/internal/vectorstore/memory"
	"tablerag/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var verbose bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/tablerag/config.yaml if not provided)")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: tablerag [--config=config.yaml] data.csv [notes.txt ...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Chat providers in preference order.
	var providers []llm.ChatProvider
	for _, name := range cfg.LLM.Preference {
		switch name {
		case "openai":
			pc := cfg.LLM.OpenAI
			if pc == nil {
				pc = &config.ProviderConfig{}
			}
			providers = append(providers, openai.NewClient(openai.Config{
				BaseURL:   pc.BaseURL,
				APIKeyEnv: pc.APIKeyEnv,
				Model:     pc.Model,
				Timeout:   time.Duration(pc.TimeoutSecs) * time.Second,
			}))
		case "anthropic":
			pc := cfg.LLM.Anthropic
			if pc == nil {
				pc = &config.ProviderConfig{}
			}
			providers = append(providers, anthropic.NewClient(anthropic.Config{
				BaseURL:   pc.BaseURL,
				APIKeyEnv: pc.APIKeyEnv,
				Model:     pc.Model,
				Timeout:   time.Duration(pc.TimeoutSecs) * time.Second,
			}))
		case "ollama":
			pc := cfg.LLM.Ollama
			if pc == nil {
				pc = &config.ProviderConfig{}
			}
			providers = append(providers, ollama.NewClient(ollama.Config{
				BaseURL: pc.BaseURL,
				Model:   pc.Model,
				Timeout: time.Duration(pc.TimeoutSecs) * time.Second,
			}))
		default:
			log.Fatalf("unknown chat provider in preference list: %s", name)
		}
	}
	manager, err := llm.NewManager(providers, logger)
	if err != nil {
		log.Fatalf("chat provider init failed: %v", err)
	}

	// Embedding backend factory; workers each build their own instance.
	var factory embedding.Factory
	switch cfg.Embedding.Provider {
	case "mock", "":
		factory = func() (embedding.Backend, error) {
			return hash.New(0), nil
		}
	case "remote":
		if cfg.Embedding.Remote == nil {
			log.Fatalf("remote embedder config missing")
		}
		rc := *cfg.Embedding.Remote
		factory = func() (embedding.Backend, error) {
			return remote.NewClient(remote.Config{
				BaseURL:   rc.BaseURL,
				APIKeyEnv: rc.APIKeyEnv,
				Model:     rc.Model,
				Timeout:   time.Duration(rc.TimeoutSecs) * time.Second,
			})
		}
	case "llm_proxy":
		factory = func() (embedding.Backend, error) {
			return llmproxy.New(manager, 0)
		}
	default:
		log.Fatalf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
	embedder, err := embedding.NewGenerator(factory, embedding.Config{
		TargetDimension: cfg.Embedding.TargetDimension,
		BatchSize:       cfg.Embedding.BatchSize,
		Workers:         cfg.Embedding.Workers,
	}, logger)
	if err != nil {
		log.Fatalf("embedder init failed: %v", err)
	}

	ctx := context.Background()
	var store vectorstore.Store
	switch cfg.VectorStore.Type {
	case "memory", "":
		store = memory.NewStorage(cfg.Embedding.TargetDimension)
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			log.Fatalf("qdrant config missing")
		}
		qc := cfg.VectorStore.Qdrant
		qs := qdrant.NewStorage(qdrant.Config{
			URL:         qc.URL,
			APIKey:      os.Getenv(qc.APIKeyEnv),
			Collection:  qc.Collection,
			Timeout:     time.Duration(qc.TimeoutSecs) * time.Second,
			BatchSize:   qc.BatchSize,
			Heuristic:   cfg.VectorStore.Fallback.Heuristic,
			SampleLimit: cfg.VectorStore.Fallback.SampleLimit,
		}, logger)
		if err := qs.Init(ctx, cfg.Embedding.TargetDimension); err != nil {
			log.Fatalf("qdrant init failed: %v", err)
		}
		store = qs
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	splitter := chunker.New(chunker.Config{
		ChunkSize:      cfg.Chunking.ChunkSize,
		OverlapSize:    cfg.Chunking.OverlapSize,
		MinChunkSize:   cfg.Chunking.MinChunkSize,
		CSVChunkRows:   cfg.Chunking.CSVChunkRows,
		CSVOverlapRows: cfg.Chunking.CSVOverlapRows,
	}, logger)

	validator := guardrails.NewValidator(logger)
	eng := engine.New(splitter, embedder, store, manager, validator, engine.Options{
		DefaultThreshold:      cfg.Query.SimilarityThreshold,
		DefaultMaxResults:     cfg.Query.MaxResults,
		Temperature:           cfg.LLM.Temperature,
		MaxTokens:             cfg.LLM.MaxTokens,
		GuardrailsEnabled:     cfg.Guardrails.Enabled,
		CorrectionTemperature: cfg.Guardrails.CorrectionTemperature,
	}, logger)

	var banner []string
	for _, path := range inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("failed to read %s: %v", path, err)
		}
		sourceID := filepath.Base(path)
		strategy := domain.StrategySentence
		sourceType := "text"
		if strings.HasSuffix(strings.ToLower(path), ".csv") {
			strategy = domain.StrategyCsvRow
			sourceType = "csv"
		}
		res := eng.Ingest(ctx, string(data), sourceID, sourceType, strategy)
		if res.Error != "" {
			log.Fatalf("ingest of %s failed: %s", path, res.Error)
		}
		banner = append(banner, res.Content)
	}

	m := tui.New(eng, strings.Join(banner, " "))
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
