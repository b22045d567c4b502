// Package engine drives the two pipelines of the system: ingestion
// (chunk → enrich → embed → store) and retrieval-augmented answering
// (embed → search → prompt → chat → validate). Top-level calls never let an
// error escape; results carry a structured Error field instead.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tablerag/internal/domain"
	"tablerag/internal/guardrails"
	"tablerag/internal/vectorstore"
)

// Options holds retrieval and generation defaults.
type Options struct {
	DefaultThreshold      float64
	DefaultMaxResults     int
	Temperature           float64
	MaxTokens             int
	GuardrailsEnabled     bool
	CorrectionTemperature float64
}

// Engine wires the chunker, embedder, store and chat manager together.
type Engine struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     vectorstore.Store
	chat      domain.ChatClient
	validator *guardrails.Validator
	truths    map[string]*guardrails.GroundTruth
	opts      Options
	log       *logrus.Logger
}

func New(chunker domain.Chunker, embedder domain.Embedder, store vectorstore.Store, chat domain.ChatClient, validator *guardrails.Validator, opts Options, log *logrus.Logger) *Engine {
	if opts.DefaultThreshold == 0 {
		opts.DefaultThreshold = 0.7
	}
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = 5
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.CorrectionTemperature == 0 {
		opts.CorrectionTemperature = 0.1
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		chat:      chat,
		validator: validator,
		truths:    make(map[string]*guardrails.GroundTruth),
		opts:      opts,
		log:       log,
	}
}

// ChunkStats summarizes the chunks of one ingestion.
type ChunkStats struct {
	Strategy string  `json:"strategy"`
	AvgChars float64 `json:"avg_chars"`
	AvgWords float64 `json:"avg_words"`
}

// EmbeddingStats summarizes the embeddings of one ingestion.
type EmbeddingStats struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Dimensions  int     `json:"dimensions"`
	AvgTimeSecs float64 `json:"avg_time_secs"`
}

// IngestResult is the structured outcome of an ingestion call.
type IngestResult struct {
	Content             string         `json:"content"`
	Error               string         `json:"error,omitempty"`
	SourceID            string         `json:"source_id"`
	ChunksCreated       int            `json:"chunks_created"`
	EmbeddingsGenerated int            `json:"embeddings_generated"`
	EmbeddingsStored    int            `json:"embeddings_stored"`
	SuccessRate         float64        `json:"success_rate"`
	ProcessingTime      time.Duration  `json:"processing_time"`
	ChunkStats          ChunkStats     `json:"chunk_stats"`
	EmbeddingStats      EmbeddingStats `json:"embedding_stats"`
}

// Ingest runs chunk → enrich → embed → store for one source. Any stage
// yielding zero items short-circuits with a structured error; later stages
// are not attempted.
func (e *Engine) Ingest(ctx context.Context, text, sourceID, sourceType string, strategy domain.ChunkStrategy) IngestResult {
	start := time.Now()
	res := IngestResult{SourceID: sourceID}
	defer func() { res.ProcessingTime = time.Since(start) }()

	chunks := e.chunker.Chunk(text, sourceID, strategy)
	if len(chunks) == 0 {
		res.Error = "no chunks produced from input"
		return res
	}
	if strategy == domain.StrategyCsvRow {
		// Raw comma-separated rows carry almost no semantic signal on their
		// own; the preamble gives the embedding and the eventual LLM column
		// names and row ranges to hold on to.
		chunks = enrichTabular(chunks)
		if truth := groundTruthFromCSV(text); truth != nil {
			e.truths[sourceID] = truth
		}
	}
	res.ChunksCreated = len(chunks)
	res.ChunkStats = chunkStats(chunks, strategy)

	embeddings, err := e.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		res.Error = fmt.Sprintf("embedding failed: %s", err.Error())
		return res
	}
	if len(embeddings) == 0 {
		res.Error = "no embeddings generated"
		return res
	}
	res.EmbeddingsGenerated = len(embeddings)
	res.EmbeddingStats = embeddingStats(embeddings)

	ids, err := e.store.Store(ctx, embeddings, sourceType)
	if err != nil {
		res.Error = fmt.Sprintf("vector store rejected batch: %s", err.Error())
		return res
	}
	res.EmbeddingsStored = len(ids)
	res.SuccessRate = float64(res.EmbeddingsStored) / float64(res.ChunksCreated)
	res.Content = fmt.Sprintf("Ingested %s: %d chunks, %d embeddings stored (%.0f%% success).",
		sourceID, res.ChunksCreated, res.EmbeddingsStored, res.SuccessRate*100)
	e.log.WithFields(logrus.Fields{
		"source": sourceID,
		"chunks": res.ChunksCreated,
		"stored": res.EmbeddingsStored,
	}).Info("ingestion complete")
	return res
}

// QueryOptions bounds one Answer call. Zero values fall back to the engine
// defaults. IncludeContext=false skips the LLM and returns raw matches.
type QueryOptions struct {
	Threshold      float64
	MaxResults     int
	IncludeContext bool
	Filters        map[string]any
}

// SourceStat aggregates similarity per source in a result set.
type SourceStat struct {
	Count         int     `json:"count"`
	AvgSimilarity float64 `json:"avg_similarity"`
	MaxSimilarity float64 `json:"max_similarity"`
}

// AnswerResult is the structured outcome of a query call.
type AnswerResult struct {
	Content        string                   `json:"content"`
	Error          string                   `json:"error,omitempty"`
	Query          string                   `json:"query"`
	ProcessingTime time.Duration            `json:"processing_time"`
	ResultCount    int                      `json:"search_results_count"`
	Sources        []string                 `json:"sources_found"`
	SourceStats    map[string]SourceStat    `json:"source_stats,omitempty"`
	Threshold      float64                  `json:"similarity_threshold"`
	Degraded       bool                     `json:"degraded,omitempty"`
	Provider       string                   `json:"provider,omitempty"`
	Model          string                   `json:"model,omitempty"`
	Validation     *domain.ValidationResult `json:"validation,omitempty"`
}

// Answer runs embed → search → prompt → chat for one query.
func (e *Engine) Answer(ctx context.Context, query string, opts QueryOptions) AnswerResult {
	start := time.Now()
	if opts.Threshold == 0 {
		opts.Threshold = e.opts.DefaultThreshold
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = e.opts.DefaultMaxResults
	}
	res := AnswerResult{Query: query, Threshold: opts.Threshold}
	defer func() { res.ProcessingTime = time.Since(start) }()

	queryEmb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		res.Error = fmt.Sprintf("query embedding failed: %s", err.Error())
		return res
	}
	matches, err := e.store.Search(ctx, queryEmb.Vector, vectorstore.SearchOptions{
		Threshold: opts.Threshold,
		Limit:     opts.MaxResults,
		Filters:   opts.Filters,
	})
	if err != nil {
		res.Error = fmt.Sprintf("search failed: %s", err.Error())
		return res
	}
	res.ResultCount = len(matches)
	res.Sources, res.SourceStats = sourceStats(matches)
	for _, m := range matches {
		if m.Degraded {
			res.Degraded = true
			break
		}
	}
	if len(matches) == 0 {
		res.Content = "No relevant data found for this query. Try lowering the similarity threshold or ingesting more sources."
		return res
	}
	if !opts.IncludeContext {
		res.Content = formatMatches(matches)
		return res
	}

	prompt := buildGroundedPrompt(query, matches)
	req := &domain.LLMRequest{
		Prompt:       prompt,
		SystemPrompt: analystSystemPrompt,
		Temperature:  e.opts.Temperature,
		MaxTokens:    e.opts.MaxTokens,
	}
	resp := e.chat.Chat(ctx, req)
	if !resp.Success {
		res.Error = fmt.Sprintf("all chat providers failed: %s", resp.Error)
		return res
	}
	res.Provider = resp.Provider
	res.Model = resp.Model
	res.Content = resp.Content

	if e.opts.GuardrailsEnabled && e.validator != nil {
		res = e.validateAndCorrect(ctx, res, prompt, matches)
	}
	return res
}

// validateAndCorrect runs the guardrail pass and, on failure, exactly one
// corrective re-query at reduced temperature.
func (e *Engine) validateAndCorrect(ctx context.Context, res AnswerResult, prompt string, matches []domain.SearchResult) AnswerResult {
	truth := e.truthFor(matches)
	validation := e.validator.Validate(res.Content, truth)
	res.Validation = &validation
	if validation.IsValid {
		return res
	}
	e.log.WithField("issues", validation.Issues).Warn("answer failed validation, re-querying with corrections")
	correction := e.validator.CorrectionPrompt(validation)
	resp := e.chat.Chat(ctx, &domain.LLMRequest{
		Prompt:       prompt + "\n\n" + correction,
		SystemPrompt: analystSystemPrompt,
		Temperature:  e.opts.CorrectionTemperature,
		MaxTokens:    e.opts.MaxTokens,
	})
	if !resp.Success {
		// Keep the original answer; the validation result still flags it.
		return res
	}
	res.Content = resp.Content
	res.Provider = resp.Provider
	res.Model = resp.Model
	revalidation := e.validator.Validate(resp.Content, truth)
	res.Validation = &revalidation
	return res
}

// ClearSource deletes every stored vector belonging to a source.
func (e *Engine) ClearSource(ctx context.Context, sourceID string) (int, error) {
	delete(e.truths, sourceID)
	return e.store.DeleteBySource(ctx, sourceID)
}

// Stats reports store aggregates, optionally scoped to one source.
func (e *Engine) Stats(ctx context.Context, sourceID string) (*vectorstore.Stats, error) {
	return e.store.Stats(ctx, sourceID)
}

// truthFor picks the ground truth of the best-matching source, when known.
func (e *Engine) truthFor(matches []domain.SearchResult) *guardrails.GroundTruth {
	for _, m := range matches {
		if truth, ok := e.truths[m.Source]; ok {
			return truth
		}
	}
	return nil
}

func chunkStats(chunks []domain.Chunk, strategy domain.ChunkStrategy) ChunkStats {
	stats := ChunkStats{Strategy: string(strategy)}
	if len(chunks) == 0 {
		return stats
	}
	var chars, words int
	for _, c := range chunks {
		chars += c.CharCount
		words += c.WordCount
	}
	stats.AvgChars = float64(chars) / float64(len(chunks))
	stats.AvgWords = float64(words) / float64(len(chunks))
	return stats
}

func embeddingStats(embeddings []domain.EmbeddingResult) EmbeddingStats {
	stats := EmbeddingStats{
		Provider:   embeddings[0].Provider,
		Model:      embeddings[0].Model,
		Dimensions: embeddings[0].Dimensions,
	}
	var total time.Duration
	for _, e := range embeddings {
		total += e.ProcessingTime
	}
	stats.AvgTimeSecs = total.Seconds() / float64(len(embeddings))
	return stats
}

func sourceStats(matches []domain.SearchResult) ([]string, map[string]SourceStat) {
	if len(matches) == 0 {
		return nil, nil
	}
	stats := make(map[string]SourceStat)
	var sources []string
	sums := make(map[string]float64)
	for _, m := range matches {
		s, seen := stats[m.Source]
		if !seen {
			sources = append(sources, m.Source)
		}
		s.Count++
		sums[m.Source] += m.Similarity
		if m.Similarity > s.MaxSimilarity {
			s.MaxSimilarity = m.Similarity
		}
		stats[m.Source] = s
	}
	for src, s := range stats {
		s.AvgSimilarity = sums[src] / float64(s.Count)
		stats[src] = s
	}
	return sources, stats
}

func formatMatches(matches []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Found %d matching fragments:\n", len(matches)))
	for i, m := range matches {
		b.WriteString(fmt.Sprintf("\n[%d] source=%s chunk=%d similarity=%.3f", i+1, m.Source, m.ChunkIndex, m.Similarity))
		if m.Degraded {
			b.WriteString(" (degraded ranking)")
		}
		b.WriteString("\n")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}
