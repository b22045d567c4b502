package domain

import "time"

// ChunkStrategy selects how source text is split into chunks.
type ChunkStrategy string

const (
	StrategyFixedSize ChunkStrategy = "fixed_size"
	StrategySentence  ChunkStrategy = "sentence"
	StrategyParagraph ChunkStrategy = "paragraph"
	StrategyCsvRow    ChunkStrategy = "csv_row"
)

// Chunk is a bounded slice of source text with positional metadata, the unit
// of embedding. Immutable once produced by the chunker.
type Chunk struct {
	Content             string         `json:"content"`
	SourceID            string         `json:"source_id"`
	Index               int            `json:"index"`
	Strategy            ChunkStrategy  `json:"strategy"`
	CharCount           int            `json:"char_count"`
	WordCount           int            `json:"word_count"`
	StartPos            int            `json:"start_pos"`
	EndPos              int            `json:"end_pos"`
	OverlapWithPrevious int            `json:"overlap_with_previous"`
	Extra               map[string]any `json:"extra,omitempty"`
}

// EmbeddingResult is the fixed-dimension vector produced for a chunk or a
// query string. Dimensions always equals the configured target dimension;
// RawDimensions preserves the backend's native width for diagnostics.
type EmbeddingResult struct {
	SourceText     string        `json:"source_text"`
	Vector         []float64     `json:"vector"`
	Provider       string        `json:"provider"`
	Model          string        `json:"model"`
	Dimensions     int           `json:"dimensions"`
	RawDimensions  int           `json:"raw_dimensions"`
	ProcessingTime time.Duration `json:"processing_time"`
	Chunk          *Chunk        `json:"chunk,omitempty"`
}

// SearchResult is one ranked fragment returned by a similarity search.
// Similarity is always in [0,1]. Degraded marks results produced by the
// fallback ranking path rather than true vector similarity.
type SearchResult struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Similarity float64        `json:"similarity"`
	Source     string         `json:"source"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Degraded   bool           `json:"degraded,omitempty"`
}

// LLMRequest describes a single chat completion call.
type LLMRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	TopP         float64 `json:"top_p,omitempty"`
	Model        string  `json:"model,omitempty"`
}

// LLMResponse is the immutable outcome of a chat call. Success=false with a
// non-empty Error means every attempted provider failed; the manager never
// returns a Go error for provider failures.
type LLMResponse struct {
	Content        string         `json:"content"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model"`
	Success        bool           `json:"success"`
	Error          string         `json:"error,omitempty"`
	Usage          map[string]int `json:"usage,omitempty"`
	ProcessingTime time.Duration  `json:"processing_time"`
}

// ValidationResult is the outcome of a guardrail pass over generated text.
// Issues are data, never errors; callers may trigger one corrective
// re-query or ignore them.
type ValidationResult struct {
	IsValid         bool           `json:"is_valid"`
	Confidence      float64        `json:"confidence_score"`
	Issues          []string       `json:"issues,omitempty"`
	CorrectedValues map[string]any `json:"corrected_values,omitempty"`
}
