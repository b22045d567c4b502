package chunker

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"tablerag/internal/domain"
)

// Config bounds chunk sizes. ChunkSize/OverlapSize/MinChunkSize are in
// characters and apply to the text strategies; CSVChunkRows/CSVOverlapRows
// apply to the csv_row strategy.
type Config struct {
	ChunkSize      int
	OverlapSize    int
	MinChunkSize   int
	CSVChunkRows   int
	CSVOverlapRows int
}

// Splitter turns raw text into overlapping, bounded chunks with position
// metadata.
type Splitter struct {
	cfg Config
	log *logrus.Logger
}

var (
	sentenceRe  = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
)

func New(cfg Config, log *logrus.Logger) *Splitter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.OverlapSize < 0 {
		cfg.OverlapSize = 0
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = 100
	}
	if cfg.CSVChunkRows <= 0 {
		cfg.CSVChunkRows = 20
	}
	if cfg.CSVOverlapRows < 0 {
		cfg.CSVOverlapRows = 0
	}
	if log == nil {
		log = logrus.New()
	}
	return &Splitter{cfg: cfg, log: log}
}

// Chunk splits text according to the given strategy. Empty input yields no
// chunks; that is logged, not an error.
func (s *Splitter) Chunk(text, sourceID string, strategy domain.ChunkStrategy) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		s.log.WithField("source", sourceID).Warn("empty input, nothing to chunk")
		return nil
	}
	switch strategy {
	case domain.StrategyFixedSize:
		return s.chunkFixed(text, sourceID)
	case domain.StrategySentence:
		return s.chunkUnits(sentenceUnits(text), text, sourceID, domain.StrategySentence)
	case domain.StrategyParagraph:
		return s.chunkUnits(paragraphUnits(text), text, sourceID, domain.StrategyParagraph)
	case domain.StrategyCsvRow:
		return s.chunkCSV(text, sourceID)
	default:
		s.log.WithField("strategy", strategy).Warn("unknown chunk strategy, using fixed size")
		return s.chunkFixed(text, sourceID)
	}
}

func (s *Splitter) chunkFixed(text, sourceID string) []domain.Chunk {
	var chunks []domain.Chunk
	start := 0
	prevEnd := 0
	idx := 0
	for start < len(text) {
		end := start + s.cfg.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			// Extend to the next whitespace so words are not cut mid-token,
			// falling back to the hard boundary for degenerate inputs.
			ws := end
			for ws < len(text) && !isSpace(text[ws]) {
				ws++
			}
			if ws-start >= s.cfg.MinChunkSize {
				end = ws
			}
		}
		content := strings.TrimSpace(text[start:end])
		if content != "" {
			overlap := 0
			if idx > 0 && prevEnd > start {
				overlap = prevEnd - start
			}
			chunks = append(chunks, newChunk(content, sourceID, idx, domain.StrategyFixedSize, start, end, overlap, nil))
			idx++
		}
		prevEnd = end
		if end >= len(text) {
			break
		}
		next := end - s.cfg.OverlapSize
		// Forward-progress guard: overlap >= chunk size must not deadlock.
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

type unit struct {
	text  string
	start int
	end   int
}

func sentenceUnits(text string) []unit {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		trimmed := strings.TrimSpace(text)
		return []unit{{text: trimmed, start: 0, end: len(text)}}
	}
	units := make([]unit, 0, len(locs))
	for _, loc := range locs {
		u := unit{text: strings.TrimSpace(text[loc[0]:loc[1]]), start: loc[0], end: loc[1]}
		if u.text != "" {
			units = append(units, u)
		}
	}
	return units
}

func paragraphUnits(text string) []unit {
	locs := paragraphRe.FindAllStringIndex(text, -1)
	var units []unit
	prev := 0
	flush := func(end int) {
		t := strings.TrimSpace(text[prev:end])
		if t != "" {
			units = append(units, unit{text: t, start: prev, end: end})
		}
	}
	for _, loc := range locs {
		flush(loc[0])
		prev = loc[1]
	}
	flush(len(text))
	return units
}

// chunkUnits accumulates units until adding the next one would exceed the
// chunk size, then flushes and starts a new chunk with the overflowing unit.
func (s *Splitter) chunkUnits(units []unit, text, sourceID string, strategy domain.ChunkStrategy) []domain.Chunk {
	var chunks []domain.Chunk
	var buf []string
	bufStart := 0
	bufEnd := 0
	idx := 0
	flush := func() {
		if len(buf) == 0 {
			return
		}
		sep := " "
		if strategy == domain.StrategyParagraph {
			sep = "\n\n"
		}
		content := strings.Join(buf, sep)
		chunks = append(chunks, newChunk(content, sourceID, idx, strategy, bufStart, bufEnd, 0, nil))
		idx++
		buf = nil
	}
	for _, u := range units {
		pending := len(u.text)
		for _, b := range buf {
			pending += len(b) + 1
		}
		if len(buf) > 0 && pending > s.cfg.ChunkSize {
			flush()
		}
		if len(buf) == 0 {
			bufStart = u.start
		}
		buf = append(buf, u.text)
		bufEnd = u.end
	}
	flush()
	return chunks
}

func (s *Splitter) chunkCSV(text, sourceID string) []domain.Chunk {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 0 {
		return nil
	}
	header := lines[0]
	data := lines[1:]
	if len(data) == 0 {
		s.log.WithField("source", sourceID).Warn("csv has a header but no data rows")
		return nil
	}
	rows := s.cfg.CSVChunkRows
	overlap := s.cfg.CSVOverlapRows
	if overlap >= rows {
		// Clamp so the window always advances.
		overlap = rows - 1
	}
	step := rows - overlap
	columns := strings.Split(header, ",")
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}
	var chunks []domain.Chunk
	idx := 0
	for start := 0; start < len(data); start += step {
		end := start + rows
		if end > len(data) {
			end = len(data)
		}
		window := data[start:end]
		// Re-prepend the header so every chunk parses as standalone CSV.
		content := header + "\n" + strings.Join(window, "\n")
		chunkOverlap := 0
		if idx > 0 {
			chunkOverlap = overlap
		}
		extra := map[string]any{
			"start_row":     start + 1, // 1-based for human auditing
			"end_row":       end,
			"rows_in_chunk": len(window),
			"total_rows":    len(data),
			"columns":       columns,
		}
		chunks = append(chunks, newChunk(content, sourceID, idx, domain.StrategyCsvRow, start, end, chunkOverlap, extra))
		idx++
		if end == len(data) {
			break
		}
	}
	return chunks
}

func newChunk(content, sourceID string, idx int, strategy domain.ChunkStrategy, start, end, overlap int, extra map[string]any) domain.Chunk {
	return domain.Chunk{
		Content:             content,
		SourceID:            sourceID,
		Index:               idx,
		Strategy:            strategy,
		CharCount:           len(content),
		WordCount:           len(strings.Fields(content)),
		StartPos:            start,
		EndPos:              end,
		OverlapWithPrevious: overlap,
		Extra:               extra,
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
