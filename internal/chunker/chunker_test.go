package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablerag/internal/domain"
)

func testCSV(rows int) string {
	lines := []string{"id,amount,class"}
	for i := 1; i <= rows; i++ {
		lines = append(lines, fmt.Sprintf("%d,%d.50,0", i, i*10))
	}
	return strings.Join(lines, "\n")
}

func TestCSVChunkingWindows(t *testing.T) {
	s := New(Config{CSVChunkRows: 5, CSVOverlapRows: 1}, nil)
	chunks := s.Chunk(testCSV(10), "data.csv", domain.StrategyCsvRow)
	require.Len(t, chunks, 3)

	for _, c := range chunks {
		lines := strings.Split(c.Content, "\n")
		assert.Equal(t, "id,amount,class", lines[0], "every chunk re-prepends the header")
		assert.Equal(t, domain.StrategyCsvRow, c.Strategy)
		assert.Equal(t, len(c.Content), c.CharCount)
	}
	assert.Equal(t, 1, chunks[0].Extra["start_row"])
	assert.Equal(t, 5, chunks[0].Extra["end_row"])
	assert.Equal(t, 5, chunks[1].Extra["start_row"])
	assert.Equal(t, 9, chunks[1].Extra["end_row"])
	assert.Equal(t, 9, chunks[2].Extra["start_row"])
	assert.Equal(t, 10, chunks[2].Extra["end_row"])
	assert.Equal(t, 10, chunks[0].Extra["total_rows"])
	assert.Equal(t, []string{"id", "amount", "class"}, chunks[0].Extra["columns"])

	assert.Equal(t, 0, chunks[0].OverlapWithPrevious)
	assert.Equal(t, 1, chunks[1].OverlapWithPrevious)
}

func TestCSVChunkCountFormula(t *testing.T) {
	cases := []struct {
		rows, size, overlap, want int
	}{
		{10, 5, 1, 3},  // ceil(10/4)
		{10, 5, 0, 2},  // ceil(10/5)
		{7, 3, 1, 4},   // ceil(7/2)
		{100, 20, 2, 6}, // ceil(100/18)
		{3, 5, 1, 1},
	}
	for _, tc := range cases {
		s := New(Config{CSVChunkRows: tc.size, CSVOverlapRows: tc.overlap}, nil)
		chunks := s.Chunk(testCSV(tc.rows), "data.csv", domain.StrategyCsvRow)
		assert.Len(t, chunks, tc.want, "rows=%d size=%d overlap=%d", tc.rows, tc.size, tc.overlap)
	}
}

func TestCSVOverlapClampedToAvoidDeadlock(t *testing.T) {
	s := New(Config{CSVChunkRows: 3, CSVOverlapRows: 10}, nil)
	chunks := s.Chunk(testCSV(9), "data.csv", domain.StrategyCsvRow)
	// overlap clamps to rows-1, so the window still advances
	require.NotEmpty(t, chunks)
	assert.Equal(t, 9, chunks[len(chunks)-1].Extra["end_row"])
}

func TestCSVWithoutDataRows(t *testing.T) {
	s := New(Config{}, nil)
	assert.Nil(t, s.Chunk("id,amount,class", "data.csv", domain.StrategyCsvRow))
}

func TestEmptyInput(t *testing.T) {
	s := New(Config{}, nil)
	assert.Nil(t, s.Chunk("   \n\t ", "empty.txt", domain.StrategyFixedSize))
}

func TestFixedSizeCoversWholeInput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString(fmt.Sprintf("word%d ", i))
	}
	text := strings.TrimSpace(b.String())
	s := New(Config{ChunkSize: 100, OverlapSize: 20, MinChunkSize: 10}, nil)
	chunks := s.Chunk(text, "words.txt", domain.StrategyFixedSize)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].StartPos)
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndPos)
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].StartPos, chunks[i-1].EndPos, "windows must not leave gaps")
		assert.GreaterOrEqual(t, chunks[i].OverlapWithPrevious, 0)
		assert.Less(t, chunks[i].OverlapWithPrevious, 100+21, "overlap bounded by window size")
	}
	// every word of the input appears in some chunk
	for _, w := range strings.Fields(text) {
		found := false
		for _, c := range chunks {
			if strings.Contains(c.Content, w) {
				found = true
				break
			}
		}
		assert.True(t, found, "word %q missing from all chunks", w)
	}
}

func TestFixedSizeShortInputYieldsSingleChunk(t *testing.T) {
	s := New(Config{ChunkSize: 1000, OverlapSize: 200, MinChunkSize: 100}, nil)
	chunks := s.Chunk("tiny input", "tiny.txt", domain.StrategyFixedSize)
	require.Len(t, chunks, 1)
	assert.Equal(t, "tiny input", chunks[0].Content)
	assert.Equal(t, 2, chunks[0].WordCount)
}

func TestFixedSizeOverlapAtLeastChunkSizeTerminates(t *testing.T) {
	text := strings.Repeat("abcde ", 100)
	s := New(Config{ChunkSize: 50, OverlapSize: 50, MinChunkSize: 10}, nil)
	chunks := s.Chunk(text, "loop.txt", domain.StrategyFixedSize)
	assert.NotEmpty(t, chunks)
}

func TestSentenceChunkingReconstructsSentences(t *testing.T) {
	text := "First sentence here. Second one follows! Third asks a question? Fourth closes it."
	s := New(Config{ChunkSize: 50, MinChunkSize: 5}, nil)
	chunks := s.Chunk(text, "prose.txt", domain.StrategySentence)
	require.NotEmpty(t, chunks)

	joined := ""
	for _, c := range chunks {
		assert.Equal(t, domain.StrategySentence, c.Strategy)
		joined += c.Content + " "
	}
	for _, sentence := range []string{"First sentence here.", "Second one follows!", "Third asks a question?"} {
		assert.Contains(t, joined, sentence)
	}
}

func TestSentenceChunkBoundedBySize(t *testing.T) {
	text := strings.Repeat("Short sentence. ", 40)
	s := New(Config{ChunkSize: 80, MinChunkSize: 5}, nil)
	chunks := s.Chunk(text, "prose.txt", domain.StrategySentence)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.CharCount, 80)
	}
}

func TestParagraphChunking(t *testing.T) {
	text := "Alpha block line one.\n\nBeta block line one.\n\nGamma block line one."
	s := New(Config{ChunkSize: 30, MinChunkSize: 5}, nil)
	chunks := s.Chunk(text, "doc.txt", domain.StrategyParagraph)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Alpha block line one.", chunks[0].Content)
	assert.Equal(t, 2, chunks[2].Index)
}

func TestTextWithoutTerminatorBecomesOneSentenceChunk(t *testing.T) {
	s := New(Config{ChunkSize: 100, MinChunkSize: 5}, nil)
	chunks := s.Chunk("no terminal punctuation at all", "raw.txt", domain.StrategySentence)
	require.Len(t, chunks, 1)
	assert.Equal(t, "no terminal punctuation at all", chunks[0].Content)
}
