package engine

import (
	"fmt"
	"strings"

	"tablerag/internal/domain"
)

const analystSystemPrompt = "You are a data analyst assistant. Answer questions about the user's " +
	"datasets using only the provided data fragments. When a figure is not present in the " +
	"fragments, say so instead of guessing."

// buildGroundedPrompt assembles the retrieval-grounded prompt: labeled
// fragments, an interpret-don't-echo instruction, and a chunks-versus-rows
// note whenever the fragments carry a total row count.
func buildGroundedPrompt(query string, matches []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using the data fragments below.\n\n")
	totalRows := 0
	for i, m := range matches {
		b.WriteString(fmt.Sprintf("--- Fragment %d (source: %s, similarity: %.2f) ---\n", i+1, m.Source, m.Similarity))
		b.WriteString(m.Text)
		b.WriteString("\n\n")
		if rows, ok := asInt(m.Metadata["total_rows"]); ok && rows > totalRows {
			totalRows = rows
		}
	}
	b.WriteString("Interpret the fragments semantically and synthesize an answer; do not echo them verbatim.\n")
	if totalRows > 0 {
		// Chunks overlap and each spans several rows; without this note the
		// model conflates "fragments retrieved" with "rows in the dataset".
		b.WriteString(fmt.Sprintf(
			"Note: %d fragments were retrieved, but they are overlapping windows over a table with %d data rows in total. "+
				"When asked about dataset-wide counts, use the row count, never the fragment count.\n",
			len(matches), totalRows))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
