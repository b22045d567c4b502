package engine

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"tablerag/internal/domain"
	"tablerag/internal/guardrails"
)

// enrichTabular prepends a textual preamble naming the columns and row range
// to every CSV chunk. Counts are recomputed since the content changes.
func enrichTabular(chunks []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		preamble := tabularPreamble(c)
		if preamble == "" {
			out[i] = c
			continue
		}
		c.Content = preamble + "\n" + c.Content
		c.CharCount = len(c.Content)
		c.WordCount = len(strings.Fields(c.Content))
		out[i] = c
	}
	return out
}

func tabularPreamble(c domain.Chunk) string {
	startRow, ok1 := asInt(c.Extra["start_row"])
	endRow, ok2 := asInt(c.Extra["end_row"])
	if !ok1 || !ok2 {
		return ""
	}
	cols, _ := c.Extra["columns"].([]string)
	if len(cols) == 0 {
		return fmt.Sprintf("Table rows %d to %d of %s.", startRow, endRow, c.SourceID)
	}
	return fmt.Sprintf("Table rows %d to %d of %s. Columns: %s.", startRow, endRow, c.SourceID, strings.Join(cols, ", "))
}

const maxClassCardinality = 20

// groundTruthFromCSV computes the real figures the guardrails compare
// answers against: record/column counts, means for numeric columns, and
// value percentages for low-cardinality categorical columns.
func groundTruthFromCSV(text string) *guardrails.GroundTruth {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil || len(records) < 2 {
		return nil
	}
	header := records[0]
	data := records[1:]
	truth := &guardrails.GroundTruth{
		TotalRecords:     len(data),
		TotalColumns:     len(header),
		ColumnMeans:      map[string]float64{},
		ClassPercentages: map[string]float64{},
	}
	for col, name := range header {
		var sum float64
		numeric := 0
		counts := map[string]int{}
		total := 0
		for _, row := range data {
			if col >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[col])
			if value == "" {
				continue
			}
			total++
			counts[value]++
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				numeric++
				sum += f
			}
		}
		if total == 0 {
			continue
		}
		if numeric == total {
			truth.ColumnMeans[strings.TrimSpace(name)] = sum / float64(total)
		}
		if len(counts) <= maxClassCardinality {
			for value, n := range counts {
				key := fmt.Sprintf("%s=%s", strings.TrimSpace(name), value)
				truth.ClassPercentages[key] = 100 * float64(n) / float64(total)
			}
		}
	}
	return truth
}
