// Package guardrails validates LLM-generated answers against ground-truth
// figures computed from the underlying data, catching hallucinated numbers.
// Findings are data, never errors: callers may trigger one corrective
// re-query or ignore the result.
package guardrails

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"tablerag/internal/domain"
)

// GroundTruth carries the real figures for a dataset. Zero values mean the
// figure is unknown and is not checked.
type GroundTruth struct {
	TotalRecords     int
	TotalColumns     int
	ColumnMeans      map[string]float64
	ClassPercentages map[string]float64
}

// Validator extracts numeric claims from free text and compares them to
// ground truth with per-kind tolerances: exact for counts, 1% relative for
// means, 1 percentage point absolute for class percentages.
type Validator struct {
	log *logrus.Logger
}

const (
	meanRelTolerance   = 0.01
	percentTolerance   = 1.0
	issuePenalty       = 0.2
	minConfidence      = 0.1
	minSaneAnswerChars = 20
)

var (
	recordCountRe = regexp.MustCompile(`(?i)([\d][\d.,]*)\s*(?:records|rows|transactions|registros|linhas|transações)`)
	columnCountRe = regexp.MustCompile(`(?i)([\d][\d.,]*)\s*(?:columns|features|colunas)`)
	meanRe        = regexp.MustCompile(`(?i)(?:mean|average|média|media)[^\d%]*?(?:R\$|US\$|\$|€)?\s*([\d][\d.,]*)`)
	percentRe     = regexp.MustCompile(`([\d][\d.,]*)\s*%`)
	errorTalkRe   = regexp.MustCompile(`(?i)\b(error|exception|traceback|failed to)\b`)
)

func NewValidator(log *logrus.Logger) *Validator {
	if log == nil {
		log = logrus.New()
	}
	return &Validator{log: log}
}

// Validate checks the text against ground truth. A nil ground truth falls
// back to a cheap sanity check on the text alone.
func (v *Validator) Validate(text string, truth *GroundTruth) domain.ValidationResult {
	if truth == nil {
		return v.sanityCheck(text)
	}
	var issues []string
	corrected := map[string]any{}

	if truth.TotalRecords > 0 {
		for _, m := range recordCountRe.FindAllStringSubmatch(text, -1) {
			claim, ok := parseNumber(m[1])
			if !ok {
				continue
			}
			if int(claim) != truth.TotalRecords {
				issues = append(issues, fmt.Sprintf("claimed %d records, dataset has %d", int(claim), truth.TotalRecords))
				corrected["total_records"] = truth.TotalRecords
			}
		}
	}
	if truth.TotalColumns > 0 {
		for _, m := range columnCountRe.FindAllStringSubmatch(text, -1) {
			claim, ok := parseNumber(m[1])
			if !ok {
				continue
			}
			if int(claim) != truth.TotalColumns {
				issues = append(issues, fmt.Sprintf("claimed %d columns, dataset has %d", int(claim), truth.TotalColumns))
				corrected["total_columns"] = truth.TotalColumns
			}
		}
	}
	if len(truth.ColumnMeans) > 0 {
		for _, m := range meanRe.FindAllStringSubmatch(text, -1) {
			claim, ok := parseNumber(m[1])
			if !ok {
				continue
			}
			col, truthMean, found := closestValue(truth.ColumnMeans, claim)
			if !found {
				continue
			}
			if relDiff(claim, truthMean) > meanRelTolerance {
				issues = append(issues, fmt.Sprintf("claimed mean %.2f for %s, actual mean is %.2f", claim, col, truthMean))
				corrected["mean_"+col] = truthMean
			}
		}
	}
	if len(truth.ClassPercentages) > 0 {
		for _, m := range percentRe.FindAllStringSubmatch(text, -1) {
			claim, ok := parseNumber(m[1])
			if !ok {
				continue
			}
			class, truthPct, found := closestValue(truth.ClassPercentages, claim)
			if !found {
				continue
			}
			if math.Abs(claim-truthPct) > percentTolerance {
				issues = append(issues, fmt.Sprintf("claimed %.2f%% for %s, actual is %.2f%%", claim, class, truthPct))
				corrected["percentage_"+class] = truthPct
			}
		}
	}

	if len(issues) > 0 {
		v.log.WithField("issues", len(issues)).Warn("answer failed numeric validation")
	}
	return result(issues, corrected)
}

// CorrectionPrompt renders the wrong-versus-correct block appended to a
// corrective re-query at lower temperature.
func (v *Validator) CorrectionPrompt(res domain.ValidationResult) string {
	if res.IsValid {
		return ""
	}
	var b strings.Builder
	b.WriteString("The previous answer contained incorrect figures.\n\nProblems found:\n")
	for _, issue := range res.Issues {
		b.WriteString("- " + issue + "\n")
	}
	if len(res.CorrectedValues) > 0 {
		b.WriteString("\nUse exactly these values instead:\n")
		for k, val := range res.CorrectedValues {
			b.WriteString(fmt.Sprintf("- %s: %v\n", k, val))
		}
	}
	b.WriteString("\nRewrite the answer with the correct figures.")
	return b.String()
}

func (v *Validator) sanityCheck(text string) domain.ValidationResult {
	var issues []string
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minSaneAnswerChars {
		issues = append(issues, "answer is too short to be useful")
	}
	if errorTalkRe.MatchString(trimmed) {
		issues = append(issues, "answer contains unexplained error language")
	}
	return result(issues, nil)
}

func result(issues []string, corrected map[string]any) domain.ValidationResult {
	confidence := 1.0 - issuePenalty*float64(len(issues))
	// A single minor issue must not zero out an otherwise good answer.
	if confidence < minConfidence {
		confidence = minConfidence
	}
	if len(corrected) == 0 {
		corrected = nil
	}
	return domain.ValidationResult{
		IsValid:         len(issues) == 0,
		Confidence:      confidence,
		Issues:          issues,
		CorrectedValues: corrected,
	}
}

// closestValue picks the ground-truth entry numerically closest to the
// claim, since the surrounding prose rarely names the column in a form that
// can be matched reliably.
func closestValue(truths map[string]float64, claim float64) (string, float64, bool) {
	bestKey := ""
	bestVal := 0.0
	bestDiff := math.Inf(1)
	for k, val := range truths {
		d := math.Abs(val - claim)
		if d < bestDiff {
			bestDiff = d
			bestKey = k
			bestVal = val
		}
	}
	return bestKey, bestVal, bestKey != ""
}

func relDiff(a, b float64) float64 {
	if b == 0 {
		return math.Abs(a)
	}
	return math.Abs(a-b) / math.Abs(b)
}

// parseNumber accepts "284807", "284,807", "88.35" and the pt-BR decimal
// form "88,35".
func parseNumber(s string) (float64, bool) {
	s = strings.Trim(strings.TrimSpace(s), ".,")
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// The separator appearing last is the decimal mark.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		parts := strings.Split(s, ",")
		if len(parts[len(parts)-1]) == 3 {
			s = strings.ReplaceAll(s, ",", "") // thousands grouping
		} else {
			s = strings.Replace(s, ",", ".", 1) // decimal comma
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
