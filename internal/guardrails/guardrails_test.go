package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func creditCardTruth() *GroundTruth {
	return &GroundTruth{
		TotalRecords: 284807,
		TotalColumns: 31,
		ColumnMeans: map[string]float64{
			"Amount": 88.35,
		},
		ClassPercentages: map[string]float64{
			"Class=0": 99.83,
			"Class=1": 0.17,
		},
	}
}

func TestValidateFlagsWrongCounts(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate("The dataset has 500,000 registros e 25 colunas.", creditCardTruth())

	assert.False(t, res.IsValid)
	require.Len(t, res.Issues, 2)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.Equal(t, 284807, res.CorrectedValues["total_records"])
	assert.Equal(t, 31, res.CorrectedValues["total_columns"])
}

func TestValidateAcceptsCorrectCounts(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate("There are 284,807 transactions across 31 columns.", creditCardTruth())

	assert.True(t, res.IsValid)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Empty(t, res.Issues)
	assert.Nil(t, res.CorrectedValues)
}

func TestValidateMeanWithinRelativeTolerance(t *testing.T) {
	v := NewValidator(nil)
	// 88.30 is within 1% of the true mean 88.35.
	res := v.Validate("A média de R$ 88.30 por transação é baixa.", creditCardTruth())
	assert.True(t, res.IsValid)
}

func TestValidateMeanOutsideTolerance(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate("The average amount is $100.00 per row.", &GroundTruth{
		ColumnMeans: map[string]float64{"Amount": 88.35},
	})

	assert.False(t, res.IsValid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, 88.35, res.CorrectedValues["mean_Amount"])
}

func TestValidatePercentageTolerance(t *testing.T) {
	v := NewValidator(nil)
	truth := creditCardTruth()

	res := v.Validate("Roughly 0.2% of the data is fraudulent.", truth)
	assert.True(t, res.IsValid, "within one percentage point of 0.17")

	res = v.Validate("Fraud accounts for 5% of the data.", truth)
	assert.False(t, res.IsValid)
	assert.Equal(t, 0.17, res.CorrectedValues["percentage_Class=1"])
}

func TestValidatePortugueseDecimalComma(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate("A média é R$ 88,35 por transação.", creditCardTruth())
	assert.True(t, res.IsValid)
}

func TestValidateNilTruthSanityCheck(t *testing.T) {
	v := NewValidator(nil)

	res := v.Validate("ok", nil)
	assert.False(t, res.IsValid)
	require.Len(t, res.Issues, 1)

	res = v.Validate("The query failed to return any usable rows at all.", nil)
	assert.False(t, res.IsValid, "unexplained error language is flagged")

	res = v.Validate("The dataset describes two days of card transactions.", nil)
	assert.True(t, res.IsValid)
}

func TestConfidenceFloor(t *testing.T) {
	v := NewValidator(nil)
	// Six wrong figures would push confidence negative without the floor.
	text := "10 records, 11 rows, 12 transactions, 13 registros, 14 linhas, 15 records."
	res := v.Validate(text, &GroundTruth{TotalRecords: 284807})
	assert.False(t, res.IsValid)
	assert.Equal(t, 0.1, res.Confidence)
}

func TestCorrectionPrompt(t *testing.T) {
	v := NewValidator(nil)
	res := v.Validate("The dataset has 500,000 registros e 25 colunas.", creditCardTruth())
	prompt := v.CorrectionPrompt(res)

	assert.Contains(t, prompt, "incorrect figures")
	assert.Contains(t, prompt, "claimed 500000 records, dataset has 284807")
	assert.Contains(t, prompt, "total_columns: 31")
	assert.Contains(t, prompt, "Rewrite the answer")

	valid := v.Validate("There are 284,807 transactions.", creditCardTruth())
	assert.Empty(t, v.CorrectionPrompt(valid))
}

func TestParseNumberForms(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"284807", 284807},
		{"284,807", 284807},
		{"500,000", 500000},
		{"88.35", 88.35},
		{"88,35", 88.35},
		{"1.234.567,89", 1234567.89},
		{"1,234,567.89", 1234567.89},
		{"99.", 99},
	}
	for _, tc := range cases {
		got, ok := parseNumber(tc.in)
		require.True(t, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, ok := parseNumber("abc")
	assert.False(t, ok)
}
