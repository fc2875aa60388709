package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_signal_engine/services/bars"
)

func TestTokenizeClassifiesTerms(t *testing.T) {
	tokens, err := Tokenize("price crosses_above SMA(20)")
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	assert.Equal(t, TokenIndicator, tokens[0].Type)
	assert.Equal(t, TokenOperator, tokens[1].Type)
	assert.Equal(t, TokenIndicator, tokens[2].Type)
	assert.Equal(t, "SMA(20)", tokens[2].Text)
}

func TestTokenizeRejectsUnknownSymbols(t *testing.T) {
	_, err := Tokenize("price @ SMA(20)")
	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	assert.Contains(t, syntaxErr.Error(), "unexpected symbol")
}

func TestParseValidExpression(t *testing.T) {
	rule, err := Parse("price crosses_above SMA(20)")
	require.NoError(t, err)

	assert.Equal(t, "price", rule.Left.Name)
	assert.False(t, rule.Left.HasPeriod)
	assert.Equal(t, OpCrossesAbove, rule.Operator)
	assert.Equal(t, "sma", rule.Right.Name)
	assert.True(t, rule.Right.HasPeriod)
	assert.Equal(t, 20, rule.Right.Period)
}

func TestParseTooShort(t *testing.T) {
	for _, expr := range []string{"", "SMA", "price crosses_above"} {
		_, err := Parse(expr)
		var syntaxErr *SyntaxError
		require.True(t, errors.As(err, &syntaxErr), "expr %q", expr)
		assert.Contains(t, syntaxErr.Error(), "expression too short", "expr %q", expr)
	}
}

func TestParseTooLong(t *testing.T) {
	_, err := Parse("price crosses_above SMA(20) extra")
	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	assert.Contains(t, syntaxErr.Error(), "expected 3 tokens")
}

func TestParseWrongShape(t *testing.T) {
	_, err := Parse("crosses_above price SMA(20)")
	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
}

func TestParseInvalidPeriod(t *testing.T) {
	_, err := Parse("price crosses_above SMA(0)")
	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	assert.Contains(t, syntaxErr.Error(), "invalid period")
}

func seriesWithCloses(closes []float64) []bars.Bar {
	date := time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC)
	series := make([]bars.Bar, 0, len(closes))
	for i, c := range closes {
		series = append(series, bars.Bar{
			Symbol: "VNM",
			Date:   date.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
			Source: bars.SourceArchive,
		})
	}
	return series
}

func TestEvaluatePriceCrossesAboveSMA(t *testing.T) {
	// Flat series holds the SMA(3) near 10; the final bar jumps through it.
	closes := []float64{10, 10, 10, 9, 14}
	rule, err := Parse("price crosses_above SMA(3)")
	require.NoError(t, err)

	assert.True(t, Evaluate(rule, seriesWithCloses(closes)))

	// Without the jump there is no cross.
	assert.False(t, Evaluate(rule, seriesWithCloses([]float64{10, 10, 10, 9, 9})))
}

func TestEvaluateCrossesBelow(t *testing.T) {
	closes := []float64{10, 10, 10, 11, 5}
	rule, err := Parse("price crosses_below SMA(3)")
	require.NoError(t, err)
	assert.True(t, Evaluate(rule, seriesWithCloses(closes)))
}

func TestEvaluateIsTotal(t *testing.T) {
	series := seriesWithCloses([]float64{10, 11, 12})

	// Unknown indicator name: false, not an error.
	rule, err := Parse("price crosses_above vwap")
	require.NoError(t, err)
	assert.False(t, Evaluate(rule, series))

	// Window larger than the series: everything undefined, still false.
	rule, err = Parse("price crosses_above SMA(50)")
	require.NoError(t, err)
	assert.False(t, Evaluate(rule, series))

	// Degenerate inputs.
	assert.False(t, Evaluate(rule, nil))
	assert.False(t, Evaluate(nil, series))
}

func TestEvaluateStringSwallowsParseErrors(t *testing.T) {
	series := seriesWithCloses([]float64{10, 11, 12})
	assert.False(t, EvaluateString("not a @ rule", series))
	assert.False(t, EvaluateString("SMA", series))
}

func TestEvaluateDefaultPeriods(t *testing.T) {
	// 30 bars so SMA default 20 is defined at the tail.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 10
	}
	closes[29] = 20

	assert.True(t, EvaluateString("price crosses_above sma", seriesWithCloses(closes)))
}
