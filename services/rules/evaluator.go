package rules

import (
	"go_signal_engine/services/analysis"
	"go_signal_engine/services/bars"
)

// Default periods used when a term carries no explicit parameter.
const (
	defaultMAPeriod       = 20
	defaultRSIPeriod      = 14
	defaultDonchianPeriod = 20
)

// Evaluate resolves both terms to indicator series over the bar window and
// asks the cross detector for a boolean. Evaluation is total: unknown
// indicator names and insufficient underlying data both report false, they
// never raise. Malformed expressions are a parse-time concern.
func Evaluate(rule *Rule, series []bars.Bar) bool {
	if rule == nil || len(series) == 0 {
		return false
	}

	left := resolve(rule.Left, series)
	right := resolve(rule.Right, series)
	if left == nil || right == nil {
		return false
	}

	switch rule.Operator {
	case OpCrossesAbove:
		return analysis.CrossesAbove(left, right)
	case OpCrossesBelow:
		return analysis.CrossesBelow(left, right)
	}
	return false
}

// EvaluateString parses and evaluates in one step, resolving parse errors to
// false so the hot evaluation path stays exception-free. Callers that need
// the syntax error should Parse first.
func EvaluateString(expr string, series []bars.Bar) bool {
	rule, err := Parse(expr)
	if err != nil {
		return false
	}
	return Evaluate(rule, series)
}

// resolve maps a term to its computed series, or nil when the name is not a
// known indicator.
func resolve(term Term, series []bars.Bar) []float64 {
	closes := make([]float64, len(series))
	highs := make([]float64, len(series))
	lows := make([]float64, len(series))
	for i, b := range series {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	switch term.Name {
	case "price", "close":
		return closes
	case "sma":
		return analysis.SMA(closes, periodOr(term, defaultMAPeriod))
	case "ema":
		return analysis.EMA(closes, periodOr(term, defaultMAPeriod))
	case "rsi":
		return analysis.RSI(closes, periodOr(term, defaultRSIPeriod))
	case "donchian_high":
		upper, _ := analysis.Donchian(highs, lows, periodOr(term, defaultDonchianPeriod))
		return upper
	case "donchian_low":
		_, lower := analysis.Donchian(highs, lows, periodOr(term, defaultDonchianPeriod))
		return lower
	case "high":
		return analysis.RollingMax(highs, periodOr(term, analysis.YearPeriod))
	case "low":
		return analysis.RollingMin(lows, periodOr(term, analysis.YearPeriod))
	}
	return nil
}

func periodOr(term Term, fallback int) int {
	if term.HasPeriod {
		return term.Period
	}
	return fallback
}
