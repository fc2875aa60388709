package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// SyntaxError is raised at tokenize/parse time for malformed expressions.
// It is never raised during evaluation.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string {
	return "syntax error: " + e.Msg
}

// TokenType classifies a rule token.
type TokenType int

const (
	TokenIndicator TokenType = iota // price, SMA, SMA(20), ...
	TokenOperator                   // crosses_above, crosses_below
)

// Token is one classified element of a rule expression.
type Token struct {
	Type TokenType
	Text string
}

// Supported operators.
const (
	OpCrossesAbove = "crosses_above"
	OpCrossesBelow = "crosses_below"
)

// A term is the literal "price" or an indicator name with an optional
// integer period, e.g. SMA(20).
var termPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\([0-9]+\))?$`)

// Tokenize splits an expression on whitespace and classifies each token as
// INDICATOR or OPERATOR. Any other symbol is a syntax error.
func Tokenize(expr string) ([]Token, error) {
	fields := strings.Fields(expr)
	tokens := make([]Token, 0, len(fields))

	for _, f := range fields {
		switch {
		case f == OpCrossesAbove || f == OpCrossesBelow:
			tokens = append(tokens, Token{Type: TokenOperator, Text: f})
		case termPattern.MatchString(f):
			tokens = append(tokens, Token{Type: TokenIndicator, Text: f})
		default:
			return nil, &SyntaxError{Msg: fmt.Sprintf("unexpected symbol %q", f)}
		}
	}
	return tokens, nil
}
