package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Term is one side of a rule: the literal price, or an indicator name with
// an optional period parameter.
type Term struct {
	Name      string // lowercased, e.g. "price", "sma"
	Period    int
	HasPeriod bool
}

// Rule is a compiled crossing-condition expression: TERM OPERATOR TERM.
// Compile once with Parse, evaluate as often as needed.
type Rule struct {
	Expression string
	Left       Term
	Operator   string
	Right      Term
	Tokens     []Token
}

// Parse compiles an expression into a Rule. Expressions with fewer than 3
// tokens fail with "expression too short"; anything that is not exactly
// TERM OPERATOR TERM is a syntax error.
func Parse(expr string) (*Rule, error) {
	tokens, err := Tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(tokens) < 3 {
		return nil, &SyntaxError{Msg: "expression too short"}
	}
	if len(tokens) > 3 {
		return nil, &SyntaxError{Msg: fmt.Sprintf("expected 3 tokens, got %d", len(tokens))}
	}
	if tokens[0].Type != TokenIndicator || tokens[1].Type != TokenOperator || tokens[2].Type != TokenIndicator {
		return nil, &SyntaxError{Msg: "expected TERM OPERATOR TERM"}
	}

	left, err := parseTerm(tokens[0].Text)
	if err != nil {
		return nil, err
	}
	right, err := parseTerm(tokens[2].Text)
	if err != nil {
		return nil, err
	}

	return &Rule{
		Expression: expr,
		Left:       left,
		Operator:   tokens[1].Text,
		Right:      right,
		Tokens:     tokens,
	}, nil
}

func parseTerm(text string) (Term, error) {
	open := strings.IndexByte(text, '(')
	if open < 0 {
		return Term{Name: strings.ToLower(text)}, nil
	}

	name := text[:open]
	arg := strings.TrimSuffix(text[open+1:], ")")
	period, err := strconv.Atoi(arg)
	if err != nil || period <= 0 {
		return Term{}, &SyntaxError{Msg: fmt.Sprintf("invalid period in %q", text)}
	}
	return Term{Name: strings.ToLower(name), Period: period, HasPeriod: true}, nil
}
