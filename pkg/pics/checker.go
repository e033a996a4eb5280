package pics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned for malformed expressions.
var ErrSyntax = errors.New("pics: syntax error")

// SyntaxError describes a malformed expression.
type SyntaxError struct {
	Expression string
	Token      string
	Message    string
}

func (e *SyntaxError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("pics: %s at %q in %q", e.Message, e.Token, e.Expression)
	}
	return fmt.Sprintf("pics: %s in %q", e.Message, e.Expression)
}

// Unwrap returns ErrSyntax.
func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

const (
	tokenAnd   = "&&"
	tokenOr    = "||"
	tokenNot   = "!"
	tokenOpen  = "("
	tokenClose = ")"
)

// Checker evaluates gating expressions against a table. A nil table
// disables every code.
type Checker struct {
	table *Table
}

// NewChecker creates a checker over t.
func NewChecker(t *Table) *Checker {
	return &Checker{table: t}
}

// Table returns the table the checker evaluates against.
func (c *Checker) Table() *Table {
	return c.table
}

// Check evaluates an expression. An empty expression is always true.
func (c *Checker) Check(expression string) (bool, error) {
	tokens := tokenize(expression)
	if len(tokens) == 0 {
		return true, nil
	}
	ev := &evaluator{expression: expression, tokens: tokens, table: c.table}
	result, err := ev.expr(0)
	if err != nil {
		return false, err
	}
	return result, nil
}

// Validate reports whether an expression is well formed, without
// evaluating it against a table.
func Validate(expression string) error {
	_, err := NewChecker(nil).Check(expression)
	return err
}

// tokenize splits an expression into tokens. Spaces and line breaks are
// dropped. A doubled '&' or '|' ends the current code and becomes an
// operator; a single one is kept inside the code.
func tokenize(expression string) []string {
	var (
		tokens []string
		token  strings.Builder
	)
	flush := func() {
		if token.Len() > 0 {
			tokens = append(tokens, token.String())
			token.Reset()
		}
	}

	for _, r := range expression {
		switch r {
		case ' ', '\n', '\r', '\t':
		case '(', ')', '!':
			flush()
			tokens = append(tokens, string(r))
		case '&', '|':
			cur := token.String()
			if cur != "" && cur[len(cur)-1] == byte(r) {
				token.Reset()
				token.WriteString(cur[:len(cur)-1])
				flush()
				tokens = append(tokens, string(r)+string(r))
			} else {
				token.WriteRune(r)
			}
		default:
			token.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type evaluator struct {
	expression string
	tokens     []string
	pos        int
	table      *Table
}

func (e *evaluator) errorf(token, format string, args ...any) error {
	return &SyntaxError{Expression: e.expression, Token: token, Message: fmt.Sprintf(format, args...)}
}

// expr parses subexpr (('&&' | '||') subexpr)* and stops at a ')' that
// closes an enclosing group. depth is the number of open groups.
func (e *evaluator) expr(depth int) (bool, error) {
	result, err := e.subexpr(depth)
	if err != nil {
		return false, err
	}

	for e.pos < len(e.tokens) {
		op := e.tokens[e.pos]
		switch op {
		case tokenClose:
			if depth == 0 {
				return false, e.errorf(op, "unbalanced parenthesis")
			}
			return result, nil
		case tokenAnd, tokenOr:
			e.pos++
			rhs, err := e.subexpr(depth)
			if err != nil {
				return false, err
			}
			if op == tokenAnd {
				result = result && rhs
			} else {
				result = result || rhs
			}
		default:
			return false, e.errorf(op, "unknown token")
		}
	}
	return result, nil
}

// subexpr parses '(' expr ')' | '!' expr | CODE.
func (e *evaluator) subexpr(depth int) (bool, error) {
	if e.pos >= len(e.tokens) {
		return false, e.errorf("", "unexpected end of expression")
	}
	token := e.tokens[e.pos]
	switch token {
	case tokenOpen:
		e.pos++
		result, err := e.expr(depth + 1)
		if err != nil {
			return false, err
		}
		if e.pos >= len(e.tokens) || e.tokens[e.pos] != tokenClose {
			return false, e.errorf("", "missing \")\"")
		}
		e.pos++
		return result, nil
	case tokenNot:
		e.pos++
		result, err := e.expr(depth)
		if err != nil {
			return false, err
		}
		return !result, nil
	case tokenClose, tokenAnd, tokenOr:
		return false, e.errorf(token, "unexpected operator")
	}

	e.pos++
	enabled, _ := e.table.Lookup(token)
	return enabled, nil
}
