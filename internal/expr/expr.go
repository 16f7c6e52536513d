// Package expr evaluates the boolean mini-language used inside @if
// conditions.
//
// A condition is a sequence of terms joined by comma (AND) or pipe (OR).
// Evaluation is strictly left to right with short-circuiting applied as
// each separator is consumed; there is no AND-over-OR precedence. This
// sequential behavior is a deliberate compatibility contract, not an
// optimization: `$a|$b,$c` evaluates `($a or $b) and $c` in reading
// order, never `$a or ($b and $c)`.
//
// A term is an optional leading negation, an operand, and optionally a
// comparison operator with a second operand. Operands are scalar
// literals, quoted strings, or dot-path references resolved through the
// parameter chain. A term without a comparison evaluates the operand's
// truthiness. Parenthesized groups recurse, and a negation before a
// group negates the group's result.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tobyward/quill/internal/resolve"
)

// Resolver supplies values for dot-path operands. A false return means
// the path is unresolved, which is not an error: unresolved operands are
// falsy and compare as the empty string.
type Resolver interface {
	Resolve(path string) (interface{}, bool)
}

// Eval evaluates a condition string against the resolver.
func Eval(input string, r Resolver) (bool, error) {
	p := &parser{src: input, resolver: r}
	result, err := p.sequence(false)
	if err != nil {
		return false, err
	}
	p.ws()
	if p.pos < len(p.src) {
		return false, fmt.Errorf("condition %q: unexpected %q", input, p.src[p.pos:])
	}
	return result, nil
}

type parser struct {
	src      string
	pos      int
	resolver Resolver
}

// sequence parses and evaluates terms separated by , and | until the
// end of input or a closing parenthesis. When skip is true the sequence
// is parsed but never evaluated, which keeps short-circuiting free of
// side effects without losing syntax checking.
func (p *parser) sequence(skip bool) (bool, error) {
	result, err := p.term(skip)
	if err != nil {
		return false, err
	}

	for {
		p.ws()
		if p.pos >= len(p.src) || p.src[p.pos] == ')' {
			return result, nil
		}

		sep := p.src[p.pos]
		if sep != ',' && sep != '|' {
			return false, fmt.Errorf("condition %q: expected , or | at offset %d", p.src, p.pos)
		}
		p.pos++

		// Short-circuit: a false AND operand or a true OR operand
		// decides the rest of the chain up to the next separator.
		skipNext := skip || (sep == ',' && !result) || (sep == '|' && result)
		v, err := p.term(skipNext)
		if err != nil {
			return false, err
		}
		if !skipNext {
			result = v
		}
	}
}

// term parses one negatable term: a parenthesized group or an operand
// with an optional comparison.
func (p *parser) term(skip bool) (bool, error) {
	p.ws()

	negate := false
	for p.pos < len(p.src) && p.src[p.pos] == '!' && !strings.HasPrefix(p.src[p.pos:], "!=") {
		negate = !negate
		p.pos++
		p.ws()
	}

	var result bool

	if p.pos < len(p.src) && p.src[p.pos] == '(' {
		p.pos++
		v, err := p.sequence(skip)
		if err != nil {
			return false, err
		}
		p.ws()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return false, fmt.Errorf("condition %q: missing closing parenthesis", p.src)
		}
		p.pos++
		result = v
	} else {
		v, err := p.comparison(skip)
		if err != nil {
			return false, err
		}
		result = v
	}

	if negate {
		result = !result
	}
	return result, nil
}

// comparison parses operand [op operand].
func (p *parser) comparison(skip bool) (bool, error) {
	left, err := p.operand()
	if err != nil {
		return false, err
	}

	p.ws()
	op := p.operator()
	if op == "" {
		if skip {
			return false, nil
		}
		return resolve.Truthy(left.value(p.resolver)), nil
	}

	p.ws()
	right, err := p.operand()
	if err != nil {
		return false, err
	}
	if skip {
		return false, nil
	}

	return compare(op, left.value(p.resolver), right.value(p.resolver))
}

// operator consumes a comparison operator if one follows.
func (p *parser) operator() string {
	two := []string{"!=", ">=", "<=", "^=", "$=", "*=", "|="}
	rest := p.src[p.pos:]
	for _, op := range two {
		if strings.HasPrefix(rest, op) {
			p.pos += 2
			return op
		}
	}
	if rest != "" {
		switch rest[0] {
		case '=', '>', '<':
			p.pos++
			return rest[:1]
		}
	}
	return ""
}

// operand is a deferred value: paths resolve only when the term is
// actually evaluated.
type operand struct {
	path    string
	literal interface{}
}

func (o operand) value(r Resolver) interface{} {
	if o.path == "" {
		return o.literal
	}
	if v, ok := r.Resolve(o.path); ok {
		return v
	}
	return nil
}

// operand consumes a path reference, quoted string or bare scalar.
func (p *parser) operand() (operand, error) {
	p.ws()
	if p.pos >= len(p.src) {
		return operand{}, fmt.Errorf("condition %q: expected operand", p.src)
	}

	switch c := p.src[p.pos]; {
	case c == '$' && !strings.HasPrefix(p.src[p.pos:], "$="):
		start := p.pos
		p.pos++
		p.consumePath()
		return operand{path: p.src[start:p.pos]}, nil

	case c == '"' || c == '\'':
		s, err := p.quoted(c)
		if err != nil {
			return operand{}, err
		}
		return operand{literal: s}, nil

	default:
		start := p.pos
		for p.pos < len(p.src) && !isStop(p.src[p.pos]) {
			p.pos++
		}
		if p.pos == start {
			return operand{}, fmt.Errorf("condition %q: expected operand at offset %d", p.src, p.pos)
		}
		word := p.src[start:p.pos]
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return operand{literal: f}, nil
		}
		if word == "true" {
			return operand{literal: true}, nil
		}
		if word == "false" {
			return operand{literal: false}, nil
		}
		return operand{literal: word}, nil
	}
}

// consumePath advances past the body of a dot-path reference, including
// bracketed quoted keys and ->method chains.
func (p *parser) consumePath() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '[':
			end := p.bracketEnd()
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos = end + 1
		case strings.HasPrefix(p.src[p.pos:], "->"):
			p.pos += 2
		case isWord(c) || c == '.' || c == ':':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) bracketEnd() int {
	var quote byte
	for i := p.pos + 1; i < len(p.src); i++ {
		c := p.src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

func (p *parser) quoted(quote byte) (string, error) {
	var b strings.Builder
	for i := p.pos + 1; i < len(p.src); i++ {
		c := p.src[i]
		if c == '\\' && i+1 < len(p.src) {
			b.WriteByte(p.src[i+1])
			i++
			continue
		}
		if c == quote {
			p.pos = i + 1
			return b.String(), nil
		}
		b.WriteByte(c)
	}
	return "", fmt.Errorf("condition %q: unterminated string", p.src)
}

func (p *parser) ws() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func isWord(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isStop(c byte) bool {
	switch c {
	case ' ', '\t', ',', '|', ')', '(', '=', '!', '<', '>', '^', '*', '$':
		return true
	}
	return false
}
