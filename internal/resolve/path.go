// Package resolve implements the dot-path addressing grammar used in
// tag value positions and the navigation of parsed paths through maps,
// slices and struct-backed values.
//
// A path has the form
//
//	$root(.identifier | .["quoted key"] | .index)* (->method(:arg)*)*
//
// where index may be negative to address from the end of a list, and
// method calls are applied left-to-right to the value found by the
// segment walk. Parsing only tokenizes the grammar; which scope the
// root identifier resolves in is the engine's concern.
package resolve

import (
	"fmt"
	"strings"
)

// SegmentKind distinguishes key access from index access.
type SegmentKind int

const (
	// SegKey addresses a map key, struct field or object property.
	SegKey SegmentKind = iota
	// SegIndex addresses a list element, negative values counting
	// from the end.
	SegIndex
)

// Segment is one step of a dot path after the root identifier.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// Call is one chained ->method:arg accessor.
type Call struct {
	Name string
	Args []string
}

// Path is a parsed dot-path expression.
type Path struct {
	// Raw is the original expression text, kept for error messages.
	Raw string
	// Root is the identifier resolved through the parameter chain.
	Root string
	// Segments navigate into the value found at the root.
	Segments []Segment
	// Calls are accessor method invocations applied after the walk.
	Calls []Call
}

// ParsePath tokenizes a $-prefixed dot-path expression.
func ParsePath(expr string) (*Path, error) {
	if !strings.HasPrefix(expr, "$") {
		return nil, fmt.Errorf("path %q does not start with $", expr)
	}

	p := &Path{Raw: expr}
	s := expr[1:]

	root, rest, err := ident(s)
	if err != nil {
		return nil, fmt.Errorf("path %q: %w", expr, err)
	}
	p.Root = root
	s = rest

	for strings.HasPrefix(s, ".") {
		s = s[1:]
		switch {
		case strings.HasPrefix(s, `["`) || strings.HasPrefix(s, `['`):
			quote := s[1]
			end := strings.IndexByte(s[2:], quote)
			if end < 0 || end+3 >= len(s) || s[end+3] != ']' {
				return nil, fmt.Errorf("path %q: unterminated quoted key", expr)
			}
			p.Segments = append(p.Segments, Segment{Kind: SegKey, Key: s[2 : 2+end]})
			s = s[end+4:]
		case isIndexStart(s):
			n, rest := number(s)
			p.Segments = append(p.Segments, Segment{Kind: SegIndex, Index: n})
			s = rest
		default:
			key, rest, err := ident(s)
			if err != nil {
				return nil, fmt.Errorf("path %q: %w", expr, err)
			}
			p.Segments = append(p.Segments, Segment{Kind: SegKey, Key: key})
			s = rest
		}
	}

	for strings.HasPrefix(s, "->") {
		s = s[2:]
		name, rest, err := ident(s)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", expr, err)
		}
		call := Call{Name: name}
		s = rest
		for strings.HasPrefix(s, ":") {
			arg, rest := callArg(s[1:])
			call.Args = append(call.Args, arg)
			s = rest
		}
		p.Calls = append(p.Calls, call)
	}

	if s != "" {
		return nil, fmt.Errorf("path %q: unexpected %q", expr, s)
	}

	return p, nil
}

// ident consumes an identifier: a letter or underscore followed by word
// characters or hyphens.
func ident(s string) (string, string, error) {
	if s == "" {
		return "", "", fmt.Errorf("expected identifier")
	}
	c := s[0]
	if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return "", "", fmt.Errorf("expected identifier, found %q", s)
	}

	i := 1
	for i < len(s) && isWord(s[i]) {
		// A hyphen opening an ->accessor chain is not part of the name.
		if s[i] == '-' && i+1 < len(s) && s[i+1] == '>' {
			break
		}
		i++
	}
	return s[:i], s[i:], nil
}

func isWord(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isIndexStart(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		return len(s) > 1 && s[1] >= '0' && s[1] <= '9'
	}
	return s[0] >= '0' && s[0] <= '9'
}

// number consumes an optionally negative integer literal.
func number(s string) (int, string) {
	neg := false
	i := 0
	if s[0] == '-' {
		neg = true
		i = 1
	}
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if neg {
		n = -n
	}
	return n, s[i:]
}

// callArg consumes one colon-delimited accessor argument, which may be
// quoted to include colons or arrow sequences.
func callArg(s string) (string, string) {
	if s != "" && (s[0] == '"' || s[0] == '\'') {
		quote := s[0]
		for i := 1; i < len(s); i++ {
			if s[i] == '\\' {
				i++
				continue
			}
			if s[i] == quote {
				return unescape(s[1:i]), s[i+1:]
			}
		}
		return s[1:], ""
	}

	i := 0
	for i < len(s) {
		if s[i] == ':' || strings.HasPrefix(s[i:], "->") {
			break
		}
		i++
	}
	return s[:i], s[i:]
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
