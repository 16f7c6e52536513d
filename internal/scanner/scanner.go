// Package scanner tokenizes raw template text and compiles it into a
// block tree.
//
// The scanner recognizes variable tags ({$path|modifier|"default"}),
// function tags ({@name param=value} with optional enclosed content up
// to a matching {/name}), comment tags ({# ... #} and the prompt variant
// {#! ... #}), and HTML-comment block markers (START/END, WRAPPER,
// TEMPLATE, USE, INCLUDE, RECURSION). Literal text is preserved
// verbatim. Directive parameters are kept as raw text in the compiled
// tree and parsed at render time, since parameter values may depend on
// runtime-assigned data.
//
// Nesting discipline is enforced during the scan: block markers must
// balance, a recursion marker must name an enclosing block, and USE
// markers must resolve to a TEMPLATE block defined somewhere in the
// file. Any violation aborts the parse with a TemplateError carrying
// the offending fragment and its position; a broken template never
// yields a partial block tree.
package scanner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tobyward/quill/internal/block"
	"github.com/tobyward/quill/internal/errors"
)

var (
	markerRe = regexp.MustCompile(`^<!--\s*(START|END|WRAPPER|TEMPLATE|INCLUDE|RECURSION)\s+BLOCK:\s*(\S+)\s*-->`)
	useRe    = regexp.MustCompile(`^<!--\s*USE\s+(\S+)\s+BLOCK:\s*(\S+)\s*-->`)
	funcRe   = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_:.-]*`)
)

// Parse compiles raw template text into a block tree. The name is used
// in error messages only.
func Parse(name, text string) (*block.Block, error) {
	s := &scanner{
		name: name,
		src:  text,
		line: 1,
		col:  1,
	}

	root := block.New(block.KindRoot, "", nil)
	if err := s.scanInto(root); err != nil {
		return nil, err
	}
	if err := finalize(name, root); err != nil {
		return nil, err
	}

	return root, nil
}

// scanner walks the source text once, tracking line and column.
type scanner struct {
	name string
	src  string
	pos  int
	line int
	col  int
}

// scanInto parses the whole source into root, maintaining the open-block
// chain through cur.
func (s *scanner) scanInto(root *block.Block) error {
	cur := root
	var lit strings.Builder
	litLine, litCol := s.line, s.col

	flush := func() {
		if lit.Len() > 0 {
			cur.Nodes = append(cur.Nodes, block.Node{
				Type:   block.NodeText,
				Text:   lit.String(),
				Line:   litLine,
				Column: litCol,
			})
			lit.Reset()
		}
		litLine, litCol = s.line, s.col
	}

	for s.pos < len(s.src) {
		rest := s.src[s.pos:]

		switch {
		case strings.HasPrefix(rest, "<!--"):
			if m := markerRe.FindStringSubmatch(rest); m != nil {
				flush()
				next, err := s.marker(cur, m[1], m[2], len(m[0]))
				if err != nil {
					return err
				}
				cur = next
				flush() // reset literal position after the marker
				continue
			}
			if m := useRe.FindStringSubmatch(rest); m != nil {
				flush()
				line, col := s.line, s.col
				cur.Nodes = append(cur.Nodes, block.Node{
					Type:      block.NodeUse,
					Tag:       m[2], // alias
					RawParams: m[1], // USE target, bound in finalize
					Line:      line,
					Column:    col,
				})
				s.advance(len(m[0]))
				continue
			}
			// A plain HTML comment passes through as literal text.
			lit.WriteString("<!--")
			s.advance(4)

		case strings.HasPrefix(rest, "{$"):
			flush()
			if err := s.varTag(cur); err != nil {
				return err
			}
			flush()

		case strings.HasPrefix(rest, "{@"):
			flush()
			if err := s.funcTag(cur); err != nil {
				return err
			}
			flush()

		case strings.HasPrefix(rest, "{#"):
			flush()
			if err := s.comment(cur); err != nil {
				return err
			}
			flush()

		case strings.HasPrefix(rest, "{/"):
			end := strings.IndexByte(rest, '}')
			frag := rest
			if end >= 0 {
				frag = rest[:end+1]
			}
			return errors.NewParseError("stray_close", "closing tag without a matching open tag").
				WithLocation(s.name, s.line, s.col).
				WithFragment(frag)

		default:
			r := rest[0]
			lit.WriteByte(r)
			s.advance(1)
		}
	}

	flush()

	if cur != root {
		return errors.NewParseError("unclosed_block",
			fmt.Sprintf("block %q is never closed", cur.Name)).
			WithLocation(s.name, cur.Line, cur.Column)
	}

	return nil
}

// marker handles a matched block marker and returns the block that
// subsequent content belongs to.
func (s *scanner) marker(cur *block.Block, keyword, name string, length int) (*block.Block, error) {
	line, col := s.line, s.col
	s.advance(length)

	switch keyword {
	case "START", "WRAPPER", "TEMPLATE":
		if cur.HasChild(name) {
			return nil, errors.NewParseError("duplicate_block",
				fmt.Sprintf("block %q is already defined in this scope", name)).
				WithLocation(s.name, line, col)
		}

		kind := block.KindStandard
		if keyword == "WRAPPER" {
			kind = block.KindWrapper
		} else if keyword == "TEMPLATE" {
			kind = block.KindTemplate
		}

		child := block.New(kind, name, cur)
		child.Line, child.Column = line, col
		cur.Children[name] = child

		if kind == block.KindWrapper && cur.Kind == block.KindWrapper && cur.Name == name {
			return nil, errors.NewParseError("nested_wrapper",
				fmt.Sprintf("wrapper %q cannot wrap itself", name)).
				WithLocation(s.name, line, col)
		}

		switch {
		case kind == block.KindTemplate:
			// TEMPLATE blocks never render in document flow, so no
			// node is emitted at the definition site.
		case cur.Kind == block.KindWrapper && cur.Name == name && kind == block.KindStandard:
			// The repeat region inside a same-named wrapper.
			cur.Wrapped = child
			cur.Nodes = append(cur.Nodes, block.Node{
				Type: block.NodeBlock, Tag: name, Block: child, Line: line, Column: col,
			})
		default:
			cur.Nodes = append(cur.Nodes, block.Node{
				Type: block.NodeBlock, Tag: name, Block: child, Line: line, Column: col,
			})
		}

		return child, nil

	case "END":
		if cur.Parent == nil {
			return nil, errors.NewParseError("stray_end",
				fmt.Sprintf("END BLOCK: %s has no matching open block", name)).
				WithLocation(s.name, line, col)
		}
		if cur.Name != name {
			return nil, errors.NewParseError("block_mismatch",
				fmt.Sprintf("END BLOCK: %s closes block %q", name, cur.Name)).
				WithLocation(s.name, line, col)
		}
		if cur.Kind == block.KindWrapper && cur.Wrapped == nil {
			return nil, errors.NewParseError("wrapper_empty",
				fmt.Sprintf("wrapper %q has no inner repeat region", name)).
				WithLocation(s.name, cur.Line, cur.Column)
		}
		return cur.Parent, nil

	case "INCLUDE":
		cur.Nodes = append(cur.Nodes, block.Node{
			Type: block.NodeInclude, Tag: name, Line: line, Column: col,
		})
		return cur, nil

	case "RECURSION":
		target := cur.FindAncestor(name)
		if target == nil {
			return nil, errors.NewParseError("invalid_recursion",
				fmt.Sprintf("recursion target %q is not an enclosing block", name)).
				WithLocation(s.name, line, col)
		}
		if _, ok := cur.Children[name]; !ok {
			cur.Children[name] = target
		}
		cur.Nodes = append(cur.Nodes, block.Node{
			Type: block.NodeRecursion, Tag: name, Block: target, Line: line, Column: col,
		})
		return cur, nil
	}

	return cur, nil
}

// varTag parses {$...} into a NodeVar carrying the raw expression.
func (s *scanner) varTag(cur *block.Block) error {
	line, col := s.line, s.col
	end := s.tagEnd(s.pos + 1)
	if end < 0 {
		return errors.NewParseError("unterminated_tag", "variable tag is never closed").
			WithLocation(s.name, line, col).
			WithFragment(s.src[s.pos:])
	}

	raw := strings.TrimSpace(s.src[s.pos+1 : end])
	cur.Nodes = append(cur.Nodes, block.Node{
		Type: block.NodeVar, Tag: raw, Line: line, Column: col,
	})
	s.advance(end + 1 - s.pos)

	return nil
}

const (
	elseTag    = "{@else}"
	elseEscape = "."
)

// funcTag parses {@name params} and, for enclosing tags, captures the
// raw body up to the matching {/name}.
func (s *scanner) funcTag(cur *block.Block) error {
	line, col := s.line, s.col
	nameStart := s.pos + 2
	name := funcRe.FindString(s.src[nameStart:])
	if name == "" {
		return errors.NewParseError("malformed_tag", "function tag has no name").
			WithLocation(s.name, line, col).
			WithFragment(firstLine(s.src[s.pos:]))
	}

	end := s.tagEnd(nameStart + len(name))
	if end < 0 {
		return errors.NewParseError("unterminated_tag",
			fmt.Sprintf("function tag @%s is never closed", name)).
			WithLocation(s.name, line, col).
			WithFragment(firstLine(s.src[s.pos:]))
	}

	params := strings.TrimSpace(s.src[nameStart+len(name) : end])
	s.advance(end + 1 - s.pos)

	if name == "else" {
		// A literal dot immediately before {@else} escapes it: the
		// tag is emitted as plain text and the dot is dropped. The
		// preceding literal has already been flushed, so patch it.
		if len(cur.Nodes) > 0 {
			last := &cur.Nodes[len(cur.Nodes)-1]
			if last.Type == block.NodeText && strings.HasSuffix(last.Text, elseEscape) {
				last.Text = strings.TrimSuffix(last.Text, elseEscape) + elseTag
				return nil
			}
		}
		cur.Nodes = append(cur.Nodes, block.Node{
			Type: block.NodeFunc, Tag: "else", Line: line, Column: col,
		})
		return nil
	}

	node := block.Node{
		Type: block.NodeFunc, Tag: name, RawParams: params, Line: line, Column: col,
	}

	// Look ahead for a matching close tag. Tags without one are
	// standalone, except @if which always encloses its branches.
	body, after, found := captureBody(s.src[s.pos:], name)
	if found {
		node.Body = body
		node.Enclosing = true
		s.advance(after)
	} else if name == "if" {
		return errors.NewParseError("unterminated_if", "@if has no matching {/if}").
			WithLocation(s.name, line, col).
			WithFragment(firstLine(s.src[s.pos:]))
	}

	cur.Nodes = append(cur.Nodes, node)

	return nil
}

// comment parses {# ... #}, stripping it from output. The {#! variant is
// recorded on the enclosing block for documentation tooling.
func (s *scanner) comment(cur *block.Block) error {
	line, col := s.line, s.col
	end := strings.Index(s.src[s.pos:], "#}")
	if end < 0 {
		return errors.NewParseError("unterminated_comment", "comment is never closed").
			WithLocation(s.name, line, col).
			WithFragment(firstLine(s.src[s.pos:]))
	}

	inner := s.src[s.pos+2 : s.pos+end]
	if strings.HasPrefix(inner, "!") {
		cur.PromptComments = append(cur.PromptComments, strings.TrimSpace(inner[1:]))
	}
	s.advance(end + 2)

	return nil
}

// tagEnd finds the closing brace of a tag starting after from, skipping
// quoted regions. Returns -1 when the tag is unterminated.
func (s *scanner) tagEnd(from int) int {
	var quote byte
	for i := from; i < len(s.src); i++ {
		c := s.src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '}':
			return i
		case c == '\n':
			// Tags never span lines.
			return -1
		}
	}
	return -1
}

// advance moves the cursor n bytes forward, tracking line and column.
func (s *scanner) advance(n int) {
	for i := 0; i < n && s.pos < len(s.src); i++ {
		if s.src[s.pos] == '\n' {
			s.line++
			s.col = 1
		} else {
			s.col++
		}
		s.pos++
	}
}

// captureBody scans src for the close tag matching name, counting nested
// same-named open tags. It returns the raw body, the byte offset just
// past the close tag, and whether a close tag was found.
func captureBody(src, name string) (body string, after int, found bool) {
	open := "{@" + name
	klose := "{/" + name + "}"
	depth := 1
	i := 0

	for i < len(src) {
		oi := strings.Index(src[i:], open)
		ci := strings.Index(src[i:], klose)
		if ci < 0 {
			return "", 0, false
		}
		if oi >= 0 && oi < ci && boundaryAfter(src, i+oi+len(open)) {
			depth++
			i += oi + len(open)
			continue
		}
		depth--
		if depth == 0 {
			return src[:i+ci], i + ci + len(klose), true
		}
		i += ci + len(klose)
	}

	return "", 0, false
}

// boundaryAfter reports whether the character at pos terminates a tag
// name, so that {@item} does not count as an opening of {@it}.
func boundaryAfter(src string, pos int) bool {
	if pos >= len(src) {
		return true
	}
	c := src[pos]
	return c == ' ' || c == '\t' || c == '}' || c == ':'
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
