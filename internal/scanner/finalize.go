package scanner

import (
	"fmt"
	"strings"

	"github.com/tobyward/quill/internal/block"
	"github.com/tobyward/quill/internal/errors"
)

// finalize binds USE markers to their TEMPLATE targets once the whole
// file has been parsed. Targets are searched among the using block's
// children and then up the ancestor chain, so a template may be defined
// after its use site. An unresolved target fails the parse.
func finalize(name string, root *block.Block) error {
	return finalizeBlock(name, root)
}

func finalizeBlock(name string, b *block.Block) error {
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Type != block.NodeUse {
			continue
		}

		target := b.FindTemplate(n.RawParams)
		if target == nil {
			return errors.NewParseError("undefined_use_target",
				fmt.Sprintf("USE %s does not name a TEMPLATE block", n.RawParams)).
				WithLocation(name, n.Line, n.Column)
		}
		n.Block = target

		// Register the alias so that the used template's content is
		// addressable as a child block from application code.
		if existing, ok := b.Children[n.Tag]; ok && existing != target {
			return errors.NewParseError("duplicate_block",
				fmt.Sprintf("USE alias %q collides with block %q", n.Tag, n.Tag)).
				WithLocation(name, n.Line, n.Column)
		}
		b.Children[n.Tag] = target
	}

	for _, child := range b.Children {
		// Recursion entries point back at an ancestor; descending into
		// them would loop forever.
		if child == b || isAncestor(child, b) {
			continue
		}
		if child.Parent == b {
			if err := finalizeBlock(name, child); err != nil {
				return err
			}
		}
	}

	return nil
}

func isAncestor(candidate, of *block.Block) bool {
	for blk := of.Parent; blk != nil; blk = blk.Parent {
		if blk == candidate {
			return true
		}
	}
	return false
}

// SplitElse splits raw enclosed @if content into its true and false
// branches at the first unescaped {@else} belonging to this level.
// Tags inside nested {@if ... {/if} spans are skipped with the same
// depth counting captureBody uses, and a literal dot immediately before
// the tag escapes it. The second return reports whether a split
// occurred.
func SplitElse(body string) (trueBranch, falseBranch string, found bool) {
	const (
		openIf  = "{@if"
		closeIf = "{/if}"
	)

	depth := 0
	for i := 0; i < len(body); {
		rest := body[i:]
		switch {
		case strings.HasPrefix(rest, openIf) && boundaryAfter(body, i+len(openIf)):
			depth++
			i += len(openIf)
		case strings.HasPrefix(rest, closeIf):
			if depth > 0 {
				depth--
			}
			i += len(closeIf)
		case strings.HasPrefix(rest, elseTag):
			if depth == 0 && !(i > 0 && body[i-1] == '.') {
				return body[:i], body[i+len(elseTag):], true
			}
			i += len(elseTag)
		default:
			i++
		}
	}
	return body, "", false
}
