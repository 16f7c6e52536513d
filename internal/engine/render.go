package engine

import (
	"fmt"
	"strings"

	"github.com/tobyward/quill/internal/block"
	"github.com/tobyward/quill/internal/errors"
	"github.com/tobyward/quill/internal/expr"
	"github.com/tobyward/quill/internal/plugins"
	"github.com/tobyward/quill/internal/resolve"
	"github.com/tobyward/quill/internal/scanner"
)

// state tracks one render invocation. Depth counts nested block,
// recursion, include and template-call renders against the configured
// bound.
type state struct {
	depth    int
	maxDepth int
}

func newState(maxDepth int) *state {
	return &state{maxDepth: maxDepth}
}

func (st *state) enter(what string, line int) error {
	st.depth++
	if st.depth > st.maxDepth {
		return errors.NewRenderError("depth_exceeded", "maximum render depth exceeded").
			WithFragment(fmt.Sprintf("%s at line %d", what, line))
	}
	return nil
}

func (st *state) leave() {
	st.depth--
}

// renderNodes assembles output for a node sequence against an entity,
// in strict document order.
func renderNodes(st *state, e *Entity, nodes []block.Node, b *strings.Builder) error {
	for i := range nodes {
		n := &nodes[i]
		switch n.Type {
		case block.NodeText:
			b.WriteString(n.Text)

		case block.NodeVar:
			if err := renderVar(e, n, b); err != nil {
				return err
			}

		case block.NodeFunc:
			if err := renderFunc(st, e, n, b); err != nil {
				return err
			}

		case block.NodeBlock:
			if err := renderBlockRef(st, e, n, b); err != nil {
				return err
			}

		case block.NodeUse:
			if err := renderUse(st, e, n, b); err != nil {
				return err
			}

		case block.NodeInclude:
			if err := renderInclude(st, e, n, b); err != nil {
				return err
			}

		case block.NodeRecursion:
			if err := renderRecursion(st, e, n, b); err != nil {
				return err
			}
		}
	}

	return nil
}

// renderBlockRef renders a child block reference: wrappers render their
// decoration once if any entity exists, repeatable blocks render once
// per entity in creation order, and zero entities produce zero output.
func renderBlockRef(st *state, e *Entity, n *block.Node, b *strings.Builder) error {
	if n.Block.Kind == block.KindWrapper {
		if !e.HasEntity(n.Tag) {
			return nil
		}
		if err := st.enter("wrapper "+n.Tag, n.Line); err != nil {
			return err
		}
		defer st.leave()
		// The wrapper's own nodes render with the current entity; the
		// inner repeat region re-enters this function as a standard
		// block reference.
		return renderNodes(st, e, n.Block.Nodes, b)
	}

	for _, child := range e.children[n.Tag] {
		if err := st.enter("block "+n.Tag, n.Line); err != nil {
			return err
		}
		if err := renderNodes(st, child, child.block.Nodes, b); err != nil {
			st.leave()
			return err
		}
		st.leave()
	}

	return nil
}

// renderUse renders a USE marker. When entities have been created under
// the alias they render in creation order, each seeing the current
// scope through its ancestor chain; otherwise the target template
// renders once inline against the current entity.
func renderUse(st *state, e *Entity, n *block.Node, b *strings.Builder) error {
	if err := st.enter("use "+n.Tag, n.Line); err != nil {
		return err
	}
	defer st.leave()

	if e.HasEntity(n.Tag) {
		for _, child := range e.children[n.Tag] {
			if err := renderNodes(st, child, child.block.Nodes, b); err != nil {
				return err
			}
		}
		return nil
	}

	return renderNodes(st, e, n.Block.Nodes, b)
}

// renderRecursion re-enters the matching ancestor block's render over
// the current entity's same-named children.
func renderRecursion(st *state, e *Entity, n *block.Node, b *strings.Builder) error {
	for _, child := range e.children[n.Tag] {
		if err := st.enter("recursion "+n.Tag, n.Line); err != nil {
			return err
		}
		if err := renderNodes(st, child, n.Block.Nodes, b); err != nil {
			st.leave()
			return err
		}
		st.leave()
	}

	return nil
}

// renderInclude loads the included file through the engine's loader and
// renders it with an independent root entity seeded with no inherited
// assignments. Only the process-global tier is visible inside.
func renderInclude(st *state, e *Entity, n *block.Node, b *strings.Builder) error {
	if err := st.enter("include "+n.Tag, n.Line); err != nil {
		return err
	}
	defer st.leave()

	tpl := e.source.tpl
	blk, path, err := tpl.loadBlock(n.Tag, e.source.path)
	if err != nil {
		return errors.NewRenderError("include_failed",
			fmt.Sprintf("cannot include %q", n.Tag)).
			WithLocation(e.source.name, n.Line, n.Column).
			WithCause(err)
	}

	included := tpl.newSource(n.Tag, path, blk)
	return renderNodes(st, included.root, blk.Nodes, b)
}

// renderVar evaluates a variable tag: resolve the path, apply the
// modifier chain left to right, and append the stringified result. A
// quoted pipe segment is the default fallback used when resolution
// fails; with neither value nor fallback the tag renders as empty
// without error.
func renderVar(e *Entity, n *block.Node, b *strings.Builder) error {
	segments := splitPipes(n.Tag)
	if len(segments) == 0 || !strings.HasPrefix(segments[0], "$") {
		return errors.NewRenderError("malformed_var",
			fmt.Sprintf("variable tag {%s} has no path", n.Tag)).
			WithLocation(e.source.name, n.Line, n.Column)
	}

	value, found := e.Resolve(segments[0])

	for _, seg := range segments[1:] {
		if len(seg) > 0 && (seg[0] == '"' || seg[0] == '\'') {
			if !found {
				value = unquote(seg)
				found = true
			}
			continue
		}

		// Modifiers only apply once a value exists; a missing value
		// with a later default still picks the default up unmodified
		// by the segments before it.
		if !found {
			continue
		}

		name, args := splitModifier(seg)
		mod, ok := e.source.tpl.registry.Modifier(name)
		if !ok {
			return errors.NewPluginError("unknown_modifier",
				plugins.Describe("modifier", name)+" is not registered").
				WithLocation(e.source.name, n.Line, n.Column)
		}

		next, err := mod.Apply(value, args)
		if err != nil {
			return errors.NewRenderError("modifier_failed",
				fmt.Sprintf("modifier %q failed", name)).
				WithLocation(e.source.name, n.Line, n.Column).
				WithCause(err)
		}
		value = next
	}

	if !found {
		return nil
	}

	b.WriteString(resolve.Stringify(value))
	return nil
}

// renderFunc dispatches a function tag. The if tag and template calls
// are handled natively; everything else goes to the plugin registry. A
// missing function plugin is a render error, since silently dropping
// the tag's content has no sensible meaning.
func renderFunc(st *state, e *Entity, n *block.Node, b *strings.Builder) error {
	switch {
	case n.Tag == "else":
		// Split marker, meaningful only inside @if content.
		return nil

	case n.Tag == "if":
		return renderIf(st, e, n, b)
	}

	if name, ok := templateCallName(n.Tag); ok {
		return renderTemplateCall(st, e, n, name, b)
	}

	fn, ok := e.source.tpl.registry.Function(n.Tag)
	if !ok {
		return errors.NewPluginError("unknown_function",
			plugins.Describe("function", n.Tag)+" is not registered").
			WithLocation(e.source.name, n.Line, n.Column)
	}

	named, positional := parseParams(n.RawParams, e)
	call := &plugins.Call{
		Scope:      &boundScope{entity: e, st: st},
		Params:     named,
		Positional: positional,
		Body:       n.Body,
		Enclosing:  n.Enclosing,
	}

	out, err := fn.Render(call)
	if err != nil {
		return errors.NewRenderError("function_failed",
			fmt.Sprintf("function @%s failed", n.Tag)).
			WithLocation(e.source.name, n.Line, n.Column).
			WithCause(err)
	}

	b.WriteString(out)
	return nil
}

// renderIf evaluates the condition and renders the selected branch.
func renderIf(st *state, e *Entity, n *block.Node, b *strings.Builder) error {
	ok, err := expr.Eval(n.RawParams, e)
	if err != nil {
		return errors.NewRenderError("bad_condition", "cannot evaluate @if condition").
			WithLocation(e.source.name, n.Line, n.Column).
			WithCause(err)
	}

	trueBranch, falseBranch, _ := scanner.SplitElse(n.Body)
	branch := trueBranch
	if !ok {
		branch = falseBranch
	}
	if branch == "" {
		return nil
	}

	out, err := renderText(st, e, branch)
	if err != nil {
		return err
	}
	b.WriteString(out)
	return nil
}

// renderTemplateCall renders {@template:Name ...}: a fresh entity is
// created for the registered template block, caller-supplied parameters
// are assigned to it, and it renders rooted at the source scope. Unlike
// USE, the caller's entity parameters are not visible inside.
func renderTemplateCall(st *state, e *Entity, n *block.Node, name string, b *strings.Builder) error {
	if err := st.enter("template "+name, n.Line); err != nil {
		return err
	}
	defer st.leave()

	blk, ok := e.source.tpl.globalTemplate(name)
	if !ok {
		return errors.NewRenderError("unknown_template",
			fmt.Sprintf("template %q is not registered", name)).
			WithLocation(e.source.name, n.Line, n.Column)
	}

	named, _ := parseParams(n.RawParams, e)
	fresh := newEntity(e.source, nil, blk, "")
	fresh.Assign(named)

	return renderNodes(st, fresh, blk.Nodes, b)
}

// boundScope exposes an entity to function plugins while keeping the
// active render state, so plugin-driven re-rendering counts against the
// same depth bound.
type boundScope struct {
	entity *Entity
	st     *state
}

func (s *boundScope) Resolve(path string) (interface{}, bool) {
	return s.entity.Resolve(path)
}

func (s *boundScope) RenderText(text string) (string, error) {
	if err := s.st.enter("fragment", 0); err != nil {
		return "", err
	}
	defer s.st.leave()
	return renderText(s.st, s.entity, text)
}

func (s *boundScope) Assign(params map[string]interface{}) {
	s.entity.Assign(params)
}
