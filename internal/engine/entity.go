package engine

import (
	"fmt"
	"strings"

	"github.com/tobyward/quill/internal/block"
	"github.com/tobyward/quill/internal/errors"
	"github.com/tobyward/quill/internal/resolve"
	"github.com/tobyward/quill/internal/scanner"
)

// Entity is a runtime instance of a block bound to assigned data. The
// entity tree mirrors the repetition structure of the output: one
// entity per rendered occurrence of a repeatable block, created in the
// order the output should repeat them.
type Entity struct {
	source *Source
	parent *Entity
	block  *block.Block
	id     string

	params   map[string]interface{}
	children map[string][]*Entity
}

func newEntity(source *Source, parent *Entity, blk *block.Block, id string) *Entity {
	return &Entity{
		source:   source,
		parent:   parent,
		block:    blk,
		id:       id,
		params:   make(map[string]interface{}),
		children: make(map[string][]*Entity),
	}
}

// Block returns the compiled block this entity is bound to.
func (e *Entity) Block() *block.Block { return e.block }

// ID returns the caller-supplied identifier, empty for anonymous
// entities.
func (e *Entity) ID() string { return e.id }

// Assign merges parameters into the entity's local scope, the highest
// priority tier of the resolution chain. Existing keys are overwritten.
func (e *Entity) Assign(params map[string]interface{}) {
	for k, v := range params {
		e.params[k] = v
	}
}

// Set assigns one local parameter.
func (e *Entity) Set(key string, value interface{}) {
	e.params[key] = value
}

// NewBlock creates a child entity under a child block name. The name
// must be defined in the bound block; an undefined name is a
// recoverable error signaling a mistake in the calling code, not a
// silent no-op.
//
// When an id is supplied and an entity with that name and id already
// exists, the existing entity is returned instead of a duplicate being
// appended (get-or-create).
func (e *Entity) NewBlock(name string, id ...string) (*Entity, error) {
	target := e.block.Resolve(name)
	if target == nil {
		return nil, errors.NewRenderError("undefined_block",
			fmt.Sprintf("block %q is not defined in %s", name, e.describe()))
	}

	// Entities of a wrapper bind to its inner repeat region; the
	// wrapper decoration itself is never instantiated.
	if target.Kind == block.KindWrapper {
		target = target.Wrapped
	}

	entityID := ""
	if len(id) > 0 {
		entityID = id[0]
	}

	if entityID != "" {
		if existing := e.GetEntity(name, entityID); existing != nil {
			return existing, nil
		}
	}

	child := newEntity(e.source, e, target, entityID)
	e.children[name] = append(e.children[name], child)

	return child, nil
}

// GetEntity looks up an existing child entity by name and id. It
// returns nil when no such entity has been created.
func (e *Entity) GetEntity(name, id string) *Entity {
	for _, child := range e.children[name] {
		if child.id == id {
			return child
		}
	}
	return nil
}

// BlockCount returns the number of runtime entities created under a
// child block name.
func (e *Entity) BlockCount(name string) int {
	return len(e.children[name])
}

// HasBlock reports whether the bound block statically defines a child
// of that name. It is answerable without any NewBlock call.
func (e *Entity) HasBlock(name string) bool {
	return e.block.HasChild(name)
}

// HasEntity reports whether at least one runtime entity exists under
// that child block name.
func (e *Entity) HasEntity(name string) bool {
	return len(e.children[name]) > 0
}

// ResetBlocks discards all child entities created under a name,
// including their subtrees.
func (e *Entity) ResetBlocks(name string) {
	delete(e.children, name)
}

// Resolve looks a dot-path expression up through the four-tier
// parameter chain: this entity's parameters, each ancestor entity's
// parameters walking up, the source parameters, and finally the
// process-wide globals. Path segments after the root identifier
// navigate into the found value; a missing intermediate segment fails
// the whole resolution.
func (e *Entity) Resolve(path string) (interface{}, bool) {
	p, err := resolve.ParsePath(path)
	if err != nil {
		return nil, false
	}

	root, ok := e.lookupRoot(p.Root)
	if !ok {
		return nil, false
	}

	return resolve.Navigate(root, p)
}

func (e *Entity) lookupRoot(name string) (interface{}, bool) {
	for ent := e; ent != nil; ent = ent.parent {
		if v, ok := ent.params[name]; ok {
			return v, true
		}
	}
	if v, ok := e.source.params[name]; ok {
		return v, true
	}
	return e.source.tpl.global(name)
}

// Process renders the entity and its subtree to text in strict document
// order.
func (e *Entity) Process() (string, error) {
	st := newState(e.source.tpl.maxDepth)
	var b strings.Builder
	if err := renderNodes(st, e, e.block.Nodes, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderText parses a template fragment and renders it against this
// entity's scope. Function plugins use this to re-render their enclosed
// content.
func (e *Entity) RenderText(text string) (string, error) {
	st := newState(e.source.tpl.maxDepth)
	return renderText(st, e, text)
}

func renderText(st *state, e *Entity, text string) (string, error) {
	blk, err := scanner.Parse(e.source.name+"#inline", text)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := renderNodes(st, e, blk.Nodes, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *Entity) describe() string {
	if e.block.Name == "" {
		return fmt.Sprintf("the root block of %q", e.source.name)
	}
	return fmt.Sprintf("block %q", e.block.Name)
}
