// Package block defines the compiled representation of a parsed template
// file: an immutable tree of Blocks, each holding an ordered node
// sequence of literal text runs and directive tags. Blocks are built once
// by the scanner when a file is first parsed, cached for the process
// lifetime, and never mutated afterwards, so a single Block tree is safe
// for concurrent read-only reuse across renders.
package block

// Kind identifies the rendering semantics of a block.
type Kind int

const (
	// KindRoot is the implicit block covering a whole template file.
	KindRoot Kind = iota
	// KindStandard is a repeatable START/END block: it renders once
	// per runtime entity created under its name, in creation order.
	KindStandard
	// KindWrapper renders its static decoration exactly once if at
	// least one entity exists for the wrapped name, and nothing at all
	// otherwise.
	KindWrapper
	// KindTemplate never renders in normal document flow; it is only
	// reachable through a USE marker or a template call tag.
	KindTemplate
)

// String returns the marker keyword for the kind.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "ROOT"
	case KindStandard:
		return "BLOCK"
	case KindWrapper:
		return "WRAPPER"
	case KindTemplate:
		return "TEMPLATE"
	default:
		return "UNKNOWN"
	}
}

// NodeType identifies the kind of a single node in a block's sequence.
type NodeType int

const (
	// NodeText is a verbatim literal text run.
	NodeText NodeType = iota
	// NodeVar is a variable tag: a dot path with an optional modifier
	// chain and default fallback. The raw expression is kept unparsed
	// and evaluated at render time.
	NodeVar
	// NodeFunc is a function tag dispatched to a plugin (or handled
	// natively for if/else and template calls). Enclosing tags keep
	// their enclosed content as raw text for the plugin to re-parse.
	NodeFunc
	// NodeBlock references a child block; rendering iterates the
	// runtime entities created under the child's name.
	NodeBlock
	// NodeUse renders a TEMPLATE block inline, sharing the current
	// entity's scope. The target is resolved after the whole file has
	// been parsed, since templates may be defined after their use site.
	NodeUse
	// NodeInclude loads and renders another template file with an
	// independent root entity. Only the path is stored; file loading
	// happens at render time through the engine's loader.
	NodeInclude
	// NodeRecursion re-enters an ancestor block's render over the
	// current entity's same-named children.
	NodeRecursion
)

// Node is one element of a block's ordered node sequence.
type Node struct {
	// Type discriminates the remaining fields.
	Type NodeType
	// Text holds literal content for NodeText.
	Text string
	// Tag holds the function name for NodeFunc, the raw variable
	// expression (without braces) for NodeVar, the USE alias for
	// NodeUse, the include path for NodeInclude and the target block
	// name for NodeRecursion.
	Tag string
	// RawParams holds the unparsed parameter text of a function tag.
	// Parameter values may reference runtime data, so parsing is
	// deferred to render time.
	RawParams string
	// Body holds the raw enclosed text of an enclosing function tag.
	Body string
	// Enclosing distinguishes an enclosing tag with an empty body from
	// a standalone tag.
	Enclosing bool
	// Block points at the referenced child block for NodeBlock, the
	// resolved target for NodeUse, and the matching ancestor for
	// NodeRecursion (resolved by name when the file parse completes).
	Block *Block
	// Line and Column locate the node in the source file.
	Line   int
	Column int
}

// Block is an immutable compiled template fragment.
type Block struct {
	// Kind selects the rendering semantics.
	Kind Kind
	// Name is the block identifier, unique within its parent scope.
	// Empty for the root block.
	Name string
	// Nodes is the ordered literal/tag sequence.
	Nodes []Node
	// Children maps child block names to their definitions. A block
	// exclusively owns its children; the map is built at parse time
	// and never mutated afterwards.
	Children map[string]*Block
	// Parent is the enclosing block, nil for the root. Non-owning.
	Parent *Block
	// Wrapped is the inner repeat region of a wrapper block, nil for
	// all other kinds.
	Wrapped *Block
	// PromptComments collects {#! ... #} comments found directly in
	// this block. They are always stripped from rendered output but
	// kept available for documentation tooling.
	PromptComments []string
	// Line and Column locate the opening marker in the source file.
	Line   int
	Column int
}

// New creates an empty block of the given kind under parent.
func New(kind Kind, name string, parent *Block) *Block {
	return &Block{
		Kind:     kind,
		Name:     name,
		Parent:   parent,
		Children: make(map[string]*Block),
	}
}

// Resolve looks up a direct child block by name. It returns nil if the
// name is not defined in this block.
func (b *Block) Resolve(name string) *Block {
	return b.Children[name]
}

// HasChild reports whether a child block with the given name is defined.
func (b *Block) HasChild(name string) bool {
	_, ok := b.Children[name]
	return ok
}

// IsRecursive reports whether this block contains a recursion marker
// that re-enters the block itself or one of its ancestors.
func (b *Block) IsRecursive() bool {
	for _, n := range b.Nodes {
		if n.Type == NodeRecursion {
			return true
		}
	}
	return false
}

// FindTemplate resolves a TEMPLATE block by name, searching this block's
// children first and then walking the ancestor chain. This is the lookup
// used to bind USE markers after a file has been fully parsed.
func (b *Block) FindTemplate(name string) *Block {
	for blk := b; blk != nil; blk = blk.Parent {
		if child, ok := blk.Children[name]; ok && child.Kind == KindTemplate {
			return child
		}
	}
	return nil
}

// FindAncestor resolves the nearest enclosing block (including this one)
// with the given name. This is the lookup used to bind recursion markers.
func (b *Block) FindAncestor(name string) *Block {
	for blk := b; blk != nil; blk = blk.Parent {
		if blk.Name == name {
			return blk
		}
	}
	return nil
}

// Templates returns the names of TEMPLATE blocks defined directly in
// this block, in no particular order.
func (b *Block) Templates() []string {
	var names []string
	for name, child := range b.Children {
		if child.Kind == KindTemplate {
			names = append(names, name)
		}
	}
	return names
}

// Walk visits the block and all of its descendants depth-first. The
// visit function returning false prunes the subtree.
func (b *Block) Walk(visit func(*Block) bool) {
	if !visit(b) {
		return
	}
	for _, n := range b.Nodes {
		if n.Type == NodeBlock && n.Block != nil {
			n.Block.Walk(visit)
		}
	}
	for _, child := range b.Children {
		if child.Kind == KindTemplate {
			child.Walk(visit)
		}
	}
}
