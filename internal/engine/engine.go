// Package engine implements the runtime of the template system: the
// process-wide Template manager, per-file Sources, and the data-bound
// Entity tree that renders a compiled block tree to text.
//
// The manager owns the compiled-block cache, the plugin registry, the
// global parameter tier and the global template registry. Sources and
// entities are cheap per-request objects; a single render is strictly
// single-threaded and synchronous, while the manager's shared state is
// guarded for concurrent use across requests.
package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/tobyward/quill/internal/block"
	"github.com/tobyward/quill/internal/cache"
	"github.com/tobyward/quill/internal/loader"
	"github.com/tobyward/quill/internal/logging"
	"github.com/tobyward/quill/internal/plugins"
	"github.com/tobyward/quill/internal/plugins/builtin"
	"github.com/tobyward/quill/internal/scanner"
)

// DefaultMaxDepth bounds nested renders (child blocks, recursion,
// includes and template calls). Cyclic template data fails fast with a
// render error instead of exhausting the stack.
const DefaultMaxDepth = 64

// Template is the process-wide engine manager.
type Template struct {
	mu sync.RWMutex

	loader   *loader.Loader
	cache    *cache.Cache
	registry *plugins.Registry
	logger   logging.Logger
	maxDepth int

	globals         map[string]interface{}
	globalTemplates map[string]*block.Block
}

// Option configures a Template.
type Option func(*Template)

// WithLoader sets the file-resolution collaborator.
func WithLoader(l *loader.Loader) Option {
	return func(t *Template) { t.loader = l }
}

// WithRegistry replaces the plugin registry. The builtin provider is
// not added implicitly when a registry is supplied.
func WithRegistry(r *plugins.Registry) Option {
	return func(t *Template) { t.registry = r }
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(t *Template) { t.logger = l }
}

// WithMaxDepth overrides the render depth bound.
func WithMaxDepth(depth int) Option {
	return func(t *Template) {
		if depth > 0 {
			t.maxDepth = depth
		}
	}
}

// WithCache replaces the compiled-block cache.
func WithCache(c *cache.Cache) Option {
	return func(t *Template) { t.cache = c }
}

// New creates a Template manager with the builtin plugins registered.
func New(opts ...Option) *Template {
	t := &Template{
		loader:          loader.New(nil),
		cache:           cache.New(),
		logger:          logging.NewNop(),
		maxDepth:        DefaultMaxDepth,
		globals:         make(map[string]interface{}),
		globalTemplates: make(map[string]*block.Block),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.registry == nil {
		t.registry = plugins.NewRegistry(builtin.Provider())
	}

	return t
}

// Registry returns the plugin registry for startup-time registration.
func (t *Template) Registry() *plugins.Registry {
	return t.registry
}

// Cache returns the compiled-block cache.
func (t *Template) Cache() *cache.Cache {
	return t.cache
}

// SetGlobal assigns one process-wide parameter, the lowest-priority
// tier of the resolution chain.
func (t *Template) SetGlobal(key string, value interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.globals[key] = value
}

// AssignGlobals merges process-wide parameters.
func (t *Template) AssignGlobals(params map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range params {
		t.globals[k] = v
	}
}

func (t *Template) global(key string) (interface{}, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.globals[key]
	return v, ok
}

// RegisterTemplate registers a TEMPLATE block under a global name so
// that any source can call it with {@template:Name}.
func (t *Template) RegisterTemplate(name string, blk *block.Block) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.globalTemplates[name] = blk
}

func (t *Template) globalTemplate(name string) (*block.Block, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	blk, ok := t.globalTemplates[name]
	return blk, ok
}

// LoadTemplate resolves a logical name, parses the file (or reuses the
// compiled cache) and constructs a new Source. Every call produces an
// independent Source with its own data; only the compiled block tree is
// shared.
func (t *Template) LoadTemplate(name string) (*Source, error) {
	blk, path, err := t.loadBlock(name, "")
	if err != nil {
		return nil, err
	}

	return t.newSource(name, path, blk), nil
}

// LoadTemplates loads several logical names at once, in order.
func (t *Template) LoadTemplates(names []string) ([]*Source, error) {
	sources := make([]*Source, 0, len(names))
	for _, name := range names {
		src, err := t.LoadTemplate(name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// ParseSource compiles template text directly into a Source, bypassing
// the loader. The name is used for error messages and as the cache-free
// identity of the source.
func (t *Template) ParseSource(name, text string) (*Source, error) {
	blk, err := scanner.Parse(name, text)
	if err != nil {
		return nil, err
	}

	t.registerTemplates(blk)

	return t.newSource(name, "", blk), nil
}

// Reset clears the compiled-block cache, the global template registry
// and the global parameter tier, while preserving loader and plugin
// configuration. Persistent-worker deployments call this at the end of
// each logical request so no state leaks into the next one.
func (t *Template) Reset() {
	t.cache.Clear()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.globals = make(map[string]interface{})
	t.globalTemplates = make(map[string]*block.Block)
}

// loadBlock parses a template file, consulting the cache first. The
// from path enables include-style relative resolution.
func (t *Template) loadBlock(name, from string) (*block.Block, string, error) {
	path, err := t.resolvePath(name, from)
	if err != nil {
		return nil, "", err
	}

	if blk, ok := t.cache.Get(path); ok {
		return blk, path, nil
	}

	text, modTime, err := t.loader.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	blk, err := scanner.Parse(name, text)
	if err != nil {
		return nil, "", err
	}

	t.cache.Put(path, blk, modTime)
	t.registerTemplates(blk)
	t.logger.Debug(context.Background(), "template parsed",
		"template", name, "path", path)

	return blk, path, nil
}

func (t *Template) resolvePath(name, from string) (string, error) {
	if from != "" {
		return t.loader.ResolveRelative(name, from)
	}
	return t.loader.Resolve(name)
}

// registerTemplates publishes every TEMPLATE block of a parsed tree in
// the global template registry, last registration winning.
func (t *Template) registerTemplates(root *block.Block) {
	root.Walk(func(b *block.Block) bool {
		if b.Kind == block.KindTemplate {
			t.RegisterTemplate(b.Name, b)
		}
		return true
	})
}

func (t *Template) newSource(name, path string, blk *block.Block) *Source {
	src := &Source{
		tpl:    t,
		name:   name,
		path:   path,
		params: make(map[string]interface{}),
	}
	src.root = newEntity(src, nil, blk, "")
	return src
}

// templateCallName extracts the target of a template call tag, i.e.
// "Name" from "template:Name".
func templateCallName(tag string) (string, bool) {
	if !strings.HasPrefix(tag, templateCallPrefix) {
		return "", false
	}
	return tag[len(templateCallPrefix):], true
}

const templateCallPrefix = "template:"
