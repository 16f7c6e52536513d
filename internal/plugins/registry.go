package plugins

import (
	"fmt"
	"sync"

	"github.com/tobyward/quill/internal/resolve"
)

// Registry resolves plugins by name across an ordered list of
// providers. Lookups are memoized per name for the process lifetime;
// directly registered plugins take precedence over providers.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	functions map[string]Function
	modifiers map[string]Modifier
	funcCache map[string]Function
	modCache  map[string]Modifier
}

// NewRegistry creates a registry consulting the given providers in
// order.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{
		providers: providers,
		functions: make(map[string]Function),
		modifiers: make(map[string]Modifier),
		funcCache: make(map[string]Function),
		modCache:  make(map[string]Modifier),
	}
}

// AddProvider appends a provider to the search order.
func (r *Registry) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	// New providers can satisfy names that previously missed.
	r.funcCache = make(map[string]Function)
	r.modCache = make(map[string]Modifier)
}

// RegisterFunction registers a function plugin directly, overriding any
// provider entry of the same name.
func (r *Registry) RegisterFunction(fn Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[fn.Name()] = fn
	delete(r.funcCache, fn.Name())
}

// RegisterModifier registers a modifier plugin directly, overriding any
// provider entry of the same name.
func (r *Registry) RegisterModifier(m Modifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modifiers[m.Name()] = m
	delete(r.modCache, m.Name())
}

// Function resolves a function plugin by name.
func (r *Registry) Function(name string) (Function, bool) {
	r.mu.RLock()
	if fn, ok := r.functions[name]; ok {
		r.mu.RUnlock()
		return fn, true
	}
	if fn, ok := r.funcCache[name]; ok {
		r.mu.RUnlock()
		return fn, fn != nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if fn, ok := p.Function(name); ok {
			r.funcCache[name] = fn
			return fn, true
		}
	}
	r.funcCache[name] = nil
	return nil, false
}

// Modifier resolves a modifier plugin by name.
func (r *Registry) Modifier(name string) (Modifier, bool) {
	r.mu.RLock()
	if m, ok := r.modifiers[name]; ok {
		r.mu.RUnlock()
		return m, true
	}
	if m, ok := r.modCache[name]; ok {
		r.mu.RUnlock()
		return m, m != nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if m, ok := p.Modifier(name); ok {
			r.modCache[name] = m
			return m, true
		}
	}
	r.modCache[name] = nil
	return nil, false
}

// Table is a static Provider backed by plain maps, the common way to
// ship a set of plugins.
type Table struct {
	Functions map[string]Function
	Modifiers map[string]Modifier
}

// Function implements Provider.
func (t *Table) Function(name string) (Function, bool) {
	fn, ok := t.Functions[name]
	return fn, ok
}

// Modifier implements Provider.
func (t *Table) Modifier(name string) (Modifier, bool) {
	m, ok := t.Modifiers[name]
	return m, ok
}

// stringify renders a parameter value as text, shared by plugin helpers.
func stringify(v interface{}) string {
	return resolve.Stringify(v)
}

// ArgString stringifies a modifier argument list entry safely.
func ArgString(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// Describe returns a short human-readable plugin identity, used in
// error messages.
func Describe(kind, name string) string {
	return fmt.Sprintf("%s plugin %q", kind, name)
}
