// Package plugins defines the function and modifier plugin contracts
// and the registry the engine consults at render time.
//
// Functions back {@name ...} tags: they receive the calling scope,
// parsed parameters and, for enclosing tags, the raw enclosed text,
// which they may re-parse and render through the scope as many times as
// they need. Modifiers back the pipe chains of variable tags: each is a
// pure transformation of a value and its string arguments.
//
// Plugins are looked up by name across an ordered provider list, first
// match wins, with per-name memoization for the process lifetime. This
// replaces convention-based dynamic loading with an explicit capability
// registry populated at startup.
package plugins

// Scope is the engine surface exposed to function plugins: the calling
// entity's parameter resolution, fragment rendering and assignment.
type Scope interface {
	// Resolve looks a dot path up through the parameter chain.
	Resolve(path string) (interface{}, bool)
	// RenderText parses a template fragment and renders it against
	// the current scope.
	RenderText(text string) (string, error)
	// Assign merges values into the current scope's parameters.
	Assign(params map[string]interface{})
}

// Call carries one function tag invocation.
type Call struct {
	// Scope is the calling entity.
	Scope Scope
	// Params holds named parameters with their values resolved: path
	// references through the caller's scope, literals as given.
	Params map[string]interface{}
	// Positional holds unnamed parameters in tag order.
	Positional []interface{}
	// Body is the raw enclosed text of an enclosing tag, empty for a
	// standalone tag.
	Body string
	// Enclosing distinguishes an enclosing tag with an empty body
	// from a standalone tag.
	Enclosing bool
}

// String returns a named parameter stringified, or the fallback when
// the parameter is absent.
func (c *Call) String(name, fallback string) string {
	v, ok := c.Params[name]
	if !ok {
		return fallback
	}
	return stringify(v)
}

// Function renders a {@name ...} tag.
type Function interface {
	// Name is the tag name the function is dispatched under.
	Name() string
	// Render produces the tag's output.
	Render(call *Call) (string, error)
}

// Modifier transforms a variable tag's value. Implementations must be
// pure: the same value and arguments always yield the same result.
type Modifier interface {
	// Name is the pipe-segment name the modifier is dispatched under.
	Name() string
	// Apply transforms the value with the given string arguments.
	Apply(value interface{}, args []string) (interface{}, error)
}

// Provider is one source of plugins, typically a static table. The
// registry consults providers in registration order.
type Provider interface {
	Function(name string) (Function, bool)
	Modifier(name string) (Modifier, bool)
}

// FunctionFunc adapts a plain function to the Function interface.
type FunctionFunc struct {
	FuncName string
	Fn       func(call *Call) (string, error)
}

// Name returns the tag name.
func (f FunctionFunc) Name() string { return f.FuncName }

// Render invokes the wrapped function.
func (f FunctionFunc) Render(call *Call) (string, error) { return f.Fn(call) }

// ModifierFunc adapts a plain function to the Modifier interface.
type ModifierFunc struct {
	ModName string
	Fn      func(value interface{}, args []string) (interface{}, error)
}

// Name returns the modifier name.
func (m ModifierFunc) Name() string { return m.ModName }

// Apply invokes the wrapped function.
func (m ModifierFunc) Apply(value interface{}, args []string) (interface{}, error) {
	return m.Fn(value, args)
}
