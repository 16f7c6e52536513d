package engine

// Source is one loaded template instance: the compiled block tree bound
// to a root entity plus the file-level parameter tier. Multiple loads of
// the same file share the compiled tree but never the data.
type Source struct {
	tpl    *Template
	name   string
	path   string
	params map[string]interface{}
	root   *Entity
}

// Name returns the logical name the source was loaded under.
func (s *Source) Name() string { return s.name }

// Path returns the canonical file path, empty for sources parsed from
// text.
func (s *Source) Path() string { return s.path }

// Root returns the entity bound to the file's implicit root block.
func (s *Source) Root() *Entity { return s.root }

// Assign merges file-level parameters, the third tier of the resolution
// chain.
func (s *Source) Assign(params map[string]interface{}) {
	for k, v := range params {
		s.params[k] = v
	}
}

// Set assigns one file-level parameter.
func (s *Source) Set(key string, value interface{}) {
	s.params[key] = value
}

// NewBlock creates a child entity on the root entity.
func (s *Source) NewBlock(name string, id ...string) (*Entity, error) {
	return s.root.NewBlock(name, id...)
}

// HasBlock reports whether the root block defines a child of that name.
func (s *Source) HasBlock(name string) bool {
	return s.root.HasBlock(name)
}

// Output renders the source from its current state. Each call
// re-renders: repeated calls after further assignments produce updated
// output, and repeated calls without intervening changes produce
// identical output.
func (s *Source) Output() (string, error) {
	return s.root.Process()
}
