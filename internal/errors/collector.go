package errors

import "sync"

// Collector accumulates template errors across multiple files, used by
// batch validation runs where one broken template must not hide errors
// in the others.
type Collector struct {
	mu     sync.RWMutex
	errors []*TemplateError
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		errors: make([]*TemplateError, 0),
	}
}

// Add records a template error. Nil errors are ignored.
func (c *Collector) Add(err *TemplateError) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

// Errors returns a copy of all collected errors in insertion order.
func (c *Collector) Errors() []*TemplateError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]*TemplateError, len(c.errors))
	copy(result, c.errors)
	return result
}

// ByTemplate returns the errors recorded for one template name.
func (c *Collector) ByTemplate(template string) []*TemplateError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []*TemplateError
	for _, err := range c.errors {
		if err.Template == template {
			result = append(result, err)
		}
	}
	return result
}

// HasErrors reports whether any error has been recorded.
func (c *Collector) HasErrors() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.errors) > 0
}

// Clear removes all recorded errors.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = c.errors[:0]
}
