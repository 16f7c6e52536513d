package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// paramFlag collects repeatable key=value assignments from the command
// line, preserving the order they were given in.
type paramFlag struct {
	keys   []string
	values map[string]string
}

var _ pflag.Value = (*paramFlag)(nil)

func (p *paramFlag) Set(arg string) error {
	key, value, ok := strings.Cut(arg, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", arg)
	}
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return nil
}

func (p *paramFlag) String() string {
	parts := make([]string, 0, len(p.keys))
	for _, key := range p.keys {
		parts = append(parts, key+"="+p.values[key])
	}
	return strings.Join(parts, ",")
}

func (p *paramFlag) Type() string {
	return "key=value"
}

// apply assigns the collected parameters to a setter such as a source.
func (p *paramFlag) apply(set func(name string, value interface{})) {
	for _, key := range p.keys {
		set(key, p.values[key])
	}
}
