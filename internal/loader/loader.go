// Package loader implements template file resolution: mapping logical
// template names to files under an ordered list of root directories and
// reading their raw source text. It is the engine's only file system
// surface; INCLUDE targets and initial loads both go through it.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tobyward/quill/internal/errors"
)

// DefaultExtension is appended to logical names without one.
const DefaultExtension = ".tpl"

// Loader resolves logical template names to file paths.
type Loader struct {
	roots     []string
	extension string
}

// New creates a loader searching the given root directories in order.
func New(roots []string) *Loader {
	return &Loader{
		roots:     roots,
		extension: DefaultExtension,
	}
}

// WithExtension overrides the default logical-name extension.
func (l *Loader) WithExtension(ext string) *Loader {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	l.extension = ext
	return l
}

// Roots returns the configured search roots.
func (l *Loader) Roots() []string {
	return l.roots
}

// Resolve maps a logical name or path to a canonical file path. A name
// that exists as given (absolute or relative to the working directory)
// wins; otherwise the roots are searched in order, with the default
// extension appended when the name has none.
func (l *Loader) Resolve(name string) (string, error) {
	for _, candidate := range l.candidates(name) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return "", errors.NewIOError("resolve_failed", err.Error())
			}
			return abs, nil
		}
	}

	return "", errors.NewIOError("template_not_found",
		fmt.Sprintf("template %q not found in %v", name, l.roots))
}

// ResolveRelative resolves a name first against the directory of the
// file it was referenced from, then like Resolve. INCLUDE targets use
// this so includes can be written relative to the including file.
func (l *Loader) ResolveRelative(name, from string) (string, error) {
	if from != "" && !filepath.IsAbs(name) {
		candidate := filepath.Join(filepath.Dir(from), name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return l.Resolve(name)
}

// LoadRaw resolves a name and reads the template source. It returns the
// text, the canonical path and the file modification time for cache
// validation.
func (l *Loader) LoadRaw(name string) (text, canonical string, modTime time.Time, err error) {
	path, err := l.Resolve(name)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return l.read(path)
}

// LoadRawRelative is LoadRaw with include-style relative resolution.
func (l *Loader) LoadRawRelative(name, from string) (text, canonical string, modTime time.Time, err error) {
	path, err := l.ResolveRelative(name, from)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return l.read(path)
}

// ReadFile reads a resolved template path, returning its text and
// modification time for cache validation.
func (l *Loader) ReadFile(path string) (string, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", time.Time{}, errors.NewIOError("read_failed", err.Error())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, errors.NewIOError("read_failed", err.Error())
	}

	return string(data), info.ModTime(), nil
}

func (l *Loader) read(path string) (string, string, time.Time, error) {
	text, modTime, err := l.ReadFile(path)
	return text, path, modTime, err
}

func (l *Loader) candidates(name string) []string {
	names := []string{name}
	if l.extension != "" && filepath.Ext(name) == "" {
		names = append(names, name+l.extension)
	}

	var candidates []string
	for _, n := range names {
		candidates = append(candidates, n)
	}
	for _, root := range l.roots {
		for _, n := range names {
			candidates = append(candidates, filepath.Join(root, n))
		}
	}
	return candidates
}
