package builtin

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyward/quill/internal/plugins"
	"github.com/tobyward/quill/internal/resolve"
)

func modifier(t *testing.T, name string) plugins.Modifier {
	t.Helper()
	m, ok := Provider().Modifier(name)
	require.True(t, ok, "modifier %q not provided", name)
	return m
}

func apply(t *testing.T, name string, value interface{}, args ...string) interface{} {
	t.Helper()
	v, err := modifier(t, name).Apply(value, args)
	require.NoError(t, err)
	return v
}

func TestModifiers(t *testing.T) {
	assert.Equal(t, "ab", apply(t, "trim", "  ab\t"))
	assert.Equal(t, "ab", apply(t, "trim", "xabx", "x"))
	assert.Equal(t, "AB", apply(t, "upper", "ab"))
	assert.Equal(t, "ab", apply(t, "lower", "AB"))
	assert.Equal(t, "Hello World", apply(t, "title", "hello world"))
	assert.Equal(t, 3, apply(t, "len", "abc"))
	assert.Equal(t, 2, apply(t, "len", []string{"a", "b"}))
	assert.Equal(t, 0, apply(t, "len", 42))
	assert.Equal(t, "kept", apply(t, "default", "kept", "fallback"))
	assert.Equal(t, "fallback", apply(t, "default", "", "fallback"))
	assert.Equal(t, "fallback", apply(t, "default", "0", "fallback"))
	assert.Equal(t, "b.b", apply(t, "replace", "a.a", "a", "b"))
	assert.Equal(t, "ab...", apply(t, "truncate", "abcdef", "2"))
	assert.Equal(t, "ab~", apply(t, "truncate", "abcdef", "2", "~"))
	assert.Equal(t, "abc", apply(t, "truncate", "abc", "5"))
	assert.Equal(t, "&lt;a&gt;", apply(t, "escape", "<a>"))
}

func TestModifier_Errors(t *testing.T) {
	_, err := modifier(t, "replace").Apply("x", []string{"only-one"})
	assert.Error(t, err)

	_, err = modifier(t, "truncate").Apply("x", nil)
	assert.Error(t, err)

	_, err = modifier(t, "truncate").Apply("x", []string{"-1"})
	assert.Error(t, err)

	_, err = modifier(t, "date").Apply("not a date", nil)
	assert.Error(t, err)

	_, err = modifier(t, "date").Apply(3.14, nil)
	assert.Error(t, err)
}

func TestStriptags(t *testing.T) {
	assert.Equal(t, "Hello world", apply(t, "striptags", `<p>Hello <b>world</b></p>`))
	assert.Equal(t, "ab", apply(t, "striptags", `a<script>var x = "<p>";</script>b`))
	assert.Equal(t, "ab", apply(t, "striptags", `a<style>p { color: red }</style>b`))
	assert.Equal(t, "plain", apply(t, "striptags", "plain"))
}

func TestDateModifier(t *testing.T) {
	ts := time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, "2024-03-09", apply(t, "date", ts))
	assert.Equal(t, "09.03.2024", apply(t, "date", ts, "02.01.2006"))
	assert.Equal(t, "2024-03-09", apply(t, "date", "2024-03-09T15:04:05Z"))
	assert.Equal(t, "1970-01-01", apply(t, "date", int64(3600)))
}

// fakeScope implements plugins.Scope over a plain map, rendering
// fragments by substituting {$name} occurrences directly.
type fakeScope struct {
	params map[string]interface{}
}

func newFakeScope() *fakeScope {
	return &fakeScope{params: make(map[string]interface{})}
}

func (s *fakeScope) Resolve(path string) (interface{}, bool) {
	v, ok := s.params[strings.TrimPrefix(path, "$")]
	return v, ok
}

func (s *fakeScope) RenderText(text string) (string, error) {
	out := text
	for k, v := range s.params {
		out = strings.ReplaceAll(out, "{$"+k+"}", fmt.Sprint(v))
	}
	return out, nil
}

func (s *fakeScope) Assign(params map[string]interface{}) {
	for k, v := range params {
		s.params[k] = v
	}
}

func TestEach_Slice(t *testing.T) {
	fn, ok := Provider().Function("each")
	require.True(t, ok)

	scope := newFakeScope()
	out, err := fn.Render(&plugins.Call{
		Scope:     scope,
		Params:    map[string]interface{}{"from": []string{"a", "b"}, "as": "x"},
		Body:      "[{$x_index}:{$x}]",
		Enclosing: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "[0:a][1:b]", out)
}

func TestEach_MapSortedKeys(t *testing.T) {
	fn, _ := Provider().Function("each")

	scope := newFakeScope()
	out, err := fn.Render(&plugins.Call{
		Scope:     scope,
		Params:    map[string]interface{}{"from": map[string]int{"b": 2, "a": 1}},
		Body:      "{$item_key}={$item};",
		Enclosing: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "a=1;b=2;", out)
}

func TestEach_LastBindingStaysInScope(t *testing.T) {
	fn, _ := Provider().Function("each")

	scope := newFakeScope()
	_, err := fn.Render(&plugins.Call{
		Scope:     scope,
		Params:    map[string]interface{}{"from": []string{"a", "b"}, "as": "x"},
		Body:      "{$x}",
		Enclosing: true,
	})
	require.NoError(t, err)

	// Bindings are plain scope assignments, so the final iteration's
	// values remain resolvable after the tag closes.
	v, ok := scope.Resolve("$x")
	require.True(t, ok)
	assert.Equal(t, "b", v)
	idx, ok := scope.Resolve("$x_index")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestEach_PositionalFrom(t *testing.T) {
	fn, _ := Provider().Function("each")

	out, err := fn.Render(&plugins.Call{
		Scope:      newFakeScope(),
		Positional: []interface{}{[]int{1, 2, 3}},
		Body:       "{$item}",
		Enclosing:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestEach_Errors(t *testing.T) {
	fn, _ := Provider().Function("each")

	_, err := fn.Render(&plugins.Call{Scope: newFakeScope(), Enclosing: false})
	assert.Error(t, err)

	_, err = fn.Render(&plugins.Call{Scope: newFakeScope(), Enclosing: true})
	assert.Error(t, err)

	_, err = fn.Render(&plugins.Call{
		Scope:     newFakeScope(),
		Params:    map[string]interface{}{"from": 42},
		Enclosing: true,
	})
	assert.Error(t, err)
}

func TestEach_NilFromRendersNothing(t *testing.T) {
	fn, _ := Provider().Function("each")

	out, err := fn.Render(&plugins.Call{
		Scope:     newFakeScope(),
		Params:    map[string]interface{}{"from": nil},
		Body:      "x",
		Enclosing: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestSet(t *testing.T) {
	fn, ok := Provider().Function("set")
	require.True(t, ok)

	scope := newFakeScope()
	out, err := fn.Render(&plugins.Call{
		Scope:  scope,
		Params: map[string]interface{}{"greeting": "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "", out)

	v, ok := scope.Resolve("$greeting")
	require.True(t, ok)
	assert.Equal(t, "hi", v)

	_, err = fn.Render(&plugins.Call{Scope: scope, Params: map[string]interface{}{}})
	assert.Error(t, err)
}

func TestModifierOutputStringifies(t *testing.T) {
	v := apply(t, "len", "abcd")
	assert.Equal(t, "4", resolve.Stringify(v))
}
