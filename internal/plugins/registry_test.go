package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upperModifier() Modifier {
	return ModifierFunc{ModName: "upper", Fn: func(v interface{}, args []string) (interface{}, error) {
		return stringify(v) + "!", nil
	}}
}

func echoFunction(name, out string) Function {
	return FunctionFunc{FuncName: name, Fn: func(call *Call) (string, error) {
		return out, nil
	}}
}

func TestRegistry_ProviderLookup(t *testing.T) {
	table := &Table{
		Functions: map[string]Function{"echo": echoFunction("echo", "from-table")},
		Modifiers: map[string]Modifier{"upper": upperModifier()},
	}
	r := NewRegistry(table)

	fn, ok := r.Function("echo")
	require.True(t, ok)
	out, err := fn.Render(&Call{})
	require.NoError(t, err)
	assert.Equal(t, "from-table", out)

	m, ok := r.Modifier("upper")
	require.True(t, ok)
	v, err := m.Apply("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "x!", v)

	_, ok = r.Function("missing")
	assert.False(t, ok)
	_, ok = r.Modifier("missing")
	assert.False(t, ok)
}

func TestRegistry_ProviderOrder(t *testing.T) {
	first := &Table{Functions: map[string]Function{"echo": echoFunction("echo", "first")}}
	second := &Table{Functions: map[string]Function{
		"echo":  echoFunction("echo", "second"),
		"other": echoFunction("other", "other"),
	}}
	r := NewRegistry(first, second)

	fn, _ := r.Function("echo")
	out, _ := fn.Render(&Call{})
	assert.Equal(t, "first", out)

	fn, ok := r.Function("other")
	require.True(t, ok)
	out, _ = fn.Render(&Call{})
	assert.Equal(t, "other", out)
}

func TestRegistry_DirectRegistrationOverridesProvider(t *testing.T) {
	table := &Table{Functions: map[string]Function{"echo": echoFunction("echo", "provider")}}
	r := NewRegistry(table)

	// Warm the memoization first to prove direct registration wins
	// anyway.
	fn, _ := r.Function("echo")
	out, _ := fn.Render(&Call{})
	assert.Equal(t, "provider", out)

	r.RegisterFunction(echoFunction("echo", "direct"))
	fn, _ = r.Function("echo")
	out, _ = fn.Render(&Call{})
	assert.Equal(t, "direct", out)
}

func TestRegistry_AddProviderClearsNegativeCache(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Function("late")
	require.False(t, ok)

	r.AddProvider(&Table{Functions: map[string]Function{"late": echoFunction("late", "here")}})

	fn, ok := r.Function("late")
	require.True(t, ok)
	out, _ := fn.Render(&Call{})
	assert.Equal(t, "here", out)
}

func TestCall_String(t *testing.T) {
	call := &Call{Params: map[string]interface{}{"as": "row", "n": 3}}

	assert.Equal(t, "row", call.String("as", "item"))
	assert.Equal(t, "3", call.String("n", ""))
	assert.Equal(t, "item", call.String("missing", "item"))
}

func TestArgString(t *testing.T) {
	args := []string{"a", "b"}
	assert.Equal(t, "a", ArgString(args, 0))
	assert.Equal(t, "b", ArgString(args, 1))
	assert.Equal(t, "", ArgString(args, 2))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, `modifier plugin "upper"`, Describe("modifier", "upper"))
	assert.Equal(t, `function plugin "each"`, Describe("function", "each"))
}
