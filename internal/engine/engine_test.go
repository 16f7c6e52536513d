package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyward/quill/internal/errors"
	"github.com/tobyward/quill/internal/loader"
)

func parseSource(t *testing.T, tpl *Template, text string) *Source {
	t.Helper()
	src, err := tpl.ParseSource("test", text)
	require.NoError(t, err)
	return src
}

func output(t *testing.T, src *Source) string {
	t.Helper()
	out, err := src.Output()
	require.NoError(t, err)
	return out
}

func requireRenderCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var te *errors.TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, code, te.Code)
}

func TestOutput_PlainTextRoundTrip(t *testing.T) {
	text := "No tags here.\nJust <b>text</b> & entities.\n"
	src := parseSource(t, New(), text)
	assert.Equal(t, text, output(t, src))
}

func TestOutput_VariableSubstitution(t *testing.T) {
	tpl := New()
	src := parseSource(t, tpl, "Hello {$name}!")
	src.Set("name", "Sam")
	assert.Equal(t, "Hello Sam!", output(t, src))
}

func TestOutput_MissingVariableRendersEmpty(t *testing.T) {
	src := parseSource(t, New(), "[{$missing}]")
	assert.Equal(t, "[]", output(t, src))
}

func TestOutput_DefaultFallback(t *testing.T) {
	tpl := New()

	src := parseSource(t, tpl, `{$missing|"N/A"}`)
	assert.Equal(t, "N/A", output(t, src))

	// A resolved value wins over the default.
	src = parseSource(t, tpl, `{$v|"N/A"}`)
	src.Set("v", "here")
	assert.Equal(t, "here", output(t, src))
}

func TestOutput_ModifierChain(t *testing.T) {
	tpl := New()
	src := parseSource(t, tpl, "{$x|trim|upper}")
	src.Set("x", "  ab ")
	assert.Equal(t, "AB", output(t, src))
}

func TestOutput_ModifierWithArgs(t *testing.T) {
	src := parseSource(t, New(), "{$s|replace:a:b}")
	src.Set("s", "banana")
	assert.Equal(t, "bbnbnb", output(t, src))
}

func TestOutput_ModifiersSkippedUntilDefault(t *testing.T) {
	tpl := New()

	// Modifiers before the default never see the missing value; the
	// default passes through them unmodified.
	src := parseSource(t, tpl, `{$missing|upper|"n/a"}`)
	assert.Equal(t, "n/a", output(t, src))

	// Modifiers after the default apply to it.
	src = parseSource(t, tpl, `{$missing|"n/a"|upper}`)
	assert.Equal(t, "N/A", output(t, src))
}

func TestOutput_UnknownModifier(t *testing.T) {
	src := parseSource(t, New(), "{$x|nosuch}")
	src.Set("x", "v")
	_, err := src.Output()
	requireRenderCode(t, err, "unknown_modifier")
	assert.Contains(t, err.Error(), `modifier plugin "nosuch"`)
}

func TestOutput_UnknownFunction(t *testing.T) {
	src := parseSource(t, New(), "{@nosuch}")
	_, err := src.Output()
	requireRenderCode(t, err, "unknown_function")
}

func TestOutput_BlockRepetition(t *testing.T) {
	text := `<ul><!-- START BLOCK: row --><li>{$name}</li><!-- END BLOCK: row --></ul>`
	src := parseSource(t, New(), text)

	// Zero entities, zero output for the block region.
	assert.Equal(t, "<ul></ul>", output(t, src))

	for _, name := range []string{"a", "b", "c"} {
		e, err := src.NewBlock("row")
		require.NoError(t, err)
		e.Set("name", name)
	}
	assert.Equal(t, "<ul><li>a</li><li>b</li><li>c</li></ul>", output(t, src))
}

func TestOutput_IsIdempotent(t *testing.T) {
	text := `<!-- START BLOCK: row -->{$n};<!-- END BLOCK: row -->`
	src := parseSource(t, New(), text)

	e, err := src.NewBlock("row")
	require.NoError(t, err)
	e.Set("n", "1")

	first := output(t, src)
	second := output(t, src)
	assert.Equal(t, first, second)

	// Rendering reflects state added after a previous render.
	e2, err := src.NewBlock("row")
	require.NoError(t, err)
	e2.Set("n", "2")
	assert.Equal(t, "1;2;", output(t, src))
}

func TestOutput_NestedBlocks(t *testing.T) {
	text := `<!-- START BLOCK: outer -->({$o}:<!-- START BLOCK: inner -->{$o}-{$i}<!-- END BLOCK: inner -->)<!-- END BLOCK: outer -->`
	src := parseSource(t, New(), text)

	outer, err := src.NewBlock("outer")
	require.NoError(t, err)
	outer.Set("o", "O")

	for _, v := range []string{"1", "2"} {
		inner, err := outer.NewBlock("inner")
		require.NoError(t, err)
		inner.Set("i", v)
	}

	// Inner entities see the outer entity's parameters through the
	// ancestor chain.
	assert.Equal(t, "(O:O-1O-2)", output(t, src))
}

func TestNewBlock_UndefinedName(t *testing.T) {
	src := parseSource(t, New(), "no blocks")
	_, err := src.NewBlock("nope")
	requireRenderCode(t, err, "undefined_block")
}

func TestNewBlock_GetOrCreateByID(t *testing.T) {
	text := `<!-- START BLOCK: row -->{$n}<!-- END BLOCK: row -->`
	src := parseSource(t, New(), text)

	first, err := src.NewBlock("row", "k1")
	require.NoError(t, err)
	again, err := src.NewBlock("row", "k1")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, src.Root().BlockCount("row"))

	other, err := src.NewBlock("row", "k2")
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, src.Root().BlockCount("row"))

	// Anonymous creation always appends.
	_, err = src.NewBlock("row")
	require.NoError(t, err)
	_, err = src.NewBlock("row")
	require.NoError(t, err)
	assert.Equal(t, 4, src.Root().BlockCount("row"))

	assert.Same(t, first, src.Root().GetEntity("row", "k1"))
	assert.Nil(t, src.Root().GetEntity("row", "k9"))
}

func TestOutput_Wrapper(t *testing.T) {
	text := `<!-- WRAPPER BLOCK: list --><ul><!-- START BLOCK: list --><li>{$item}</li><!-- END BLOCK: list --></ul><!-- END BLOCK: list -->`
	src := parseSource(t, New(), text)

	// No entities: the decoration is omitted entirely.
	assert.Equal(t, "", output(t, src))

	for _, v := range []string{"a", "b"} {
		e, err := src.NewBlock("list")
		require.NoError(t, err)
		e.Set("item", v)
	}
	assert.Equal(t, "<ul><li>a</li><li>b</li></ul>", output(t, src))
}

func TestOutput_ResolutionChainPrecedence(t *testing.T) {
	text := `<!-- START BLOCK: row -->{$v}<!-- END BLOCK: row -->`

	tpl := New()
	tpl.SetGlobal("v", "global")

	src := parseSource(t, tpl, text)
	e, err := src.NewBlock("row")
	require.NoError(t, err)

	// Globals are the last resort.
	assert.Equal(t, "global", output(t, src))

	// Source parameters shadow globals.
	src.Set("v", "source")
	assert.Equal(t, "source", output(t, src))

	// Entity parameters shadow everything.
	e.Set("v", "entity")
	assert.Equal(t, "entity", output(t, src))
}

func TestOutput_DotPathsAndAccessors(t *testing.T) {
	tpl := New()
	src := parseSource(t, tpl, `{$user.address.city}/{$rows.1}/{$rows.-1}`)
	src.Set("user", map[string]interface{}{
		"address": map[string]interface{}{"city": "Oslo"},
	})
	src.Set("rows", []string{"a", "b", "c"})
	assert.Equal(t, "Oslo/b/c", output(t, src))
}

func TestOutput_IfBranching(t *testing.T) {
	text := `{@if $age > 17}{$name} is adult{@else}{$name} is minor{/if}`
	tpl := New()

	src := parseSource(t, tpl, text)
	src.Assign(map[string]interface{}{"name": "Sam", "age": 7})
	assert.Equal(t, "Sam is minor", output(t, src))

	src = parseSource(t, tpl, text)
	src.Assign(map[string]interface{}{"name": "Alex", "age": 32})
	assert.Equal(t, "Alex is adult", output(t, src))
}

func TestOutput_IfWithoutElse(t *testing.T) {
	tpl := New()

	src := parseSource(t, tpl, `{@if $ok}yes{/if}`)
	src.Set("ok", "1")
	assert.Equal(t, "yes", output(t, src))

	src = parseSource(t, tpl, `{@if $ok}yes{/if}`)
	assert.Equal(t, "", output(t, src))
}

func TestOutput_IfSequentialEvaluation(t *testing.T) {
	// ($a or $b) and $c in reading order.
	text := `{@if $a|$b,$c}T{@else}F{/if}`
	tpl := New()

	src := parseSource(t, tpl, text)
	src.Assign(map[string]interface{}{"a": "1", "b": "", "c": ""})
	assert.Equal(t, "F", output(t, src))

	src = parseSource(t, tpl, text)
	src.Assign(map[string]interface{}{"a": "1", "b": "", "c": "1"})
	assert.Equal(t, "T", output(t, src))
}

func TestOutput_IfEscapedElse(t *testing.T) {
	src := parseSource(t, New(), `{@if $ok}a.{@else}b{/if}`)
	src.Set("ok", "1")
	// The escaped tag is literal content of the true branch.
	assert.Equal(t, "a{@else}b", output(t, src))
}

func TestOutput_BadCondition(t *testing.T) {
	src := parseSource(t, New(), `{@if $a ~ $b}x{/if}`)
	_, err := src.Output()
	requireRenderCode(t, err, "bad_condition")
}

func TestOutput_NestedIf(t *testing.T) {
	text := `{@if $a}{@if $b}both{@else}first{/if}{@else}none{/if}`
	tpl := New()

	src := parseSource(t, tpl, text)
	src.Assign(map[string]interface{}{"a": "1", "b": "1"})
	assert.Equal(t, "both", output(t, src))

	src = parseSource(t, tpl, text)
	src.Assign(map[string]interface{}{"a": "1", "b": ""})
	assert.Equal(t, "first", output(t, src))

	src = parseSource(t, tpl, text)
	assert.Equal(t, "none", output(t, src))
}

func TestOutput_Recursion(t *testing.T) {
	text := `<!-- START BLOCK: node -->({$label}<!-- RECURSION BLOCK: node -->)<!-- END BLOCK: node -->`
	src := parseSource(t, New(), text)

	n1, err := src.NewBlock("node")
	require.NoError(t, err)
	n1.Set("label", "1")
	n2, err := n1.NewBlock("node")
	require.NoError(t, err)
	n2.Set("label", "2")
	n3, err := n2.NewBlock("node")
	require.NoError(t, err)
	n3.Set("label", "3")

	assert.Equal(t, "(1(2(3)))", output(t, src))
}

func TestOutput_RecursionSiblings(t *testing.T) {
	text := `<!-- START BLOCK: node -->[{$label}<!-- RECURSION BLOCK: node -->]<!-- END BLOCK: node -->`
	src := parseSource(t, New(), text)

	root, err := src.NewBlock("node")
	require.NoError(t, err)
	root.Set("label", "r")
	for _, v := range []string{"a", "b"} {
		child, err := root.NewBlock("node")
		require.NoError(t, err)
		child.Set("label", v)
	}

	assert.Equal(t, "[r[a][b]]", output(t, src))
}

func TestOutput_DepthBound(t *testing.T) {
	text := `<!-- START BLOCK: node -->({$label}<!-- RECURSION BLOCK: node -->)<!-- END BLOCK: node -->`
	tpl := New(WithMaxDepth(2))
	src := parseSource(t, tpl, text)

	e, err := src.NewBlock("node")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		e, err = e.NewBlock("node")
		require.NoError(t, err)
	}

	_, err = src.Output()
	requireRenderCode(t, err, "depth_exceeded")
}

func TestOutput_Use(t *testing.T) {
	text := `<!-- USE card BLOCK: promo --><!-- TEMPLATE BLOCK: card -->[{$title}]<!-- END BLOCK: card -->`
	tpl := New()

	// Without alias entities the template renders once inline against
	// the current scope.
	src := parseSource(t, tpl, text)
	src.Set("title", "Inline")
	assert.Equal(t, "[Inline]", output(t, src))

	// With alias entities it repeats per entity in creation order.
	src = parseSource(t, tpl, text)
	for _, v := range []string{"A", "B"} {
		e, err := src.NewBlock("promo")
		require.NoError(t, err)
		e.Set("title", v)
	}
	assert.Equal(t, "[A][B]", output(t, src))
}

func TestOutput_TemplateCall(t *testing.T) {
	text := `{@template:card title="Hi"}<!-- TEMPLATE BLOCK: card -->[{$title}/{$caller}]<!-- END BLOCK: card -->`
	tpl := New()

	src := parseSource(t, tpl, text)
	// Caller entity parameters are not visible inside a template call;
	// source parameters are.
	src.Root().Set("caller", "hidden")
	src.Set("shared", "s")
	assert.Equal(t, "[Hi/]", output(t, src))
}

func TestOutput_TemplateCallUnknown(t *testing.T) {
	src := parseSource(t, New(), `{@template:nope}`)
	_, err := src.Output()
	requireRenderCode(t, err, "unknown_template")
}

func TestOutput_TemplateCallResolvesPathParams(t *testing.T) {
	text := `{@template:badge label=$user.name}<!-- TEMPLATE BLOCK: badge -->({$label})<!-- END BLOCK: badge -->`
	src := parseSource(t, New(), text)
	src.Set("user", map[string]interface{}{"name": "Sam"})
	assert.Equal(t, "(Sam)", output(t, src))
}

func TestOutput_EachFunction(t *testing.T) {
	src := parseSource(t, New(), `{@each from=$items as=x}{$x};{/each}`)
	src.Set("items", []string{"a", "b"})
	assert.Equal(t, "a;b;", output(t, src))
}

func TestOutput_SetFunction(t *testing.T) {
	src := parseSource(t, New(), `{@set who="World"}Hello {$who}`)
	assert.Equal(t, "Hello World", output(t, src))
}

func TestOutput_Include(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.tpl"),
		[]byte(`A<!-- INCLUDE BLOCK: partial.tpl -->B`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.tpl"),
		[]byte(`[{$g|"none"}]`), 0o644))

	tpl := New(WithLoader(loader.New([]string{dir})))
	tpl.SetGlobal("g", "G")

	src, err := tpl.LoadTemplate("main")
	require.NoError(t, err)

	// Only the process-global tier is visible inside an include.
	src.Set("g", "shadowed")
	assert.Equal(t, "A[G]B", output(t, src))
}

func TestOutput_IncludeMissingFile(t *testing.T) {
	tpl := New(WithLoader(loader.New([]string{t.TempDir()})))
	src := parseSource(t, tpl, `<!-- INCLUDE BLOCK: nope.tpl -->`)
	_, err := src.Output()
	requireRenderCode(t, err, "include_failed")
}

func TestLoadTemplate_SharesCompiledTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.tpl"),
		[]byte(`<!-- START BLOCK: row -->{$n}<!-- END BLOCK: row -->`), 0o644))

	tpl := New(WithLoader(loader.New([]string{dir})))

	a, err := tpl.LoadTemplate("page")
	require.NoError(t, err)
	b, err := tpl.LoadTemplate("page")
	require.NoError(t, err)

	// Same compiled tree, independent data.
	assert.Same(t, a.Root().Block(), b.Root().Block())

	e, err := a.NewBlock("row")
	require.NoError(t, err)
	e.Set("n", "1")
	assert.Equal(t, "1", output(t, a))
	assert.Equal(t, "", output(t, b))
	assert.Equal(t, 1, tpl.Cache().Len())
}

func TestLoadTemplate_NotFound(t *testing.T) {
	tpl := New(WithLoader(loader.New([]string{t.TempDir()})))
	_, err := tpl.LoadTemplate("missing")
	requireRenderCode(t, err, "template_not_found")
}

func TestReset(t *testing.T) {
	tpl := New()
	tpl.SetGlobal("g", "G")

	src := parseSource(t, tpl, `<!-- TEMPLATE BLOCK: card -->x<!-- END BLOCK: card -->{$g|"empty"}`)
	assert.Equal(t, "G", output(t, src))

	tpl.Reset()

	// Globals and the template registry are gone; plugins survive.
	src = parseSource(t, tpl, `{$g|"empty"}`)
	assert.Equal(t, "empty", output(t, src))

	src = parseSource(t, tpl, `{@template:card}`)
	_, err := src.Output()
	requireRenderCode(t, err, "unknown_template")

	src = parseSource(t, tpl, `{$x|upper}`)
	src.Set("x", "ab")
	assert.Equal(t, "AB", output(t, src))
}

func TestEntity_ResetBlocks(t *testing.T) {
	text := `<!-- START BLOCK: row -->{$n}<!-- END BLOCK: row -->`
	src := parseSource(t, New(), text)

	e, err := src.NewBlock("row")
	require.NoError(t, err)
	e.Set("n", "1")
	require.Equal(t, "1", output(t, src))

	src.Root().ResetBlocks("row")
	assert.Equal(t, "", output(t, src))
	assert.False(t, src.Root().HasEntity("row"))
	assert.True(t, src.HasBlock("row"))
}

func TestEntity_RenderText(t *testing.T) {
	src := parseSource(t, New(), "ignored")
	src.Set("name", "Sam")

	out, err := src.Root().RenderText("Hi {$name}")
	require.NoError(t, err)
	assert.Equal(t, "Hi Sam", out)
}

func TestOutput_PromptCommentsStrippedButRetained(t *testing.T) {
	text := `<!-- START BLOCK: row -->{#! one per row #}{$n}<!-- END BLOCK: row -->`
	src := parseSource(t, New(), text)

	e, err := src.NewBlock("row")
	require.NoError(t, err)
	e.Set("n", "1")
	assert.Equal(t, "1", output(t, src))

	row := src.Root().Block().Resolve("row")
	require.NotNil(t, row)
	assert.Equal(t, []string{"one per row"}, row.PromptComments)
}

func TestOutput_ConcurrentRenders(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.tpl"),
		[]byte(`<!-- START BLOCK: row -->{$n};<!-- END BLOCK: row -->`), 0o644))

	tpl := New(WithLoader(loader.New([]string{dir})))

	const workers = 8
	done := make(chan error, workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			src, err := tpl.LoadTemplate("page")
			if err != nil {
				done <- err
				return
			}
			want := strings.Repeat("x;", 3)
			for i := 0; i < 3; i++ {
				e, err := src.NewBlock("row")
				if err != nil {
					done <- err
					return
				}
				e.Set("n", "x")
			}
			out, err := src.Output()
			if err == nil && out != want {
				err = assert.AnError
			}
			done <- err
		}(w)
	}
	for w := 0; w < workers; w++ {
		require.NoError(t, <-done)
	}
}
