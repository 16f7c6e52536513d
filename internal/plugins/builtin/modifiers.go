// Package builtin ships the stock function and modifier plugins
// registered by default in every engine instance.
package builtin

import (
	"fmt"
	"html"
	"reflect"
	"strconv"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tobyward/quill/internal/plugins"
	"github.com/tobyward/quill/internal/resolve"
)

// Provider returns the builtin plugin table.
func Provider() plugins.Provider {
	return &plugins.Table{
		Functions: map[string]plugins.Function{
			"each": eachFunction{},
			"set":  setFunction{},
		},
		Modifiers: modifiers(),
	}
}

func modifiers() map[string]plugins.Modifier {
	mods := []plugins.Modifier{
		plugins.ModifierFunc{ModName: "trim", Fn: trimModifier},
		plugins.ModifierFunc{ModName: "upper", Fn: upperModifier},
		plugins.ModifierFunc{ModName: "lower", Fn: lowerModifier},
		plugins.ModifierFunc{ModName: "title", Fn: titleModifier},
		plugins.ModifierFunc{ModName: "len", Fn: lenModifier},
		plugins.ModifierFunc{ModName: "default", Fn: defaultModifier},
		plugins.ModifierFunc{ModName: "replace", Fn: replaceModifier},
		plugins.ModifierFunc{ModName: "truncate", Fn: truncateModifier},
		plugins.ModifierFunc{ModName: "escape", Fn: escapeModifier},
		plugins.ModifierFunc{ModName: "striptags", Fn: striptagsModifier},
		plugins.ModifierFunc{ModName: "date", Fn: dateModifier},
	}

	table := make(map[string]plugins.Modifier, len(mods))
	for _, m := range mods {
		table[m.Name()] = m
	}
	return table
}

func trimModifier(value interface{}, args []string) (interface{}, error) {
	cutset := plugins.ArgString(args, 0)
	s := resolve.Stringify(value)
	if cutset == "" {
		return strings.TrimSpace(s), nil
	}
	return strings.Trim(s, cutset), nil
}

func upperModifier(value interface{}, _ []string) (interface{}, error) {
	return strings.ToUpper(resolve.Stringify(value)), nil
}

func lowerModifier(value interface{}, _ []string) (interface{}, error) {
	return strings.ToLower(resolve.Stringify(value)), nil
}

// titleCaser is safe for concurrent use only through fresh casers; the
// cases API requires one caser per goroutine, so build per call.
func titleModifier(value interface{}, _ []string) (interface{}, error) {
	caser := cases.Title(language.English)
	return caser.String(resolve.Stringify(value)), nil
}

func lenModifier(value interface{}, _ []string) (interface{}, error) {
	switch rv := reflect.ValueOf(value); rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), nil
	}
	return 0, nil
}

func defaultModifier(value interface{}, args []string) (interface{}, error) {
	if resolve.Truthy(value) {
		return value, nil
	}
	return plugins.ArgString(args, 0), nil
}

func replaceModifier(value interface{}, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("replace requires two arguments")
	}
	return strings.ReplaceAll(resolve.Stringify(value), args[0], args[1]), nil
}

func truncateModifier(value interface{}, args []string) (interface{}, error) {
	limit, err := strconv.Atoi(plugins.ArgString(args, 0))
	if err != nil || limit < 0 {
		return nil, fmt.Errorf("truncate requires a non-negative length")
	}

	s := resolve.Stringify(value)
	runes := []rune(s)
	if len(runes) <= limit {
		return s, nil
	}

	suffix := "..."
	if len(args) > 1 {
		suffix = args[1]
	}
	return string(runes[:limit]) + suffix, nil
}

func escapeModifier(value interface{}, _ []string) (interface{}, error) {
	return html.EscapeString(resolve.Stringify(value)), nil
}

// striptagsModifier removes markup, keeping text content only. The
// tokenizer is used rather than a regex so that attribute values
// containing angle brackets survive correctly.
func striptagsModifier(value interface{}, _ []string) (interface{}, error) {
	tok := xhtml.NewTokenizer(strings.NewReader(resolve.Stringify(value)))

	var b strings.Builder
	for {
		tt := tok.Next()
		switch tt {
		case xhtml.ErrorToken:
			return b.String(), nil
		case xhtml.TextToken:
			b.Write(tok.Text())
		case xhtml.StartTagToken:
			// Skip script and style bodies entirely.
			name, _ := tok.TagName()
			if a := atom.Lookup(name); a == atom.Script || a == atom.Style {
				depth := 1
				for depth > 0 {
					switch tok.Next() {
					case xhtml.ErrorToken:
						return b.String(), nil
					case xhtml.StartTagToken:
						if n, _ := tok.TagName(); atom.Lookup(n) == a {
							depth++
						}
					case xhtml.EndTagToken:
						if n, _ := tok.TagName(); atom.Lookup(n) == a {
							depth--
						}
					}
				}
			}
		}
	}
}

func dateModifier(value interface{}, args []string) (interface{}, error) {
	layout := plugins.ArgString(args, 0)
	if layout == "" {
		layout = "2006-01-02"
	}

	switch t := value.(type) {
	case time.Time:
		return t.Format(layout), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return nil, fmt.Errorf("date: cannot parse %q: %w", t, err)
		}
		return parsed.Format(layout), nil
	case int64:
		return time.Unix(t, 0).UTC().Format(layout), nil
	case int:
		return time.Unix(int64(t), 0).UTC().Format(layout), nil
	}

	return nil, fmt.Errorf("date: unsupported value type %T", value)
}
