package engine

import (
	"strings"
)

// splitPipes splits a variable tag expression on top-level pipes,
// leaving pipes inside quoted strings and bracketed keys alone.
func splitPipes(raw string) []string {
	var parts []string
	var quote byte
	depth := 0
	start := 0

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			if depth > 0 {
				depth--
			}
		case c == '|' && depth == 0:
			parts = append(parts, strings.TrimSpace(raw[start:i]))
			start = i + 1
		}
	}
	parts = append(parts, strings.TrimSpace(raw[start:]))

	return parts
}

// splitModifier splits a pipe segment into the modifier name and its
// colon-delimited arguments, unquoting each argument.
func splitModifier(seg string) (string, []string) {
	var parts []string
	var quote byte
	start := 0

	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ':':
			parts = append(parts, seg[start:i])
			start = i + 1
		}
	}
	parts = append(parts, seg[start:])

	name := strings.TrimSpace(parts[0])
	args := make([]string, 0, len(parts)-1)
	for _, a := range parts[1:] {
		args = append(args, unquote(strings.TrimSpace(a)))
	}

	return name, args
}

// unquote strips surrounding quotes and backslash escapes from a
// literal; unquoted input is returned unchanged.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	quote := s[0]
	if (quote != '"' && quote != '\'') || s[len(s)-1] != quote {
		return s
	}

	inner := s[1 : len(s)-1]
	if !strings.ContainsRune(inner, '\\') {
		return inner
	}

	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}

// parseParams parses a function tag's raw parameter text into named and
// positional values. Values are resolved at call time: quoted strings
// are literals, $ paths resolve through the calling entity's scope, and
// bare words stay as strings. Parameter parsing is deliberately lazy --
// the raw text lives in the compiled tree and is interpreted here on
// every render, so values may depend on runtime-assigned data.
func parseParams(raw string, e *Entity) (map[string]interface{}, []interface{}) {
	named := make(map[string]interface{})
	var positional []interface{}

	i := 0
	for i < len(raw) {
		// Skip whitespace between parameters.
		for i < len(raw) && (raw[i] == ' ' || raw[i] == '\t') {
			i++
		}
		if i >= len(raw) {
			break
		}

		// Try key= prefix.
		key := ""
		if j := scanKey(raw, i); j > i && j < len(raw) && raw[j] == '=' {
			key = raw[i:j]
			i = j + 1
		}

		token, next := scanValue(raw, i)
		i = next

		value := evalParam(token, e)
		if key != "" {
			named[key] = value
		} else if token != "" {
			positional = append(positional, value)
		}
	}

	return named, positional
}

// scanKey returns the end of a parameter key starting at i, or i when
// none is present.
func scanKey(raw string, i int) int {
	j := i
	for j < len(raw) {
		c := raw[j]
		if c == '_' || c == '-' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			j++
			continue
		}
		break
	}
	return j
}

// scanValue consumes one parameter value starting at i.
func scanValue(raw string, i int) (string, int) {
	if i >= len(raw) {
		return "", i
	}

	if raw[i] == '"' || raw[i] == '\'' {
		quote := raw[i]
		for j := i + 1; j < len(raw); j++ {
			if raw[j] == '\\' {
				j++
				continue
			}
			if raw[j] == quote {
				return raw[i : j+1], j + 1
			}
		}
		return raw[i:], len(raw)
	}

	j := i
	var bracket int
	for j < len(raw) {
		c := raw[j]
		if bracket > 0 {
			if c == ']' {
				bracket--
			}
			j++
			continue
		}
		if c == '[' {
			bracket++
			j++
			continue
		}
		if c == ' ' || c == '\t' {
			break
		}
		j++
	}
	return raw[i:j], j
}

// evalParam turns one raw parameter token into a value.
func evalParam(token string, e *Entity) interface{} {
	if token == "" {
		return ""
	}
	if token[0] == '"' || token[0] == '\'' {
		return unquote(token)
	}
	if token[0] == '$' {
		if v, ok := e.Resolve(token); ok {
			return v
		}
		return nil
	}
	return token
}
