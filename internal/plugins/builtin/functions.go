package builtin

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tobyward/quill/internal/plugins"
)

// eachFunction implements {@each from=$list as=name}...{/each}: the
// enclosed text is re-parsed and rendered once per element with the
// element assigned under the given name and its position under
// name_index. Maps iterate in sorted key order with the key assigned
// under name_key.
//
// The bindings are plain scope assignments, like {@set}, so after the
// tag closes the last iteration's values stay visible in the calling
// entity's scope.
type eachFunction struct{}

func (eachFunction) Name() string { return "each" }

func (eachFunction) Render(call *plugins.Call) (string, error) {
	if !call.Enclosing {
		return "", fmt.Errorf("@each requires enclosed content")
	}

	from, ok := call.Params["from"]
	if !ok {
		if len(call.Positional) > 0 {
			from = call.Positional[0]
		} else {
			return "", fmt.Errorf("@each requires a from parameter")
		}
	}

	name := call.String("as", "item")

	var out strings.Builder
	render := func(assign map[string]interface{}) error {
		call.Scope.Assign(assign)
		text, err := call.Scope.RenderText(call.Body)
		if err != nil {
			return err
		}
		out.WriteString(text)
		return nil
	}

	if from == nil {
		return "", nil
	}

	rv := reflect.ValueOf(from)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			err := render(map[string]interface{}{
				name:            rv.Index(i).Interface(),
				name + "_index": i,
			})
			if err != nil {
				return "", err
			}
		}

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return "", fmt.Errorf("@each map keys must be strings, got %s", rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for i, k := range keys {
			err := render(map[string]interface{}{
				name:            rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface(),
				name + "_key":   k,
				name + "_index": i,
			})
			if err != nil {
				return "", err
			}
		}

	default:
		return "", fmt.Errorf("@each cannot iterate %T", from)
	}

	return out.String(), nil
}

// setFunction implements {@set name=value ...}: it assigns its named
// parameters into the calling entity's scope and renders nothing.
type setFunction struct{}

func (setFunction) Name() string { return "set" }

func (setFunction) Render(call *plugins.Call) (string, error) {
	if len(call.Params) == 0 {
		return "", fmt.Errorf("@set requires named parameters")
	}
	call.Scope.Assign(call.Params)
	return "", nil
}
