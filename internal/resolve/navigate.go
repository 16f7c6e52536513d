package resolve

import (
	"reflect"
	"strings"
)

// Navigate walks a parsed path's segments and accessor calls starting
// from the value found for the root identifier. A missing intermediate
// segment makes the whole resolution fail; there are no partial results.
// The boolean result distinguishes "not found" from a legitimate nil.
func Navigate(root interface{}, p *Path) (interface{}, bool) {
	v := root

	for _, seg := range p.Segments {
		next, ok := step(v, seg)
		if !ok {
			return nil, false
		}
		v = next
	}

	for _, call := range p.Calls {
		next, ok := invoke(v, call)
		if !ok {
			return nil, false
		}
		v = next
	}

	return v, true
}

// step applies one path segment to a value.
func step(v interface{}, seg Segment) (interface{}, bool) {
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch seg.Kind {
	case SegIndex:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, false
		}
		idx := seg.Index
		if idx < 0 {
			idx += rv.Len()
		}
		if idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true

	case SegKey:
		switch rv.Kind() {
		case reflect.Map:
			if rv.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			mv := rv.MapIndex(reflect.ValueOf(seg.Key).Convert(rv.Type().Key()))
			if !mv.IsValid() {
				return nil, false
			}
			return mv.Interface(), true

		case reflect.Struct:
			field := rv.FieldByName(seg.Key)
			if !field.IsValid() {
				field = rv.FieldByName(exportedName(seg.Key))
			}
			if !field.IsValid() || !field.CanInterface() {
				return nil, false
			}
			return field.Interface(), true
		}
	}

	return nil, false
}

// invoke calls an accessor method by name via reflection. Methods are
// matched by exact name first, then with the leading letter upper-cased.
// A matched method must accept exactly the supplied string arguments and
// return one value, optionally followed by an error.
func invoke(v interface{}, call Call) (interface{}, bool) {
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	method := rv.MethodByName(call.Name)
	if !method.IsValid() {
		method = rv.MethodByName(exportedName(call.Name))
	}
	if !method.IsValid() {
		return nil, false
	}

	mt := method.Type()
	if mt.NumIn() != len(call.Args) || mt.NumOut() < 1 || mt.NumOut() > 2 {
		return nil, false
	}
	for i := 0; i < mt.NumIn(); i++ {
		if mt.In(i).Kind() != reflect.String {
			return nil, false
		}
	}
	if mt.NumOut() == 2 && !mt.Out(1).Implements(errorType) {
		return nil, false
	}

	args := make([]reflect.Value, len(call.Args))
	for i, a := range call.Args {
		args[i] = reflect.ValueOf(a).Convert(mt.In(i))
	}

	results := method.Call(args)
	if len(results) == 2 && !results[1].IsNil() {
		return nil, false
	}

	return results[0].Interface(), true
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// exportedName upper-cases the first letter so that template paths may
// refer to Go methods and fields in lower case.
func exportedName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
