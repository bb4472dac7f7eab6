package core

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// CircularMarker replaces a reference that points back into its own path.
const CircularMarker = "[Circular]"

const isoMillis = "2006-01-02T15:04:05.000Z"

var (
	timeType          = reflect.TypeOf(time.Time{})
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Sanitize converts v into a tree of JSON-safe values (nil, bool, numbers,
// string, []any, map[string]any) suitable for persisting or broadcasting.
// It is lossy by design and never panics:
//   - primitives pass through unchanged, non-finite floats become nil
//   - time.Time becomes an ISO-8601 UTC string with millisecond precision
//   - slices, arrays, maps and structs are walked per element; an element
//     whose conversion panics is skipped, and a panicking top-level value
//     becomes its type name
//   - a reference back into the current path becomes CircularMarker
//   - funcs, channels and other opaque values fall back to their %v form
func Sanitize(v any) any {
	g := guard{path: make(map[uintptr]struct{})}
	rv := reflect.ValueOf(v)
	if out, ok := g.try(rv); ok {
		return out
	}
	return fallbackString(rv)
}

// Encode sanitizes v and marshals it to JSON. When marshalling still fails the
// %v rendering of v is encoded as a string.
func Encode(v any) []byte {
	data, err := json.Marshal(Sanitize(v))
	if err == nil {
		return data
	}
	data, _ = json.Marshal(fmt.Sprintf("%v", v))
	return data
}

type guard struct {
	path map[uintptr]struct{}
}

// value panics when a conversion does; try turns that into a skipped
// property.
func (g guard) value(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}

	if v.Type() == timeType {
		return v.Interface().(time.Time).UTC().Format(isoMillis)
	}
	if out, ok := g.marshaler(v); ok {
		return out
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Interface()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Interface()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return v.Interface()
	case reflect.String:
		return v.Interface()
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return g.value(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return g.enter(v.Pointer(), func() any { return g.value(v.Elem()) })
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		return g.enter(v.Pointer(), func() any { return g.mapValue(v) })
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return base64.StdEncoding.EncodeToString(v.Bytes())
		}
		if v.Len() == 0 {
			return []any{}
		}
		return g.enter(v.Pointer(), func() any { return g.listValue(v) })
	case reflect.Array:
		return g.listValue(v)
	case reflect.Struct:
		return g.structValue(v)
	default:
		return fallbackString(v)
	}
}

// enter guards against cycles along the current walk. Shared references that
// do not loop are converted once per occurrence.
func (g guard) enter(ptr uintptr, fn func() any) any {
	if _, seen := g.path[ptr]; seen {
		return CircularMarker
	}
	g.path[ptr] = struct{}{}
	defer delete(g.path, ptr)
	return fn()
}

func (g guard) marshaler(v reflect.Value) (any, bool) {
	t := v.Type()
	if !t.Implements(jsonMarshalerType) && !t.Implements(textMarshalerType) {
		return nil, false
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, true
	}
	if m, ok := v.Interface().(json.Marshaler); ok {
		data, err := m.MarshalJSON()
		if err != nil {
			return fallbackString(v), true
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return fallbackString(v), true
		}
		return out, true
	}
	text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return fallbackString(v), true
	}
	return string(text), true
}

func (g guard) mapValue(v reflect.Value) any {
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key := mapKey(iter.Key())
		if conv, ok := g.try(iter.Value()); ok {
			out[key] = conv
		}
	}
	return out
}

func (g guard) listValue(v reflect.Value) any {
	out := make([]any, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		if conv, ok := g.try(v.Index(i)); ok {
			out = append(out, conv)
		}
	}
	return out
}

func (g guard) structValue(v reflect.Value) any {
	out := make(map[string]any, v.NumField())
	g.fields(v, out)
	return out
}

func (g guard) fields(v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, skip := jsonFieldName(field)
		if skip {
			continue
		}
		fv := v.Field(i)
		if field.Anonymous && name == "" {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				g.fields(fv, out)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		if conv, ok := g.try(fv); ok {
			out[name] = conv
		}
	}
}

// try converts a single property, reporting false when the conversion
// panicked anywhere below it so the caller can skip it.
func (g guard) try(v reflect.Value) (out any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = nil, false
		}
	}()
	return g.value(v), true
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	tag, ok := field.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, false
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	return fmt.Sprintf("%v", k.Interface())
}

func fallbackString(v reflect.Value) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = v.Type().String()
		}
	}()
	if !v.CanInterface() {
		return v.Type().String()
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Interface:
		// %v would walk the same graph that just failed
		return v.Type().String()
	}
	return fmt.Sprintf("%v", v.Interface())
}
