package extensions

import (
	"reflect"
	"strconv"
	"sync"

	"mfestate/pkg/domain"
)

// PathCallback receives the value found at a watched path and the value
// observed before it.
type PathCallback func(value, previous any)

// WatchPath calls callback whenever the value found by walking path through
// the store changes. path[0] is the store key; later segments index nested
// maps with string keys, or slices and arrays by decimal index. A missing
// segment yields nil. The first observation happens at registration and does
// not call back.
func WatchPath(store Store, path []string, callback PathCallback) domain.Unsubscribe {
	mustStore(store, "path watcher")
	if len(path) == 0 {
		panic("extensions: path watcher requires a non-empty path")
	}
	if callback == nil {
		return func() {}
	}
	segments := append([]string(nil), path...)

	var mu sync.Mutex
	last := ResolvePath(store.Get(segments[0]), segments[1:])
	return store.SubscribeAll(func(domain.ChangeEvent) {
		current := ResolvePath(store.Get(segments[0]), segments[1:])
		mu.Lock()
		previous := last
		if StrictEqual(current, previous) {
			mu.Unlock()
			return
		}
		last = current
		mu.Unlock()
		callback(current, previous)
	})
}

// ResolvePath walks path through nested values starting at root.
func ResolvePath(root any, path []string) any {
	current := root
	for _, segment := range path {
		current = step(current, segment)
		if current == nil {
			return nil
		}
	}
	return current
}

func step(value any, segment string) any {
	switch v := value.(type) {
	case map[string]any:
		return v[segment]
	case []any:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= len(v) {
			return nil
		}
		return v[i]
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		out := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !out.IsValid() {
			return nil
		}
		return out.Interface()
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil
		}
		return rv.Index(i).Interface()
	case reflect.Struct:
		field := rv.FieldByName(segment)
		if !field.IsValid() || !field.CanInterface() {
			return nil
		}
		return field.Interface()
	}
	return nil
}
