package core

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

type profile struct {
	Name     string    `json:"name"`
	Secret   string    `json:"-"`
	Joined   time.Time `json:"joined"`
	Tags     []string
	internal int
}

type explodingMarshaler struct{}

func (explodingMarshaler) MarshalJSON() ([]byte, error) { return nil, errors.New("no") }

type panickingMarshaler struct{}

func (panickingMarshaler) MarshalJSON() ([]byte, error) { panic("kaboom") }

type level int

func (l level) MarshalText() ([]byte, error) { return []byte([]string{"low", "high"}[l]), nil }

func TestSanitizePrimitivesAndSpecialValues(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 678_900_000, time.FixedZone("x", 3600))
	cases := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "hi", "hi"},
		{"int", 7, 7},
		{"bool", true, true},
		{"nan", math.NaN(), nil},
		{"inf", math.Inf(-1), nil},
		{"time", at, "2024-01-02T02:04:05.678Z"},
		{"bytes", []byte("hi"), "aGk="},
		{"empty slice", []int{}, []any{}},
		{"nil map", map[string]any(nil), nil},
		{"func", func() {}, "func()"},
		{"text marshaler", level(1), "high"},
	}
	for _, tc := range cases {
		got := Sanitize(tc.in)
		if tc.name == "func" {
			if _, ok := got.(string); !ok {
				t.Fatalf("%s: expected string fallback, got %T", tc.name, got)
			}
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: Sanitize(%v) = %#v, want %#v", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestSanitizeStructsHonourJSONTags(t *testing.T) {
	p := profile{Name: "ada", Secret: "s3cret", Joined: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Tags: []string{"x"}, internal: 1}
	got := Sanitize(p).(map[string]any)
	want := map[string]any{
		"name":   "ada",
		"joined": "2020-01-01T00:00:00.000Z",
		"Tags":   []any{"x"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected struct rendering %#v", got)
	}
}

func TestSanitizeReplacesCycles(t *testing.T) {
	node := map[string]any{"name": "root"}
	node["self"] = node
	node["children"] = []any{node}

	got := Sanitize(node).(map[string]any)
	if got["self"] != CircularMarker {
		t.Fatalf("expected circular marker, got %#v", got["self"])
	}
	if got["children"].([]any)[0] != CircularMarker {
		t.Fatalf("expected circular marker in slice, got %#v", got["children"])
	}
	if _, err := json.Marshal(got); err != nil {
		t.Fatalf("sanitized value not encodable: %v", err)
	}
}

func TestSanitizeSharedReferencesAreNotCycles(t *testing.T) {
	shared := map[string]any{"v": 1}
	got := Sanitize(map[string]any{"a": shared, "b": shared}).(map[string]any)
	if !reflect.DeepEqual(got["a"], map[string]any{"v": 1}) || !reflect.DeepEqual(got["b"], map[string]any{"v": 1}) {
		t.Fatalf("shared reference rendered as cycle: %#v", got)
	}
}

func TestSanitizeSkipsFailingProperties(t *testing.T) {
	got := Sanitize(map[string]any{
		"ok":       1,
		"explodes": explodingMarshaler{},
		"panics":   panickingMarshaler{},
	}).(map[string]any)
	if got["ok"] != 1 {
		t.Fatalf("healthy property lost: %#v", got)
	}
	if _, ok := got["explodes"].(string); !ok {
		t.Fatalf("expected failing marshaler to fall back to a string, got %#v", got["explodes"])
	}
	if v, ok := got["panics"]; ok {
		t.Fatalf("expected panicking property to be skipped, got %#v", v)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected properties %#v", got)
	}
}

func TestSanitizeSkipsPanicsBelowTheProperty(t *testing.T) {
	got := Sanitize(struct {
		Name  string           `json:"name"`
		Inner *profileWithBomb `json:"inner"`
		List  []any            `json:"list"`
	}{
		Name:  "ada",
		Inner: &profileWithBomb{Bomb: panickingMarshaler{}},
		List:  []any{1, panickingMarshaler{}, 3},
	}).(map[string]any)
	if got["name"] != "ada" {
		t.Fatalf("healthy field lost: %#v", got)
	}
	inner, ok := got["inner"].(map[string]any)
	if !ok || len(inner) != 0 {
		t.Fatalf("expected nested panicking field to be skipped, got %#v", got["inner"])
	}
	if list := got["list"].([]any); len(list) != 2 || list[0] != 1 || list[1] != 3 {
		t.Fatalf("expected panicking element to be skipped, got %#v", got["list"])
	}
}

type profileWithBomb struct {
	Bomb panickingMarshaler `json:"bomb"`
}

func TestSanitizePanickingTopLevelValue(t *testing.T) {
	if got := Sanitize(panickingMarshaler{}); got != "core.panickingMarshaler" {
		t.Fatalf("expected type name fallback, got %#v", got)
	}
}

func TestEncodeAlwaysProducesJSON(t *testing.T) {
	loop := []any{nil}
	loop[0] = loop
	for _, v := range []any{loop, math.NaN(), make(chan int), map[int]string{1: "one"}} {
		data := Encode(v)
		if !json.Valid(data) {
			t.Fatalf("Encode(%T) produced invalid JSON %q", v, data)
		}
	}
	if string(Encode(map[int]string{1: "one"})) != `{"1":"one"}` {
		t.Fatalf("unexpected map rendering %s", Encode(map[int]string{1: "one"}))
	}
}
