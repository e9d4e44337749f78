package lex

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeJSON_KeepsKeyOrder(t *testing.T) {
	v, err := DecodeJSON(strings.NewReader(`{"zeta": 1, "alpha": {"b": true, "a": null}, "list": [1, "two"]}`))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	m, ok := v.(*Map)
	if !ok {
		t.Fatalf("DecodeJSON() returned %T, want *Map", v)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "list"}, m.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	inner, _ := m.Get("alpha")
	if diff := cmp.Diff([]string{"b", "a"}, inner.(*Map).Keys()); diff != "" {
		t.Errorf("nested Keys() mismatch (-want +got):\n%s", diff)
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if want := `{"zeta":1,"alpha":{"b":true,"a":null},"list":[1,"two"]}`; string(out) != want {
		t.Errorf("MarshalJSON() = %s, want %s", out, want)
	}
}

func TestDecodeJSON_RejectsTrailingData(t *testing.T) {
	if _, err := DecodeJSON(strings.NewReader(`{} {}`)); err == nil {
		t.Error("DecodeJSON() should reject a second document")
	}
}

func TestLookup(t *testing.T) {
	type profile struct {
		City string
	}
	ctx := map[string]any{
		"a":       map[string]any{"b": map[string]any{"c": "v"}},
		"empty":   map[string]any{"b": map[string]any{}},
		"list":    []any{"x", "y"},
		"profile": &profile{City: "Oslo"},
		"nothing": nil,
	}
	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{"a.b.c", "v", true},
		{"empty.b.c", nil, false},
		{"list.1", "y", true},
		{"list.9", nil, false},
		{"profile.City", "Oslo", true},
		{"nothing", nil, true},
		{"nothing.deeper", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Lookup(ctx, tt.path, ".")
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Lookup(%q) = %v, %v; want %v, %v", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTruthyAndStringify(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		truthy bool
		str    string
	}{
		{"nil", nil, false, ""},
		{"empty string", "", false, ""},
		{"zero string", "0", false, "0"},
		{"text", "no", true, "no"},
		{"zero int", 0, false, "0"},
		{"float", 2.5, true, "2.5"},
		{"json number", json.Number("10"), true, "10"},
		{"false", false, false, "false"},
		{"true", true, true, "true"},
		{"empty list", []any{}, false, ""},
		{"list", []string{"a"}, true, ""},
		{"empty map", NewMap(), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truthy(tt.value); got != tt.truthy {
				t.Errorf("Truthy(%v) = %v, want %v", tt.value, got, tt.truthy)
			}
			if got := Stringify(tt.value); got != tt.str {
				t.Errorf("Stringify(%v) = %q, want %q", tt.value, got, tt.str)
			}
		})
	}
}

func TestMap_MergeOverlaysKeys(t *testing.T) {
	base := NewMap()
	base.Set("a", 1)
	base.Set("b", 2)
	over := NewMap()
	over.Set("b", 3)
	over.Set("c", 4)

	merged := base.Clone()
	merged.Merge(over)
	if diff := cmp.Diff([]any{1, 3, 4}, merged.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	if v, _ := base.Get("b"); v != 2 {
		t.Errorf("Merge on a clone changed the original: b = %v", v)
	}
}
