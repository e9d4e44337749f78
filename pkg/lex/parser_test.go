package lex

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustRegister(tb testing.TB, reg *Registry, name string, cb Callback) {
	tb.Helper()
	if err := reg.Register(name, cb); err != nil {
		tb.Fatalf("Register(%q) error = %v", name, err)
	}
}

func testRegistry(tb testing.TB) *Registry {
	tb.Helper()
	reg := NewRegistry()
	mustRegister(tb, reg, "upper:text", func(params Params, _ any, _ string, _ *Map) (string, error) {
		return strings.ToUpper(params.Get("value", "")), nil
	})
	mustRegister(tb, reg, "echo:value", func(params Params, _ any, _ string, _ *Map) (string, error) {
		return params["text"], nil
	})
	mustRegister(tb, reg, "wrap:tag", func(params Params, _ any, content string, _ *Map) (string, error) {
		el := params.Get("el", "span")
		return "<" + el + ">" + content + "</" + el + ">", nil
	})
	mustRegister(tb, reg, "site:name", func(Params, any, string, *Map) (string, error) {
		return "Lex", nil
	})
	mustRegister(tb, reg, "greeting", func(Params, any, string, *Map) (string, error) {
		return "hello {{ name }}", nil
	})
	reg.Freeze()
	return reg
}

func TestParser_Parse(t *testing.T) {
	chain := "{{ if user.group == 'admin' }}Admin{{ elseif user.group == 'guest' }}Guest{{ else }}Unknown{{ endif }}"
	tests := []struct {
		name     string
		template string
		context  any
		want     string
	}{
		{"admin branch", chain, map[string]any{"user": map[string]any{"group": "admin"}}, "Admin"},
		{"guest branch", chain, map[string]any{"user": map[string]any{"group": "guest"}}, "Guest"},
		{"else branch", chain, map[string]any{"user": map[string]any{}}, "Unknown"},
		{
			"loop over sequence",
			"{{ items }}<p>{{ name }}</p>{{ /items }}",
			map[string]any{"items": []any{map[string]any{"name": "A"}, map[string]any{"name": "B"}}},
			"<p>A</p><p>B</p>",
		},
		{
			"loop over typed slice",
			"{{ items }}{{ name }},{{ /items }}",
			map[string]any{"items": []map[string]string{{"name": "x"}, {"name": "y"}}},
			"x,y,",
		},
		{"empty loop", "[{{ items }}x{{ /items }}]", map[string]any{"items": []any{}}, "[]"},
		{"scalar loop", "[{{ items }}x{{ /items }}]", map[string]any{"items": "yes"}, "[]"},
		{"missing loop", "[{{ items }}x{{ /items }}]", nil, "[]"},
		{"dot path", "{{ a.b.c }}", map[string]any{"a": map[string]any{"b": map[string]any{"c": "v"}}}, "v"},
		{"dot path missing", "[{{ a.b.c }}]", map[string]any{"a": map[string]any{"b": map[string]any{}}}, "[]"},
		{"unknown variable", "Hello {{ nobody }}!", nil, "Hello !"},
		{"no tags", "plain <b>text</b> { not a tag }", nil, "plain <b>text</b> { not a tag }"},
		{"comment", "a{{# hidden {{ name }} #}}b", map[string]any{"name": "x"}, "ab"},
		{"noparse", "{{ noparse }}{{ name }}{{ if x }}{{ /noparse }}", map[string]any{"name": "x"}, "{{ name }}{{ if x }}"},
		{"literal", `{{ "quoted" }}`, nil, "quoted"},
		{"unless", "{{ unless flag }}off{{ else }}on{{ endif }}", map[string]any{"flag": true}, "on"},
		{"elseunless", "{{ if a }}A{{ elseunless b }}notB{{ endif }}", map[string]any{"a": false, "b": false}, "notB"},
		{"no branch matches", "[{{ if a }}A{{ elseif b }}B{{ endif }}]", nil, "[]"},
		{"nested if", "{{ if a }}A{{ if b }}B{{ endif }}{{ endif }}", map[string]any{"a": true, "b": false}, "A"},
		{
			"conditional inside loop",
			"{{ items }}{{ if on }}{{ name }}{{ endif }}{{ /items }}",
			map[string]any{"on": true, "items": []any{
				map[string]any{"name": "a", "on": true},
				map[string]any{"name": "b"},
			}},
			"a",
		},
		{
			"nested loops",
			"{{ rows }}[{{ cells }}{{ v }}{{ /cells }}]{{ /rows }}",
			map[string]any{"rows": []any{
				map[string]any{"cells": []any{map[string]any{"v": 1}, map[string]any{"v": 2}}},
				map[string]any{"cells": []any{map[string]any{"v": 3}}},
			}},
			"[12][3]",
		},
		{"unregistered callback passes content", "{{ foo:bar }}Hi{{ /foo:bar }}", nil, "Hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser(t)
			got, err := p.Parse(tt.template, tt.context, nil)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParser_ParseCallbacks(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		name     string
		template string
		context  any
		want     string
	}{
		{"single tag", `{{ upper:text value="abc" }}`, nil, "ABC"},
		{"self closing", `{{ upper:text value="abc" / }}`, nil, "ABC"},
		{"underscore name", `{{ upper_text value="abc" }}`, nil, "ABC"},
		{"quoted braces", `{{ echo:value text="a }} b" }}`, nil, "a }} b"},
		{"variable param", "{{ upper:text value=name }}", map[string]any{"name": "ann"}, "ANN"},
		{"callback param", "{{ echo:value text=site:name }}", nil, "Lex"},
		{"unresolved param", "{{ echo:value text=nothing }}", nil, "nothing"},
		{"block with params", `{{ wrap:tag el="b" }}hi {{ name }}{{ /wrap:tag }}`, map[string]any{"name": "Ann"}, "<b>hi Ann</b>"},
		{
			"callback inside loop",
			"{{ items }}{{ upper:text value=name }};{{ /items }}",
			map[string]any{"items": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}},
			"A;B;",
		},
		{"plain name served by callback", "{{ greeting }}", map[string]any{"name": "Ann"}, "hello Ann"},
		{"variable wins over callback", "{{ greeting }}", map[string]any{"greeting": "hi"}, "hi"},
		{"unknown callback single", `[{{ foo:bar x="1" }}]`, nil, "[]"},
		{"variable ignores params", `<h1>{{ title format="upper" }}</h1>`, map[string]any{"title": "Home"}, "<h1>Home</h1>"},
		{"loop ignores params", `{{ items limit="2" }}X{{ /items }}`, map[string]any{"items": []any{1, 2}}, "XX"},
		{"missing variable with params", `[{{ missing a="1" }}]`, nil, "[]"},
		{"self closing variable", "[{{ title / }}]", map[string]any{"title": "Home"}, "[Home]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser(t)
			got, err := p.Parse(tt.template, tt.context, reg)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParser_NestedSameNameBlock(t *testing.T) {
	var seen []string
	reg := NewRegistry()
	mustRegister(t, reg, "x", func(_ Params, _ any, content string, _ *Map) (string, error) {
		seen = append(seen, content)
		return "[" + content + "]", nil
	})
	p := newTestParser(t)
	got, err := p.Parse("{{ x }}A{{ x }}B{{ /x }}C{{ /x }}", nil, reg)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got != "[A[B]C]" {
		t.Errorf("Parse() = %q, want %q", got, "[A[B]C]")
	}
	want := []string{"A{{ x }}B{{ /x }}C", "B"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("callback contents mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_LoopOverOrderedMapping(t *testing.T) {
	ctx, err := DecodeJSON(strings.NewReader(`{"m":{"z":{"v":"1"},"a":{"v":"2"},"k":{"v":"3"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	p := newTestParser(t)
	got, err := p.Parse("{{ m }}{{ v }}{{ /m }}", ctx, nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got != "123" {
		t.Errorf("Parse() = %q, want %q", got, "123")
	}
}

func TestParser_CommentStrippingIsIdempotent(t *testing.T) {
	p := newTestParser(t)
	once, err := p.Parse("x{{# one #}}y{{# two\nlines #}}z", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := p.Parse(once, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if once != "xyz" || twice != once {
		t.Errorf("Parse() = %q then %q, want %q twice", once, twice, "xyz")
	}
}

func TestParser_StructuralErrors(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"orphan closer", "a {{ /items }} b"},
		{"missing endif", "{{ if a }}x"},
		{"else without if", "x{{ else }}y"},
		{"endif without if", "{{ endif }}"},
		{"elseif without if", "{{ elseif a }}"},
		{"second else", "{{ if a }}1{{ else }}2{{ else }}3{{ endif }}"},
		{"elseif after else", "{{ if a }}1{{ else }}2{{ elseif b }}3{{ endif }}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser(t)
			_, err := p.Parse(tt.template, nil, nil)
			var structural *StructuralError
			if !errors.As(err, &structural) {
				t.Fatalf("Parse() error = %v, want *StructuralError", err)
			}
			if !IsFatal(err) {
				t.Errorf("IsFatal(%v) = false", err)
			}
		})
	}
}

func TestParser_ExpressionErrorIsRecovered(t *testing.T) {
	p := newTestParser(t)
	got, err := p.Parse("{{ if = }}A{{ else }}B{{ endif }} {{ name }}", map[string]any{"name": "n"}, nil)
	var exprErr *ExpressionError
	if !errors.As(err, &exprErr) {
		t.Fatalf("Parse() error = %v, want *ExpressionError", err)
	}
	if IsFatal(err) {
		t.Errorf("IsFatal(%v) = true", err)
	}
	if got != "B n" {
		t.Errorf("Parse() = %q, want %q", got, "B n")
	}
}

func TestParser_CallbackErrorIsRecovered(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry()
	mustRegister(t, reg, "fail:now", func(Params, any, string, *Map) (string, error) {
		return "ignored", boom
	})
	p := newTestParser(t)
	got, err := p.Parse("a{{ fail:now }}b", nil, reg)
	if !errors.Is(err, boom) {
		t.Fatalf("Parse() error = %v, want %v", err, boom)
	}
	var cbErr *CallbackError
	if !errors.As(err, &cbErr) || cbErr.Name != "fail:now" {
		t.Errorf("Parse() error = %v, want *CallbackError for fail:now", err)
	}
	if IsFatal(err) {
		t.Errorf("IsFatal(%v) = true", err)
	}
	if got != "ab" {
		t.Errorf("Parse() = %q, want %q", got, "ab")
	}
}

func TestParser_RecursionLimit(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, "loop:again", func(Params, any, string, *Map) (string, error) {
		return "{{ loop:again }}", nil
	})
	config := DefaultConfig()
	config.MaxDepth = 5
	p, err := NewParser(config)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Parse("start {{ loop:again }}", nil, reg)
	var limit *RecursionLimitError
	if !errors.As(err, &limit) {
		t.Fatalf("Parse() error = %v, want *RecursionLimitError", err)
	}
	if limit.Limit != 5 {
		t.Errorf("Limit = %d, want 5", limit.Limit)
	}
	if !IsFatal(err) {
		t.Errorf("IsFatal(%v) = false", err)
	}
}

func TestParser_GlobalDataAccumulates(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, "show:data", func(_ Params, _ any, _ string, data *Map) (string, error) {
		site, _ := data.Get("site")
		page, _ := data.Get("page")
		return fmt.Sprintf("%v/%v", site, page), nil
	})
	p := newTestParser(t)
	steps := []struct {
		data  map[string]any
		reset bool
		want  string
	}{
		{data: map[string]any{"site": "S", "page": "1"}, want: "S/1"},
		{data: map[string]any{"page": "2"}, want: "S/2"},
		{data: map[string]any{"site": "T"}, want: "T/1"},
		{data: map[string]any{"page": "3"}, reset: true, want: "<nil>/3"},
	}
	for i, step := range steps {
		if step.reset {
			p.Reset()
		}
		got, err := p.ParseWithData("{{ show:data }}", nil, step.data, reg)
		if err != nil {
			t.Fatalf("step %d: ParseWithData() error = %v", i, err)
		}
		if got != step.want {
			t.Errorf("step %d: ParseWithData() = %q, want %q", i, got, step.want)
		}
	}
}

func TestParser_CumulativeNoparse(t *testing.T) {
	config := DefaultConfig()
	config.CumulativeNoparse = true
	p, err := NewParser(config)
	if err != nil {
		t.Fatal(err)
	}
	first, err := p.Parse("{{ noparse }}{{ x }}{{ /noparse }} {{ y }}", map[string]any{"y": "Y"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(first, "{{ x }}") || !strings.HasSuffix(first, " Y") {
		t.Fatalf("Parse() = %q, want a placeholder followed by \" Y\"", first)
	}
	second, err := p.Parse(first+" {{ z }}", map[string]any{"x": "X", "z": "Z"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.InjectNoparse(second); got != "{{ x }} Y Z" {
		t.Errorf("InjectNoparse() = %q, want %q", got, "{{ x }} Y Z")
	}
}

func TestParser_MergeGlobalData(t *testing.T) {
	template := "{{ items }}{{ name }}-{{ site }};{{ /items }}"
	ctx := map[string]any{"site": "S", "items": []any{map[string]any{"name": "A"}}}
	for _, merge := range []bool{false, true} {
		config := DefaultConfig()
		config.MergeGlobalData = merge
		p, err := NewParser(config)
		if err != nil {
			t.Fatal(err)
		}
		got, err := p.Parse(template, ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		want := "A-;"
		if merge {
			want = "A-S;"
		}
		if got != want {
			t.Errorf("MergeGlobalData=%v: Parse() = %q, want %q", merge, got, want)
		}
	}
}

func TestParser_SinglePasses(t *testing.T) {
	p := newTestParser(t)
	reg := testRegistry(t)
	ctx := map[string]any{"flag": true, "name": "ann"}

	got, err := p.ResolveConditionals("{{ if flag }}{{ name }}{{ endif }}", ctx)
	if err != nil || got != "{{ name }}" {
		t.Errorf("ResolveConditionals() = %q, %v", got, err)
	}
	got, err = p.ResolveVariables("{{ name }} {{ upper:text value=name }}", ctx, reg)
	if err != nil || got != "ann {{ upper:text value=name }}" {
		t.Errorf("ResolveVariables() = %q, %v", got, err)
	}
	got, err = p.ResolveCallbacks("{{ name }} {{ upper:text value=name }}", ctx, reg)
	if err != nil || got != "{{ name }} ANN" {
		t.Errorf("ResolveCallbacks() = %q, %v", got, err)
	}
}

func TestParse_PackageLevel(t *testing.T) {
	got, err := Parse("{{ a }}", map[string]any{"a": 1}, nil)
	if err != nil || got != "1" {
		t.Errorf("Parse() = %q, %v", got, err)
	}
}

func BenchmarkParser_Parse(b *testing.B) {
	reg := testRegistry(b)
	items := make([]any, 50)
	for i := range items {
		items[i] = map[string]any{"name": fmt.Sprintf("item-%d", i), "on": i%2 == 0}
	}
	ctx := map[string]any{"items": items, "title": "Bench"}
	template := `<h1>{{ title }}</h1>{{# list #}}<ul>{{ items }}{{ if on }}<li>{{ upper:text value=name }}</li>{{ endif }}{{ /items }}</ul>`
	p := newTestParser(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Parse(template, ctx, reg); err != nil {
			b.Fatal(err)
		}
	}
}
