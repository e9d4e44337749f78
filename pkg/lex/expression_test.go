package lex

import (
	"errors"
	"testing"
)

func TestParser_Evaluate(t *testing.T) {
	p := newTestParser(t)
	ctx := map[string]any{
		"flag":  true,
		"count": 0,
		"name":  "Ann",
		"ten":   "10",
		"user":  map[string]any{"group": "admin"},
	}
	tests := []struct {
		expr string
		want bool
	}{
		{"flag", true},
		{"count", false},
		{"missing", false},
		{"not missing", true},
		{"!flag", false},
		{"user.group == 'admin'", true},
		{`user.group === "admin"`, true},
		{"user.group != 'admin'", false},
		{"user.group !== 'guest'", true},
		{"'10' > '9'", true},
		{"ten >= 10", true},
		{"name > 'Amy'", true},
		{"count == 0", true},
		{"count >= -1", true},
		{"flag == true", true},
		{"flag or count and count", false},
		{"flag or (count and count)", true},
		{"flag && count", false},
		{"flag || count", true},
		{"exists count", true},
		{"exists missing", false},
		{"missing == ''", false},
		{"missing != 'x'", true},
		{"missing < 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := p.Evaluate(tt.expr, ctx)
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParser_EvaluateErrors(t *testing.T) {
	p := newTestParser(t)
	for _, expr := range []string{"", "=", "flag and", "'open", "(flag", "flag flag", "exists 'x'", "flag ~ 1"} {
		t.Run(expr, func(t *testing.T) {
			got, err := p.Evaluate(expr, map[string]any{"flag": true})
			var exprErr *ExpressionError
			if !errors.As(err, &exprErr) {
				t.Fatalf("Evaluate(%q) error = %v, want *ExpressionError", expr, err)
			}
			if got {
				t.Errorf("Evaluate(%q) = true on error", expr)
			}
			if IsFatal(err) {
				t.Errorf("IsFatal(%v) = true, want false", err)
			}
		})
	}
}

func TestParser_EvaluateCallsCallbacks(t *testing.T) {
	p := newTestParser(t)
	reg := NewRegistry()
	if err := reg.Register("user:role", func(Params, any, string, *Map) (string, error) {
		return "editor", nil
	}); err != nil {
		t.Fatal(err)
	}
	out, err := p.Parse("{{ if user:role == 'editor' }}yes{{ else }}no{{ endif }}", nil, reg)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if out != "yes" {
		t.Errorf("Parse() = %q, want %q", out, "yes")
	}
}
