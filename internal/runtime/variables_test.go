package runtime

import "testing"

func TestInterpolate(t *testing.T) {
	vars := map[string]string{"name": "Ana", "order": "42"}
	tests := []struct {
		template string
		expected string
	}{
		{"Hello {{name}}", "Hello Ana"},
		{"{{name}} #{{ order }}", "Ana #42"},
		{"No templates here", "No templates here"},
		{"{{missing}}!", "!"},
	}
	for _, tt := range tests {
		if got := Interpolate(tt.template, vars); got != tt.expected {
			t.Errorf("Interpolate(%q) = %q, want %q", tt.template, got, tt.expected)
		}
	}
}

func TestEvaluate(t *testing.T) {
	vars := map[string]string{"count": "2", "name": "ana"}
	tests := []struct {
		expression string
		expected   string
	}{
		{`int(count) + 1`, "3"},
		{`upper(name)`, "ANA"},
		{`name == "ana" ? "yes" : "no"`, "yes"},
		{`missing`, ""},
	}
	for _, tt := range tests {
		got, err := Evaluate(tt.expression, vars)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", tt.expression, err)
		}
		if got != tt.expected {
			t.Errorf("Evaluate(%q) = %q, want %q", tt.expression, got, tt.expected)
		}
	}
	if _, err := Evaluate(`count +`, vars); err == nil {
		t.Error("expected compile error")
	}
}
