package cond

import "testing"

func vars(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestEvaluate(t *testing.T) {
	env := vars(map[string]string{
		"mode":    "offline",
		"feature": "true",
		"off":     "false",
	})

	cases := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"mode=offline", true},
		{"mode=online", false},
		{"mode!=online", true},
		{"mode!=offline", false},
		{"missing=", true}, // missing key resolves to empty string
		{"feature", true},
		{"off", false},
		{"missing", false},
		{"mode=offline && feature", true},
		{"mode=offline && off", false},
		{"mode=offline && mode!=online && feature=true", true},
	}
	for _, tc := range cases {
		got, err := Evaluate(tc.expr, env)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %v want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluate_InvalidClause(t *testing.T) {
	for _, expr := range []string{"=value", "!=value", "a=b && =c"} {
		if _, err := Evaluate(expr, nil); err == nil {
			t.Fatalf("%q: expected error", expr)
		}
	}
}

func TestCheck(t *testing.T) {
	if err := Check("a=b && c!=d && e"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Check("=broken"); err == nil {
		t.Fatalf("expected syntax error")
	}
}
