package manifest

import (
	"strings"
	"testing"
)

const goodManifest = `
pipeline:
  name: demo
  protocols: [gather, act]
max_retries: 3
backoff:
  initial_delay_ms: 10
  backoff_factor: 2.0
  max_delay_ms: 100
order:
  gather: [fetch, parse]
disable:
  - match: "web.*"
    reason: offline mode
    when: mode=offline
vars:
  mode: offline
components:
  - id: fetch
    protocols: [gather]
    emits: [page]
  - id: parse
    protocols: [gather]
    run_after: [fetch]
    emits: [doc]
  - id: act
    protocols: [act]
    fail_first: 1
    fail_scope: component
`

func TestParse_GoodManifest(t *testing.T) {
	m, err := Parse([]byte(goodManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Pipeline.Name != "demo" {
		t.Fatalf("name: got %q", m.Pipeline.Name)
	}
	if len(m.Pipeline.Protocols) != 2 || m.Pipeline.Protocols[0] != "gather" {
		t.Fatalf("protocols: got %v", m.Pipeline.Protocols)
	}
	if m.MaxRetries != 3 {
		t.Fatalf("max_retries: got %d", m.MaxRetries)
	}
	if got := m.Order["gather"]; len(got) != 2 || got[0] != "fetch" {
		t.Fatalf("order: got %v", got)
	}
	if len(m.Components) != 3 || m.Components[2].FailFirst != 1 {
		t.Fatalf("components: got %+v", m.Components)
	}
	if diags := m.Validate(); HasErrors(diags) {
		t.Fatalf("unexpected error diagnostics: %v", diags)
	}
}

func TestParse_SchemaRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("pipeline:\n  protocols: [a]\nbogus: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "manifest schema") {
		t.Fatalf("got %v want schema error", err)
	}
}

func TestParse_SchemaRejectsWrongTypes(t *testing.T) {
	for _, doc := range []string{
		"pipeline:\n  protocols: gather\n", // protocols must be a list
		"pipeline:\n  protocols: []\n",     // at least one protocol
		"pipeline:\n  protocols: [a]\nmax_retries: -1\n",
		"pipeline:\n  protocols: [a]\ncomponents:\n  - protocols: [a]\n", // id required
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("expected schema error for:\n%s", doc)
		}
	}
}

func TestValidate_Diagnostics(t *testing.T) {
	m, err := Parse([]byte(`
pipeline:
  protocols: [gather]
order:
  ghost: [a]
disable:
  - match: "[bad"
    when: "=broken"
components:
  - id: a
    protocols: [gather, missing]
  - id: a
    protocols: [gather]
  - id: b
    protocols: [gather]
    run_after: [nope]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	diags := m.Validate()
	rules := map[string]Severity{}
	for _, d := range diags {
		rules[d.Rule] = d.Severity
	}
	for _, want := range []string{
		"order_unknown_protocol",
		"disable_bad_pattern",
		"disable_bad_condition",
		"component_unknown_protocol",
		"component_duplicate_id",
	} {
		if rules[want] != SeverityError {
			t.Fatalf("missing error diagnostic %q in %v", want, diags)
		}
	}
	if rules["run_after_unknown"] != SeverityWarning {
		t.Fatalf("run_after_unknown should be a warning, got %v", diags)
	}
	if !HasErrors(diags) {
		t.Fatalf("expected HasErrors")
	}
}

func TestDisabler_GlobAndCondition(t *testing.T) {
	m, err := Parse([]byte(goodManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	offline := m.Disabler(map[string]string{"mode": "offline"})
	if off, reason := offline("web.search"); !off || reason != "offline mode" {
		t.Fatalf("web.search: got off=%v reason=%q", off, reason)
	}
	if off, _ := offline("fetch"); off {
		t.Fatalf("fetch should not match web.*")
	}

	online := m.Disabler(map[string]string{"mode": "online"})
	if off, _ := online("web.search"); off {
		t.Fatalf("condition mode=offline must not hold when mode=online")
	}
}
