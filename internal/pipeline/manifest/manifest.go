// Package manifest loads and validates the YAML run manifest: the protocol
// sequence, explicit order overrides, disable rules and scripted component
// specs. The manifest is composition glue around the pipeline core; the
// engine itself never reads files.
package manifest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/kcze/conveyor/internal/pipeline/cond"
)

type Manifest struct {
	Pipeline   PipelineSpec        `yaml:"pipeline"`
	MaxRetries int                 `yaml:"max_retries"`
	Backoff    *BackoffSpec        `yaml:"backoff"`
	Order      map[string][]string `yaml:"order"`
	Disable    []DisableRule       `yaml:"disable"`
	Vars       map[string]string   `yaml:"vars"`
	Components []ComponentSpec     `yaml:"components"`
}

type PipelineSpec struct {
	Name      string   `yaml:"name"`
	Protocols []string `yaml:"protocols"`
}

type BackoffSpec struct {
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
	MaxDelayMS     int     `yaml:"max_delay_ms"`
	Jitter         bool    `yaml:"jitter"`
}

// DisableRule turns off every component whose ID matches the glob pattern,
// optionally gated by a condition over run vars. The reason is surfaced in
// diagnostics only.
type DisableRule struct {
	Match  string `yaml:"match"`
	Reason string `yaml:"reason"`
	When   string `yaml:"when"`
}

// ComponentSpec declares a scripted component for the runner: which
// protocols it implements, its ordering hints, the values it emits, and an
// optional fail-N-times-then-succeed counter for rehearsing retries.
type ComponentSpec struct {
	ID             string   `yaml:"id"`
	Protocols      []string `yaml:"protocols"`
	RunAfter       []string `yaml:"run_after"`
	Emits          []string `yaml:"emits"`
	FailFirst      int      `yaml:"fail_first"`
	FailScope      string   `yaml:"fail_scope"`
	Enabled        *bool    `yaml:"enabled"`
	DisabledReason string   `yaml:"disabled_reason"`
}

func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and schema-checks a manifest document.
func Parse(b []byte) (*Manifest, error) {
	if err := validateSchema(b); err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Diagnostic struct {
	Rule     string
	Severity Severity
	Message  string
}

// Validate runs the structural checks the schema cannot express. Callers
// should refuse to run on any error-severity diagnostic.
func (m *Manifest) Validate() []Diagnostic {
	var diags []Diagnostic
	errf := func(rule, format string, a ...any) {
		diags = append(diags, Diagnostic{Rule: rule, Severity: SeverityError, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(rule, format string, a ...any) {
		diags = append(diags, Diagnostic{Rule: rule, Severity: SeverityWarning, Message: fmt.Sprintf(format, a...)})
	}

	declared := map[string]bool{}
	for _, p := range m.Pipeline.Protocols {
		if declared[p] {
			errf("protocol_duplicate", "protocol %q listed more than once", p)
		}
		declared[p] = true
	}

	orderKeys := make([]string, 0, len(m.Order))
	for p := range m.Order {
		orderKeys = append(orderKeys, p)
	}
	sort.Strings(orderKeys)
	for _, p := range orderKeys {
		if !declared[p] {
			errf("order_unknown_protocol", "order override for undeclared protocol %q", p)
		}
	}

	for i, r := range m.Disable {
		if !doublestar.ValidatePattern(r.Match) {
			errf("disable_bad_pattern", "disable[%d]: invalid pattern %q", i, r.Match)
		}
		if err := cond.Check(r.When); err != nil {
			errf("disable_bad_condition", "disable[%d]: %v", i, err)
		}
	}

	ids := map[string]bool{}
	for i, c := range m.Components {
		if strings.TrimSpace(c.ID) == "" {
			errf("component_empty_id", "components[%d]: empty id", i)
			continue
		}
		if ids[c.ID] {
			errf("component_duplicate_id", "duplicate component id %q", c.ID)
		}
		ids[c.ID] = true
		for _, p := range c.Protocols {
			if !declared[p] {
				errf("component_unknown_protocol", "component %q implements undeclared protocol %q", c.ID, p)
			}
		}
		switch c.FailScope {
		case "", "component", "protocol", "pipeline":
		default:
			errf("component_bad_fail_scope", "component %q: fail_scope %q", c.ID, c.FailScope)
		}
	}
	for _, c := range m.Components {
		for _, dep := range c.RunAfter {
			if !ids[dep] {
				// Tolerated at runtime, but usually a typo worth surfacing.
				warnf("run_after_unknown", "component %q runs after unregistered %q", c.ID, dep)
			}
		}
	}
	return diags
}

// HasErrors reports whether any diagnostic is error-severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Disabler compiles the disable rules into the engine's enablement hook.
// Conditions are evaluated against vars on every call, so a rule gated on a
// run var behaves like a dynamic predicate.
func (m *Manifest) Disabler(vars map[string]string) func(id string) (bool, string) {
	rules := append([]DisableRule{}, m.Disable...)
	lookup := func(k string) string { return vars[k] }
	return func(id string) (bool, string) {
		for _, r := range rules {
			if r.When != "" {
				ok, err := cond.Evaluate(r.When, lookup)
				if err != nil || !ok {
					continue
				}
			}
			if ok, _ := doublestar.Match(r.Match, id); ok {
				return true, r.Reason
			}
		}
		return false, ""
	}
}
