// Package engine executes a pipeline: an ordered sequence of protocol
// stages over a set of registered components, with three-tier failure
// recovery (component, protocol, pipeline) and argument rollback at every
// attempt boundary.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kcze/conveyor/internal/pipeline/component"
	"github.com/kcze/conveyor/internal/pipeline/fault"
	"github.com/kcze/conveyor/internal/pipeline/order"
	"github.com/kcze/conveyor/internal/pipeline/trace"
)

// DefaultMaxRetries bounds attempts at every scope: a component is invoked
// at most this many times per protocol pass, a protocol stage runs at most
// this many passes per pipeline pass, and so on up.
const DefaultMaxRetries = 3

type Options struct {
	// RunID identifies one run in diagnostics. When empty, a fresh ULID is
	// generated per Run call.
	RunID string

	// MaxRetries applies identically at component, protocol and pipeline
	// scope. Defaults to DefaultMaxRetries when zero or negative.
	MaxRetries int

	Backoff BackoffConfig

	// Sink receives diagnostic events. nil discards them.
	Sink trace.Sink

	// Orders supplies explicit per-protocol execution orders. A listed
	// protocol bypasses run_after resolution entirely; eligible components
	// missing from the list are reported, not silently dropped.
	Orders map[string][]string

	// DisabledBy is an optional registration-boundary hook consulted
	// before each invocation, ahead of the component's own enablement.
	// A true return skips the component with the given reason.
	DisabledBy func(id string) (bool, string)
}

func (o *Options) applyDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Sink == nil {
		o.Sink = trace.SinkFunc(func(trace.Event) {})
	}
}

// Executor runs one pipeline over one component set. Execution orders are
// resolved at construction and cached; build a new Executor when the
// component set changes.
type Executor struct {
	pipeline component.Pipeline
	opts     Options

	orders  map[string][]component.Component
	omitted map[string][]string
	unknown map[string][]string
}

// New resolves the execution order for every protocol stage. A dependency
// cycle is fatal here: it aborts construction and is never retried.
func New(pipeline component.Pipeline, comps []component.Component, opts Options) (*Executor, error) {
	opts.applyDefaults()

	seen := map[string]bool{}
	for _, c := range comps {
		if c.ID() == "" {
			return nil, fmt.Errorf("component with empty ID")
		}
		if seen[c.ID()] {
			return nil, fmt.Errorf("duplicate component ID: %s", c.ID())
		}
		seen[c.ID()] = true
	}

	x := &Executor{
		pipeline: pipeline,
		opts:     opts,
		orders:   map[string][]component.Component{},
		omitted:  map[string][]string{},
		unknown:  map[string][]string{},
	}
	stageNames := map[string]bool{}
	for _, p := range pipeline {
		if p.Name == "" {
			return nil, fmt.Errorf("protocol with empty name")
		}
		if stageNames[p.Name] {
			return nil, fmt.Errorf("duplicate protocol in pipeline: %s", p.Name)
		}
		stageNames[p.Name] = true
		if p.Implements == nil || p.Call == nil {
			return nil, fmt.Errorf("protocol %s: missing Implements or Call", p.Name)
		}

		eligible := make([]component.Component, 0, len(comps))
		for _, c := range comps {
			if p.Implements(c) {
				eligible = append(eligible, c)
			}
		}

		if ids, manual := opts.Orders[p.Name]; manual {
			ordered, omitted, unknown := order.Explicit(eligible, ids)
			x.orders[p.Name] = ordered
			x.omitted[p.Name] = omitted
			x.unknown[p.Name] = unknown
			continue
		}
		ordered, err := order.Resolve(eligible)
		if err != nil {
			return nil, fmt.Errorf("resolve order for protocol %s: %w", p.Name, err)
		}
		x.orders[p.Name] = ordered
	}
	return x, nil
}

// StagePlan describes the resolved order of one protocol stage.
type StagePlan struct {
	Protocol string
	Order    []string
	Omitted  []string
	Unknown  []string
}

// Plan returns the cached execution orders in pipeline order.
func (x *Executor) Plan() []StagePlan {
	plans := make([]StagePlan, 0, len(x.pipeline))
	for _, p := range x.pipeline {
		sp := StagePlan{Protocol: p.Name}
		for _, c := range x.orders[p.Name] {
			sp.Order = append(sp.Order, c.ID())
		}
		sp.Omitted = append(sp.Omitted, x.omitted[p.Name]...)
		sp.Unknown = append(sp.Unknown, x.unknown[p.Name]...)
		plans = append(plans, sp)
	}
	return plans
}

// Result is what the caller observes on full success.
type Result struct {
	RunID string

	// Outputs holds the aggregated values per protocol, concatenated in
	// execution order.
	Outputs map[string][]any

	// Skipped lists components that were disabled at dispatch time,
	// with their declared reasons. Diagnostics only.
	Skipped []Skip

	// Attempts is the retry history of the run across all scopes.
	Attempts []Attempt

	Warnings []string
}

type Skip struct {
	Protocol  string
	Component string
	Reason    string
}

type Attempt struct {
	Scope     fault.Scope
	Protocol  string
	Component string
	// Attempt numbers the retry being scheduled, starting at 1.
	Attempt int
	Reason  string
}

func newRunID() string {
	return ulid.Make().String()
}

func (x *Executor) emit(ev trace.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	x.opts.Sink.Emit(ev)
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
