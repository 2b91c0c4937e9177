package main

import (
	"context"
	"fmt"

	"github.com/kcze/conveyor/internal/pipeline/component"
	"github.com/kcze/conveyor/internal/pipeline/fault"
	"github.com/kcze/conveyor/internal/pipeline/manifest"
)

// scripted is a manifest-defined component used for plan verification and
// smoke runs: it emits fixed values and can be told to fail its first N
// invocations at a chosen scope before succeeding.
type scripted struct {
	spec  manifest.ComponentSpec
	impl  map[string]bool
	calls int
}

func newScripted(spec manifest.ComponentSpec) *scripted {
	impl := make(map[string]bool, len(spec.Protocols))
	for _, p := range spec.Protocols {
		impl[p] = true
	}
	return &scripted{spec: spec, impl: impl}
}

func (s *scripted) ID() string         { return s.spec.ID }
func (s *scripted) RunAfter() []string { return s.spec.RunAfter }

func (s *scripted) Enabled() component.Enablement {
	if s.spec.Enabled == nil {
		return component.Fixed(true)
	}
	return component.Fixed(*s.spec.Enabled)
}

func (s *scripted) DisabledReason() string { return s.spec.DisabledReason }

func (s *scripted) implements(protocol string) bool { return s.impl[protocol] }

func (s *scripted) invoke(context.Context, *component.Args) ([]any, error) {
	s.calls++
	if s.calls <= s.spec.FailFirst {
		msg := fmt.Sprintf("scripted failure %d of %d", s.calls, s.spec.FailFirst)
		switch s.spec.FailScope {
		case "protocol":
			return nil, fault.ProtocolFailure(msg)
		case "pipeline":
			return nil, fault.PipelineFailure(msg)
		default:
			return nil, fault.ComponentFailure(msg)
		}
	}
	out := make([]any, len(s.spec.Emits))
	for i, v := range s.spec.Emits {
		out[i] = v
	}
	return out, nil
}

// buildPipeline turns a manifest into a pipeline of scripted stages. Each
// declared protocol dispatches to the scripted component's invoke.
func buildPipeline(m *manifest.Manifest) (component.Pipeline, []component.Component) {
	comps := make([]component.Component, 0, len(m.Components))
	for _, spec := range m.Components {
		comps = append(comps, newScripted(spec))
	}

	pipeline := make(component.Pipeline, 0, len(m.Pipeline.Protocols))
	for _, name := range m.Pipeline.Protocols {
		name := name
		pipeline = append(pipeline, component.Protocol{
			Name: name,
			Implements: func(c component.Component) bool {
				sc, ok := c.(*scripted)
				return ok && sc.implements(name)
			},
			Call: func(ctx context.Context, c component.Component, args *component.Args) ([]any, error) {
				return c.(*scripted).invoke(ctx, args)
			},
		})
	}
	return pipeline, comps
}
