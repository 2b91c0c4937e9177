package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kcze/conveyor/internal/pipeline/component"
	"github.com/kcze/conveyor/internal/pipeline/fault"
	"github.com/kcze/conveyor/internal/pipeline/snapshot"
	"github.com/kcze/conveyor/internal/pipeline/trace"
)

// run is the per-Run mutable state: the shared argument bag, the result
// under construction, and the retry bookkeeping.
type run struct {
	x    *Executor
	id   string
	args *component.Args
	res  *Result
	max  int
}

// Run executes one full pipeline pass over the resolved orders. The caller
// observes either full success or the terminal pipeline-scope failure after
// retries at every scope are exhausted; narrower failures are consumed
// internally.
func (x *Executor) Run(ctx context.Context, args *component.Args) (*Result, error) {
	if args == nil {
		args = component.NewArgs()
	}
	runID := x.opts.RunID
	if runID == "" {
		runID = newRunID()
	}
	r := &run{
		x:    x,
		id:   runID,
		args: args,
		res:  &Result{RunID: runID, Outputs: map[string][]any{}},
		max:  x.opts.MaxRetries,
	}

	x.emit(trace.Event{Kind: trace.KindRunStarted, RunID: runID})
	r.reportOrderDiagnostics()

	snap, err := snapshot.Capture(args)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; {
		passErr := r.pipelinePass(ctx)
		if passErr == nil {
			x.emit(trace.Event{Kind: trace.KindRunCompleted, RunID: runID})
			return r.res, nil
		}
		fe, retryable := retryableAt(ctx, passErr, fault.ScopePipeline)
		if !retryable {
			return nil, passErr
		}
		attempt++
		r.record(fault.ScopePipeline, fe.Protocol, fe.Component, attempt, fe.Message)
		if attempt >= r.max {
			x.emit(trace.Event{
				Kind:    trace.KindTerminalFailure,
				RunID:   runID,
				Scope:   fault.ScopePipeline.String(),
				Attempt: attempt,
				Message: fe.Error(),
				Reason:  fmt.Sprintf("%d retries recorded across all scopes", len(r.res.Attempts)),
			})
			return nil, fe
		}
		if err := snap.Restore(args); err != nil {
			return nil, err
		}
		clear(r.res.Outputs)
		r.emitRetry(fault.ScopePipeline, fe.Protocol, fe.Component, attempt)
		if err := sleepFor(ctx, x.backoffDelay(runID, "", "", attempt)); err != nil {
			return nil, err
		}
	}
}

func (r *run) pipelinePass(ctx context.Context) error {
	for i := range r.x.pipeline {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.protocolLoop(ctx, &r.x.pipeline[i]); err != nil {
			return err
		}
	}
	return nil
}

// protocolLoop runs one protocol stage, retrying the entire stage from its
// first component when a protocol-scope failure occurs. Stage outputs are
// committed only on success, so a retried pass never duplicates values.
func (r *run) protocolLoop(ctx context.Context, p *component.Protocol) error {
	execOrder := r.x.orders[p.Name]
	snap, err := snapshot.Capture(r.args)
	if err != nil {
		return err
	}
	for attempt := 0; ; {
		r.x.emit(trace.Event{
			Kind:     trace.KindProtocolStarted,
			RunID:    r.id,
			Protocol: p.Name,
			Attempt:  attempt + 1,
		})
		vals, passErr := r.stagePass(ctx, p, execOrder)
		if passErr == nil {
			r.res.Outputs[p.Name] = append(r.res.Outputs[p.Name], vals...)
			return nil
		}
		fe, retryable := retryableAt(ctx, passErr, fault.ScopeProtocol)
		if !retryable {
			return passErr
		}
		attempt++
		r.record(fault.ScopeProtocol, p.Name, fe.Component, attempt, fe.Message)
		if attempt >= r.max {
			up := fault.Escalate(fe)
			r.emitEscalated(up, p.Name)
			return up
		}
		if err := snap.Restore(r.args); err != nil {
			return err
		}
		r.emitRetry(fault.ScopeProtocol, p.Name, fe.Component, attempt)
		if err := sleepFor(ctx, r.x.backoffDelay(r.id, p.Name, "", attempt)); err != nil {
			return err
		}
	}
}

// stagePass invokes the stage's components once each, in resolved order.
// Cancellation is observed before each dispatch, never mid-invocation.
func (r *run) stagePass(ctx context.Context, p *component.Protocol, comps []component.Component) ([]any, error) {
	var vals []any
	for _, c := range comps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if off, reason := r.disabled(c); off {
			r.res.Skipped = append(r.res.Skipped, Skip{Protocol: p.Name, Component: c.ID(), Reason: reason})
			r.x.emit(trace.Event{
				Kind:      trace.KindComponentSkipped,
				RunID:     r.id,
				Protocol:  p.Name,
				Component: c.ID(),
				Reason:    reason,
			})
			continue
		}
		out, err := r.componentLoop(ctx, p, c)
		if err != nil {
			return nil, err
		}
		vals = append(vals, out...)
	}
	return vals, nil
}

// componentLoop invokes one component, retrying only that component on
// component-scope failures with the argument bag restored to its
// pre-attempt snapshot between attempts. Exhaustion escalates to a
// protocol-scope failure. Wider-scope failures raised directly by the
// component pass through untouched; rollback for those happens at their
// own scope.
func (r *run) componentLoop(ctx context.Context, p *component.Protocol, c component.Component) ([]any, error) {
	for attempt := 0; ; {
		snap, err := snapshot.Capture(r.args)
		if err != nil {
			return nil, err
		}
		out, callErr := p.Call(ctx, c, r.args)
		if callErr == nil {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fe := fault.Classify(callErr)
		if fe.Protocol == "" {
			fe.Protocol = p.Name
		}
		if fe.Component == "" {
			fe.Component = c.ID()
		}
		if fe.Scope != fault.ScopeComponent {
			return nil, fe
		}
		attempt++
		r.record(fault.ScopeComponent, p.Name, c.ID(), attempt, fe.Message)
		if attempt >= r.max {
			up := fault.Escalate(fe)
			r.emitEscalated(up, p.Name)
			return nil, up
		}
		if err := snap.Restore(r.args); err != nil {
			return nil, err
		}
		r.emitRetry(fault.ScopeComponent, p.Name, c.ID(), attempt)
		if err := sleepFor(ctx, r.x.backoffDelay(r.id, p.Name, c.ID(), attempt)); err != nil {
			return nil, err
		}
	}
}

// disabled resolves enablement immediately before an invocation: the
// registration boundary's hook first, then the component's own state.
// Predicates run fresh every time; nothing is cached across runs.
func (r *run) disabled(c component.Component) (bool, string) {
	if hook := r.x.opts.DisabledBy; hook != nil {
		if off, reason := hook(c.ID()); off {
			return true, reason
		}
	}
	if on, reason := component.EnabledState(c); !on {
		return true, reason
	}
	return false, ""
}

// retryableAt reports whether err is a failure the given scope's loop owns.
// Cancellation and infrastructure errors are never retried; wider scopes
// bubble up to their own loop.
func retryableAt(ctx context.Context, err error, scope fault.Scope) (*fault.Error, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return nil, false
	}
	if fe.Scope != scope {
		return nil, false
	}
	return fe, true
}

func (r *run) record(scope fault.Scope, protocol, componentID string, attempt int, reason string) {
	r.res.Attempts = append(r.res.Attempts, Attempt{
		Scope:     scope,
		Protocol:  protocol,
		Component: componentID,
		Attempt:   attempt,
		Reason:    reason,
	})
}

func (r *run) emitRetry(scope fault.Scope, protocol, componentID string, attempt int) {
	r.x.emit(trace.Event{
		Kind:      trace.KindRetry,
		RunID:     r.id,
		Protocol:  protocol,
		Component: componentID,
		Scope:     scope.String(),
		Attempt:   attempt,
	})
}

func (r *run) emitEscalated(fe *fault.Error, protocol string) {
	r.x.emit(trace.Event{
		Kind:      trace.KindEscalated,
		RunID:     r.id,
		Protocol:  protocol,
		Component: fe.Component,
		Scope:     fe.Scope.String(),
		Message:   fe.Message,
	})
}

// reportOrderDiagnostics surfaces manual-order omissions and unknown IDs
// once per run. Omission is often unintentional and must be visible without
// halting the run.
func (r *run) reportOrderDiagnostics() {
	for _, p := range sortedKeys(r.x.omitted) {
		for _, id := range r.x.omitted[p] {
			r.x.emit(trace.Event{
				Kind:      trace.KindComponentOmitted,
				RunID:     r.id,
				Protocol:  p,
				Component: id,
				Reason:    "eligible component missing from explicit order",
			})
		}
	}
	for _, p := range sortedKeys(r.x.unknown) {
		for _, id := range r.x.unknown[p] {
			r.res.Warnings = append(r.res.Warnings, fmt.Sprintf("protocol %s: explicit order names unknown component %q", p, id))
			r.x.emit(trace.Event{
				Kind:      trace.KindOrderUnknownID,
				RunID:     r.id,
				Protocol:  p,
				Component: id,
				Reason:    "explicit order entry matches no registered component",
			})
		}
	}
}
