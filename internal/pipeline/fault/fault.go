// Package fault defines the three-tier failure taxonomy of a pipeline run.
//
// A failure always names the narrowest scope it originated at. The engine
// alone decides to retry in place, escalate one level, or surface to the
// caller; components never decide retry counts.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Scope orders failures by blast radius.
type Scope int

const (
	// ScopeComponent: one component's single invocation failed.
	ScopeComponent Scope = iota
	// ScopeProtocol: the whole protocol stage is invalid across all
	// components participating in it.
	ScopeProtocol
	// ScopePipeline: the entire pipeline run is invalid across all
	// protocols.
	ScopePipeline
)

func (s Scope) String() string {
	switch s {
	case ScopeComponent:
		return "component"
	case ScopeProtocol:
		return "protocol"
	case ScopePipeline:
		return "pipeline"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Error is a scoped pipeline failure. Component and Protocol identify where
// the failure originated; either may be empty when unknown at raise time
// (the engine fills them in during classification).
type Error struct {
	Scope     Scope
	Component string
	Protocol  string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Scope.String())
	b.WriteString(" failure")
	if e.Protocol != "" {
		fmt.Fprintf(&b, " [protocol=%s]", e.Protocol)
	}
	if e.Component != "" {
		fmt.Fprintf(&b, " [component=%s]", e.Component)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ComponentFailure raises a component-scope failure. This is the default
// scope for any error a component returns.
func ComponentFailure(msg string) *Error {
	return &Error{Scope: ScopeComponent, Message: msg}
}

// ProtocolFailure raises a failure invalidating the entire protocol stage.
func ProtocolFailure(msg string) *Error {
	return &Error{Scope: ScopeProtocol, Message: msg}
}

// PipelineFailure raises a failure invalidating the entire run.
func PipelineFailure(msg string) *Error {
	return &Error{Scope: ScopePipeline, Message: msg}
}

// Classify normalizes err into a scoped failure. A plain error becomes a
// component-scope failure wrapping the original. nil stays nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Scope: ScopeComponent, Message: err.Error(), Cause: err}
}

// Escalate converts an exhausted failure into a failure one scope wider,
// keeping the origin identity and the cause chain. Escalating a
// pipeline-scope failure returns it unchanged; there is nowhere wider to go.
func Escalate(e *Error) *Error {
	if e == nil || e.Scope >= ScopePipeline {
		return e
	}
	return &Error{
		Scope:     e.Scope + 1,
		Component: e.Component,
		Protocol:  e.Protocol,
		Message:   e.Message,
		Cause:     e,
	}
}
