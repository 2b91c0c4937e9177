// Package trace carries the diagnostic events a pipeline run emits. The
// engine emits; sinks decide how to format or persist. A nil sink drops
// everything.
package trace

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

type Kind string

const (
	KindRunStarted       Kind = "run_started"
	KindRunCompleted     Kind = "run_completed"
	KindProtocolStarted  Kind = "protocol_started"
	KindComponentSkipped Kind = "component_skipped"
	KindComponentOmitted Kind = "component_omitted"
	KindOrderUnknownID   Kind = "order_unknown_id"
	KindRetry            Kind = "retry"
	KindEscalated        Kind = "escalated"
	KindTerminalFailure  Kind = "terminal_failure"
	KindWarning          Kind = "warning"
)

type Event struct {
	Time      time.Time `json:"ts"`
	Kind      Kind      `json:"event"`
	RunID     string    `json:"run_id,omitempty"`
	Protocol  string    `json:"protocol,omitempty"`
	Component string    `json:"component,omitempty"`
	// Scope of a retry, escalation or terminal failure:
	// "component", "protocol" or "pipeline".
	Scope   string `json:"scope,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Multi fans every event out to all sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ev Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(ev)
			}
		}
	})
}

// NDJSONSink appends one JSON object per event to w. Safe for concurrent
// use by multiple runs sharing a sink.
type NDJSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{enc: json.NewEncoder(w)}
}

func (s *NDJSONSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(ev) // diagnostics are best-effort; never fail the run
}

// Recorder collects events in memory. Test helper and attempt-history source.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}
