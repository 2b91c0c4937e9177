package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify_PlainErrorIsComponentScope(t *testing.T) {
	base := errors.New("boom")
	fe := Classify(base)
	if fe.Scope != ScopeComponent {
		t.Fatalf("scope: got %v want %v", fe.Scope, ScopeComponent)
	}
	if !errors.Is(fe, base) {
		t.Fatalf("expected classified error to wrap the original")
	}
}

func TestClassify_PreservesScopedErrorThroughWrapping(t *testing.T) {
	fe := ProtocolFailure("stage invalid")
	wrapped := fmt.Errorf("invoke: %w", fe)
	got := Classify(wrapped)
	if got != fe {
		t.Fatalf("expected the original *Error back, got %v", got)
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Fatalf("got %v want nil", got)
	}
}

func TestEscalate_StepsOneScopeAndKeepsOrigin(t *testing.T) {
	fe := ComponentFailure("bad value")
	fe.Component = "parser"
	fe.Protocol = "gather"

	up := Escalate(fe)
	if up.Scope != ScopeProtocol {
		t.Fatalf("scope: got %v want %v", up.Scope, ScopeProtocol)
	}
	if up.Component != "parser" || up.Protocol != "gather" {
		t.Fatalf("origin lost: %+v", up)
	}
	if !errors.Is(up, fe) {
		t.Fatalf("escalated error must wrap the exhausted one")
	}

	top := Escalate(up)
	if top.Scope != ScopePipeline {
		t.Fatalf("scope: got %v want %v", top.Scope, ScopePipeline)
	}
	if again := Escalate(top); again != top {
		t.Fatalf("pipeline scope must not escalate further")
	}
}

func TestErrorString(t *testing.T) {
	fe := &Error{Scope: ScopeComponent, Component: "parser", Protocol: "gather", Message: "bad value"}
	want := "component failure [protocol=gather] [component=parser]: bad value"
	if got := fe.Error(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestScopeString(t *testing.T) {
	cases := map[Scope]string{
		ScopeComponent: "component",
		ScopeProtocol:  "protocol",
		ScopePipeline:  "pipeline",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("scope %d: got %q want %q", int(s), got, want)
		}
	}
}
