package snapshot

import (
	"testing"

	"github.com/kcze/conveyor/internal/pipeline/component"
)

func TestCaptureRestore_RoundTrip(t *testing.T) {
	args := component.NewArgs()
	args.Set("task", "summarize")
	args.Set("budget", int64(12))
	args.Set("tags", []any{"a", "b"})

	snap, err := Capture(args)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	args.Set("task", "corrupted")
	args.Delete("budget")
	args.Set("extra", true)

	if err := snap.Restore(args); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := args.GetString("task", ""); got != "summarize" {
		t.Fatalf("task: got %q want %q", got, "summarize")
	}
	if _, ok := args.Get("extra"); ok {
		t.Fatalf("key added during the failed attempt survived restore")
	}
	if _, ok := args.Get("budget"); !ok {
		t.Fatalf("key deleted during the failed attempt was not restored")
	}
}

func TestRestore_InPlace(t *testing.T) {
	args := component.NewArgs()
	args.Set("k", "v")
	held := args // same pointer a component would retain

	snap, err := Capture(args)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	args.Set("k", "mutated")
	if err := snap.Restore(args); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := held.GetString("k", ""); got != "v" {
		t.Fatalf("held reference sees %q want %q", got, "v")
	}
}

func TestMatches_DetectsMutationAndRestoration(t *testing.T) {
	args := component.NewArgs()
	args.Set("a", "1")
	args.Set("b", "2")
	args.Set("c", "3")

	snap, err := Capture(args)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	ok, err := snap.Matches(args)
	if err != nil || !ok {
		t.Fatalf("fresh capture must match: ok=%v err=%v", ok, err)
	}

	args.Set("b", "changed")
	ok, err = snap.Matches(args)
	if err != nil || ok {
		t.Fatalf("mutated args must not match: ok=%v err=%v", ok, err)
	}

	if err := snap.Restore(args); err != nil {
		t.Fatalf("restore: %v", err)
	}
	ok, err = snap.Matches(args)
	if err != nil || !ok {
		t.Fatalf("restored args must match bit-for-bit: ok=%v err=%v", ok, err)
	}
}

func TestDigest_StableAcrossEqualStates(t *testing.T) {
	a := component.NewArgs()
	a.Set("x", "1")
	a.Set("y", "2")
	a.Set("z", "3")

	// Same state, different insertion order.
	b := component.NewArgs()
	b.Set("z", "3")
	b.Set("y", "2")
	b.Set("x", "1")

	sa, err := Capture(a)
	if err != nil {
		t.Fatalf("capture a: %v", err)
	}
	sb, err := Capture(b)
	if err != nil {
		t.Fatalf("capture b: %v", err)
	}
	if sa.Digest() != sb.Digest() {
		t.Fatalf("digest differs for equal states: %s vs %s", sa.Digest(), sb.Digest())
	}
	if len(sa.Digest()) != 64 {
		t.Fatalf("digest length: got %d want 64 hex chars", len(sa.Digest()))
	}
}
