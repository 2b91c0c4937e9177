package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNDJSONSink_OneValidObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNDJSONSink(&buf)

	sink.Emit(Event{Time: time.Now().UTC(), Kind: KindRunStarted, RunID: "r1"})
	sink.Emit(Event{Time: time.Now().UTC(), Kind: KindRetry, RunID: "r1", Scope: "component", Attempt: 1, Component: "parser"})

	sc := bufio.NewScanner(&buf)
	lines := 0
	for sc.Scan() {
		lines++
		var ev map[string]any
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if ev["event"] == nil || ev["event"] == "" {
			t.Fatalf("line %d missing event kind", lines)
		}
	}
	if lines != 2 {
		t.Fatalf("lines: got %d want 2", lines)
	}
}

func TestMulti_FansOut(t *testing.T) {
	var a, b Recorder
	sink := Multi(&a, nil, &b)
	sink.Emit(Event{Kind: KindWarning, Message: "m"})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("fanout: got %d/%d want 1/1", len(a.Events()), len(b.Events()))
	}
}

func TestZerologSink_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf))

	sink.Emit(Event{Kind: KindTerminalFailure, RunID: "r1", Scope: "pipeline", Message: "done for"})
	sink.Emit(Event{Kind: KindRetry, RunID: "r1", Scope: "protocol", Attempt: 2})

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d want 2\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], `"level":"error"`) || !strings.Contains(lines[0], `"scope":"pipeline"`) {
		t.Fatalf("terminal failure line: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[1], `"attempt":2`) {
		t.Fatalf("retry line: %s", lines[1])
	}
}
