package agentloop

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf)
	sink.Emit(Event{Type: EventRunStarted, SessionID: "s1"})
	sink.Emit(Event{Type: EventStepStarted, SessionID: "s1", Step: 1})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if first["type"] != "run.started" || first["session_id"] != "s1" {
		t.Errorf("unexpected event: %v", first)
	}
	if _, ok := first["step"]; ok {
		t.Error("step should be omitted when zero")
	}
	if err := sink.Err(); err != nil {
		t.Errorf("unexpected sink error: %v", err)
	}
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("disk full")
}

func TestJSONLSinkStickyError(t *testing.T) {
	w := &failingWriter{}
	sink := NewJSONLSink(w)
	sink.Emit(Event{Type: EventRunStarted})
	sink.Emit(Event{Type: EventRunCompleted})

	if sink.Err() == nil {
		t.Fatal("expected sticky error")
	}
	if w.writes != 1 {
		t.Errorf("expected writes to stop after first failure, got %d", w.writes)
	}
}

func TestBufferSinkPreservesOrder(t *testing.T) {
	sink := NewBufferSink()
	types := []EventType{EventRunStarted, EventStepStarted, EventStepCompleted, EventRunCompleted}
	for _, et := range types {
		sink.Emit(Event{Type: et})
	}
	events := sink.Events()
	if len(events) != len(types) {
		t.Fatalf("expected %d events, got %d", len(types), len(events))
	}
	for i, et := range types {
		if events[i].Type != et {
			t.Errorf("position %d: expected %s, got %s", i, et, events[i].Type)
		}
	}

	var buf bytes.Buffer
	if err := sink.WriteJSONL(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != len(types) {
		t.Errorf("expected %d lines, got %d", len(types), got)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a := NewBufferSink()
	b := NewBufferSink()
	multi := MultiSink{a, b}
	multi.Emit(Event{Type: EventRunStarted})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Error("expected the event in both sinks")
	}
}
