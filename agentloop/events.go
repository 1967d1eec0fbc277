package agentloop

import (
	"encoding/json"
	"io"
	"sync"
)

// EventType identifies the type of session event.
type EventType string

const (
	EventRunStarted       EventType = "run.started"
	EventStepStarted      EventType = "step.started"
	EventAssistantMessage EventType = "assistant.message"
	EventToolExecuted     EventType = "tool.executed"
	EventToolRejected     EventType = "tool.rejected"
	EventContextPruned    EventType = "context.pruned"
	EventStepCompleted    EventType = "step.completed"
	EventRunCompleted     EventType = "run.completed"
	EventRunFailed        EventType = "run.failed"
)

// Event is a structured record of one session transition. Events carry both
// a human-readable UTC timestamp and a numeric timestamp for sorting.
type Event struct {
	Type        EventType              `json:"type"`
	Timestamp   string                 `json:"timestamp"`
	TimestampMs int64                  `json:"timestamp_ms"`
	SessionID   string                 `json:"session_id"`
	Step        int                    `json:"step,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// EventSink receives session events. The session calls Emit synchronously,
// in the exact order transitions occur, so sinks observe a totally ordered
// stream. Implementations must be safe for use from a single goroutine.
type EventSink interface {
	Emit(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// JSONLSink writes one JSON line per event to an io.Writer. Write errors are
// sticky: the first error is retained and later events are dropped.
type JSONLSink struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewJSONLSink creates a JSONLSink writing to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

func (s *JSONLSink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		s.err = err
		return
	}
	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil {
		s.err = err
	}
}

// Err returns the first write error encountered, if any.
func (s *JSONLSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// BufferSink accumulates events in memory for end-of-run aggregation.
type BufferSink struct {
	mu     sync.Mutex
	events []Event
}

// NewBufferSink creates an empty BufferSink.
func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (s *BufferSink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the buffered events in emission order.
func (s *BufferSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// WriteJSONL writes the buffered events to w, one JSON line per event.
func (s *BufferSink) WriteJSONL(w io.Writer) error {
	for _, event := range s.Events() {
		line, err := json.Marshal(event)
		if err != nil {
			return err
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// MultiSink fans out each event to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(event Event) {
	for _, sink := range m {
		sink.Emit(event)
	}
}
