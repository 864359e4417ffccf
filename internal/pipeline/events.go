package pipeline

import (
	"sync"
	"time"
)

// EventType classifies messages emitted while a session runs.
type EventType string

const (
	EventRecordingStarted    EventType = "recording_started"
	EventRecordingStopped    EventType = "recording_stopped"
	EventTooShort            EventType = "too_short"
	EventNoSpeech            EventType = "no_speech"
	EventTranscriptionFailed EventType = "transcription_failed"
	EventTranscriptReady     EventType = "transcript_ready"
	EventInjectionSkipped    EventType = "injection_skipped"
	EventInjectionFailed     EventType = "injection_failed"
	EventCaptureFailed       EventType = "capture_failed"
	EventBusy                EventType = "busy"
)

// Event is a sequenced status or result message for presentation
// consumers. Each event carries enough to render or persist without
// querying the pipeline again.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Session   uint64    `json:"session"`
	Type      EventType `json:"type"`
	Message   string    `json:"message,omitempty"`
	Raw       string    `json:"raw,omitempty"`
	Corrected *string   `json:"corrected,omitempty"`
	App       string    `json:"app,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// EventBus stores recent events and fans them out to subscribers.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	subs      map[int]chan Event
	nextSub   int
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[int]chan Event),
	}
}

// Publish appends one event, assigns sequence and timestamp, and fans it
// out to subscribers without blocking. Slow subscribers lose events
// rather than stall the pipeline.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	// Fan out under the lock so a concurrent unsubscribe cannot close a
	// channel mid-send. Sends never block.
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	b.mu.Unlock()
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe returns a channel of future events and a cancel func that
// closes it. The channel is buffered; consumers that fall behind miss
// events instead of blocking Publish.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, 64)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}
