// Package audit carries the security audit trail: the event model, the sink
// abstraction, and an asynchronous dispatcher that keeps persistence off the
// authentication hot path.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event statuses.
const (
	StatusSuccess       = "success"
	StatusFailure       = "failure"
	StatusSecurityAlert = "security_alert"
	StatusInfo          = "info"
)

// Event is one audit trail entry. UserID is nil when the actor could not be
// resolved, e.g. a login attempt against an unknown email.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Action     string            `json:"action"`
	UserID     *int64            `json:"user_id,omitempty"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resource_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Status     string            `json:"status"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// Appender is the persistence surface StoreSink writes through. The trail is
// append-only; implementations must never update or delete rows.
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// StoreSink persists events through an Appender. Append errors are dropped;
// the audit trail never fails an authentication operation.
type StoreSink struct {
	store Appender
}

func NewStoreSink(store Appender) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.store == nil {
		return
	}
	_ = s.store.Append(ctx, event)
}
