// Package events fans gateway activity out to observers.
//
// Session and registry changes are published once to a Bus, which hands
// them to every registered Sink (MQTT, InfluxDB, the audit log, WebSocket
// clients). Sinks are best-effort: a failing sink is logged and never
// affects the request or refresh that produced the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names an event kind. Dots separate the subject from the verb.
type Type string

// Event types.
const (
	SessionCreated    Type = "session.created"
	SessionFailed     Type = "session.failed"
	SessionTerminated Type = "session.terminated"
	SessionEnded      Type = "session.ended"

	RegistryRefreshed     Type = "registry.refreshed"
	RegistryRefreshFailed Type = "registry.refresh_failed"
)

// Event is a single gateway occurrence.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	DeviceID   string    `json:"device_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Devices    int       `json:"devices,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// New returns an event of the given type stamped with a fresh ID and the current time.
func New(t Type) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives published events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Event) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Publisher is implemented by anything that accepts events.
// Components depend on this rather than on *Bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}
