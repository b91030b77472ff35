package audit

import (
	"context"
	"strings"

	"github.com/nerrad567/whep-gateway/internal/events"
)

// SourceGateway marks entries written by the gateway itself.
const SourceGateway = "gateway"

// Sink writes session events to the audit trail.
// Registry events are not audited; they are frequent and carry no session.
type Sink struct {
	repo Repository
}

// NewSink returns an events.Sink backed by repo.
func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo}
}

// Publish implements events.Sink.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	if !strings.HasPrefix(string(e.Type), "session.") {
		return nil
	}

	entry := &Entry{
		Action:    string(e.Type),
		DeviceID:  e.DeviceID,
		SessionID: e.SessionID,
		Source:    SourceGateway,
		CreatedAt: e.Timestamp,
	}
	if e.Error != "" || e.DurationMS > 0 {
		entry.Details = map[string]any{}
		if e.Error != "" {
			entry.Details["error"] = e.Error
		}
		if e.DurationMS > 0 {
			entry.Details["duration_ms"] = e.DurationMS
		}
	}
	return s.repo.Create(ctx, entry)
}
