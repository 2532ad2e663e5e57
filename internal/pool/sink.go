package pool

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/codec"
)

// EventKind classifies a notification delivered to channel consumers.
type EventKind string

const (
	EventEstablished      EventKind = "established"
	EventMessage          EventKind = "message"
	EventReconnected      EventKind = "reconnected"
	EventClosed           EventKind = "closed"
	EventError            EventKind = "error"
	EventPermanentFailure EventKind = "permanent_failure"
)

// Event is one decoded inbound message or lifecycle notification.
type Event struct {
	Kind      EventKind
	ChannelID uuid.UUID
	At        time.Time
	Message   *codec.Message // set for EventMessage only
	Err       error          // set for EventError and EventPermanentFailure
}

// Sink receives decoded inbound messages and lifecycle events for a category.
// Delivery is fire-and-forget; implementations must not block the caller for
// long and must be safe for concurrent use.
type Sink interface {
	Notify(category Category, tenantID string, ev Event)
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(category Category, tenantID string, ev Event)

func (f SinkFunc) Notify(category Category, tenantID string, ev Event) {
	f(category, tenantID, ev)
}

// LogSink logs every event. Useful as a default consumer during bring-up.
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements Sink.
func (s LogSink) Notify(category Category, tenantID string, ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"kind", ev.Kind,
		"channel_id", ev.ChannelID,
		"category", category,
		"tenant_id", tenantID,
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
	}
	if ev.Message != nil {
		attrs = append(attrs, "message_type", ev.Message.Type)
	}

	logger.Info("channel event", attrs...)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

// Notify implements Sink.
func (m MultiSink) Notify(category Category, tenantID string, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(category, tenantID, ev)
		}
	}
}
