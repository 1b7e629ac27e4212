package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event types emitted after successful mutations and exports.
const (
	EventOrderCreated    = "order.created"
	EventOrderUpdated    = "order.updated"
	EventOrderDeleted    = "order.deleted"
	EventExportCompleted = "export.completed"
)

// Event is the JSON payload published to the event broker.
type Event struct {
	Type    string    `json:"type"`
	UserID  int       `json:"user_id"`
	OrderID int       `json:"order_id,omitempty"`
	Month   string    `json:"month,omitempty"`
	At      time.Time `json:"at"`
}

// EventPublisher is the broker boundary. *mq.MQ satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Events emits domain events to a configured channel. A nil *Events is a
// no-op, so services never need to care whether a broker is configured.
type Events struct {
	publisher EventPublisher
	channel   string
}

func NewEvents(publisher EventPublisher, channel string) *Events {
	return &Events{publisher: publisher, channel: channel}
}

// Emit publishes the event fire-and-forget: failures are logged and never
// surfaced to the request that triggered them.
func (e *Events) Emit(ctx context.Context, event Event) {
	if e == nil || e.publisher == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "marshal event", "type", event.Type, "error", err)
		return
	}
	attrs := map[string]string{"type": event.Type}
	if _, err := e.publisher.Publish(ctx, e.channel, data, attrs); err != nil {
		slog.ErrorContext(ctx, "publish event", "type", event.Type, "channel", e.channel, "error", err)
	}
}
