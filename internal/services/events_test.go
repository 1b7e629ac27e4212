package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	channels []string
	payloads [][]byte
	attrs    []map[string]string
	err      error
}

func (p *memPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, data)
	p.attrs = append(p.attrs, attrs)
	return "msg-1", nil
}

func TestEventsEmit(t *testing.T) {
	publisher := &memPublisher{}
	events := NewEvents(publisher, "order-events")

	events.Emit(context.Background(), Event{
		Type:    EventOrderCreated,
		UserID:  1,
		OrderID: 7,
		Month:   "2024-03",
	})

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "order-events", publisher.channels[0])
	assert.Equal(t, map[string]string{"type": EventOrderCreated}, publisher.attrs[0])

	var event Event
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &event))
	assert.Equal(t, EventOrderCreated, event.Type)
	assert.Equal(t, 1, event.UserID)
	assert.Equal(t, 7, event.OrderID)
	assert.Equal(t, "2024-03", event.Month)
	assert.WithinDuration(t, time.Now(), event.At, time.Minute)
}

func TestEventsNilSafe(t *testing.T) {
	var events *Events
	// Must not panic with no broker configured.
	events.Emit(context.Background(), Event{Type: EventOrderCreated})
	NewEvents(nil, "order-events").Emit(context.Background(), Event{Type: EventOrderDeleted})
}

func TestEventsPublishFailureSwallowed(t *testing.T) {
	events := NewEvents(&memPublisher{err: errors.New("broker down")}, "order-events")
	events.Emit(context.Background(), Event{Type: EventOrderUpdated, UserID: 1})
}

func TestOrderServiceEmitsEvents(t *testing.T) {
	publisher := &memPublisher{}
	svc := NewOrderService(newMemOrderRepo(), NewEvents(publisher, "order-events"))
	ctx := context.Background()

	created, err := svc.Add(ctx, 1, 100, "A-1", day(2024, time.March, 5))
	require.NoError(t, err)
	_, err = svc.Edit(ctx, 1, created.ID, 200, "A-1", day(2024, time.March, 6))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1, created.ID))

	require.Len(t, publisher.payloads, 3)
	eventTypes := make([]string, 0, 3)
	for _, payload := range publisher.payloads {
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		eventTypes = append(eventTypes, event.Type)
	}
	assert.Equal(t, []string{EventOrderCreated, EventOrderUpdated, EventOrderDeleted}, eventTypes)
}

func TestOrderServiceNoEventOnFailure(t *testing.T) {
	publisher := &memPublisher{}
	svc := NewOrderService(newMemOrderRepo(), NewEvents(publisher, "order-events"))

	_, err := svc.Add(context.Background(), 1, -1, "A-1", day(2024, time.March, 5))
	require.Error(t, err)
	assert.Empty(t, publisher.payloads)
}
