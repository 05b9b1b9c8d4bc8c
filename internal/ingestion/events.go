package ingestion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/adyeetya/blogs-backend/pkg/enums"
)

type EventType string

const (
	EventIngestionStarted EventType = "magazine.ingestion.started"
	EventIngestionReady   EventType = "magazine.ingestion.ready"
	EventIngestionFailed  EventType = "magazine.ingestion.failed"
)

// Event is a magazine lifecycle notification.
type Event struct {
	ID         string               `json:"id"`
	Type       EventType            `json:"type"`
	MagazineID uuid.UUID            `json:"magazineId"`
	Slug       string               `json:"slug"`
	Status     enums.MagazineStatus `json:"status"`
	PageCount  int                  `json:"pageCount,omitempty"`
	Stage      string               `json:"stage,omitempty"`
	Error      string               `json:"error,omitempty"`
	OccurredAt time.Time            `json:"occurredAt"`
}

// Publisher delivers lifecycle events. Delivery is best effort: failures are
// logged by the orchestrator and never change a run's outcome.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// topicPublisher is the subset of the Pub/Sub client used for events.
type topicPublisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

// PubSubPublisher publishes events as JSON messages on one topic.
type PubSubPublisher struct {
	client topicPublisher
	topic  string
}

func NewPubSubPublisher(client topicPublisher, topic string) *PubSubPublisher {
	return &PubSubPublisher{client: client, topic: topic}
}

func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, p.topic, data, map[string]string{
		"event_type":    string(event.Type),
		"magazine_slug": event.Slug,
	})
	return err
}
