package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adyeetya/blogs-backend/pkg/enums"
)

type fakeTopic struct {
	topic string
	data  []byte
	attrs map[string]string
	err   error
}

func (f *fakeTopic) Publish(_ context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	f.topic, f.data, f.attrs = topic, data, attrs
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func TestPubSubPublisherEncodesEvent(t *testing.T) {
	topic := &fakeTopic{}
	pub := NewPubSubPublisher(topic, "magazine-events")
	event := Event{
		ID:         uuid.NewString(),
		Type:       EventIngestionReady,
		MagazineID: uuid.New(),
		Slug:       "issue-1",
		Status:     enums.MagazineStatusReady,
		PageCount:  5,
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), event))

	assert.Equal(t, "magazine-events", topic.topic)
	assert.Equal(t, map[string]string{"event_type": "magazine.ingestion.ready", "magazine_slug": "issue-1"}, topic.attrs)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(topic.data, &decoded))
	assert.Equal(t, "issue-1", decoded["slug"])
	assert.Equal(t, "ready", decoded["status"])
	assert.EqualValues(t, 5, decoded["pageCount"])
	assert.NotContains(t, decoded, "error")
}

func TestPubSubPublisherReturnsClientError(t *testing.T) {
	pub := NewPubSubPublisher(&fakeTopic{err: errors.New("unavailable")}, "magazine-events")
	assert.Error(t, pub.Publish(context.Background(), Event{Type: EventIngestionFailed}))
}
