// Package pubsub implements an AlertSink backed by Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/listforge/dirwatch/internal/monitor"
)

// Sink publishes alerts to a Pub/Sub topic for downstream consumers (the
// submission pipeline, paging integrations).
type Sink struct {
	topic *pubsub.Topic
}

// New creates a Sink for an existing topic handle.
func New(topic *pubsub.Topic) (*Sink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &Sink{topic: topic}, nil
}

// Connect opens a Pub/Sub client and returns a Sink for the named topic.
func Connect(ctx context.Context, projectID, topicID string) (*Sink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return New(client.Topic(topicID))
}

// Deliver publishes the alert as a JSON message with routing attributes.
func (s *Sink) Deliver(ctx context.Context, a monitor.Alert, directoryID string) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"directory_id": directoryID,
			"alert_type":   string(a.Type),
			"severity":     string(a.Severity),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
