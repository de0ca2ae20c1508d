package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
)

// TopicSender publishes events to a Google Cloud Pub/Sub topic.
type TopicSender struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
}

// NewTopicSender connects to projectID and prepares a publisher for topic.
func NewTopicSender(ctx context.Context, projectID, topic string) (*TopicSender, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &TopicSender{client: client, publisher: client.Publisher(topic), topic: topic}, nil
}

// Send implements Sender and waits for the server acknowledgement.
func (s *TopicSender) Send(ctx context.Context, data []byte, attributes map[string]string) error {
	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing to %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (s *TopicSender) Close() error {
	s.publisher.Stop()
	return s.client.Close()
}

var _ Sender = (*TopicSender)(nil)
