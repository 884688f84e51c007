package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/coursekit/genprogress/internal/notify"
)

// Publisher abstracts the Pub/Sub topic so the sink can be unit tested with a
// fake. *TopicPublisher is the production implementation.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
	Stop()
}

// PubSubSink broadcasts progress updates to a Pub/Sub topic so downstream
// consumers (UIs, billing) can follow runs without polling the API.
type PubSubSink struct {
	pub Publisher
}

// NewPubSubSink wires a Publisher to the sink interface.
func NewPubSubSink(pub Publisher) *PubSubSink {
	return &PubSubSink{pub: pub}
}

// updateMessage is the wire form of one broadcast update.
type updateMessage struct {
	RunID   string    `json:"run_id"`
	Kind    string    `json:"kind"`
	Phase   string    `json:"phase,omitempty"`
	Overall float64   `json:"overall"`
	TS      time.Time `json:"ts"`
	Note    string    `json:"note,omitempty"`
}

// Consume publishes each update in the batch. Publishing is best-effort per
// update; the first failure is returned so the hub can log it.
func (s *PubSubSink) Consume(ctx context.Context, batch []notify.Update) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, u := range batch {
		msg := updateMessage{
			RunID:   u.RunUUID().String(),
			Kind:    string(u.Kind),
			Phase:   u.Phase,
			Overall: u.Overall,
			TS:      u.TS,
			Note:    u.Note,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal update: %w", err)
		}
		attrs := map[string]string{"kind": string(u.Kind)}
		if _, err := s.pub.Publish(ctx, data, attrs); err != nil {
			return fmt.Errorf("publish update: %w", err)
		}
	}
	return nil
}

// Close stops the underlying publisher.
func (s *PubSubSink) Close(context.Context) error {
	if s != nil && s.pub != nil {
		s.pub.Stop()
	}
	return nil
}

// TopicPublisher publishes through a real Pub/Sub topic.
type TopicPublisher struct {
	topic *pubsub.Topic
}

// NewTopicPublisher connects a Pub/Sub client and resolves the topic handle.
// It authenticates using Application Default Credentials.
func NewTopicPublisher(ctx context.Context, projectID, topicID string) (*TopicPublisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project id and topic id are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &TopicPublisher{topic: client.Topic(topicID)}, nil
}

// Publish sends one message and waits for the server acknowledgement.
func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages and releases topic resources.
func (p *TopicPublisher) Stop() {
	p.topic.Stop()
}
