package ingest

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// GoogleReceiver adapts a Pub/Sub subscription to the Receiver interface.
type GoogleReceiver struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
}

// NewGoogleReceiver creates a Pub/Sub client using Application Default
// Credentials and binds it to the subscription.
func NewGoogleReceiver(ctx context.Context, projectID, subscriptionID string) (*GoogleReceiver, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	sub := client.Subscription(subscriptionID)
	ok, err := sub.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check subscription %q: %w", subscriptionID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", subscriptionID, projectID)
	}
	return &GoogleReceiver{client: client, sub: sub}, nil
}

// Receive blocks streaming deliveries to the handler until ctx is canceled.
func (r *GoogleReceiver) Receive(ctx context.Context, handler func(ctx context.Context, m Message)) error {
	return r.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		handler(ctx, googleMessage{m: m})
	})
}

// Close releases the underlying client connection.
func (r *GoogleReceiver) Close() error {
	return r.client.Close()
}

type googleMessage struct {
	m *pubsub.Message
}

func (g googleMessage) Data() []byte {
	return g.m.Data
}

func (g googleMessage) Ack() {
	g.m.Ack()
}

func (g googleMessage) Nack() {
	g.m.Nack()
}
