// Package ingest consumes pipeline progress events from Google Cloud Pub/Sub
// and applies them to the run registry. Decoding is defensive: a malformed
// message is logged and acked so the subscription never spins on poison input.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursekit/genprogress/internal/engine"
)

// Message is one delivery from the transport.
type Message interface {
	Data() []byte
	Ack()
	Nack()
}

// Receiver blocks delivering messages to the handler until ctx is canceled.
type Receiver interface {
	Receive(ctx context.Context, handler func(ctx context.Context, m Message)) error
}

// Runs is the registry surface the subscriber needs.
type Runs interface {
	Ensure(ctx context.Context, id uuid.UUID) error
	Apply(ctx context.Context, id uuid.UUID, ev engine.Event) (float64, error)
}

// envelope is the wire form of an inbound event: the run identifier plus the
// event fields the engine understands.
type envelope struct {
	RunID string `json:"run_id"`
	engine.Event
}

// Subscriber pulls events off a subscription and feeds the registry.
type Subscriber struct {
	receiver Receiver
	runs     Runs
	logger   *zap.Logger
}

// NewSubscriber wires a Subscriber. Logger may be nil.
func NewSubscriber(receiver Receiver, runs Runs, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{receiver: receiver, runs: runs, logger: logger}
}

// Run blocks consuming messages until ctx is canceled or the transport fails.
func (s *Subscriber) Run(ctx context.Context) error {
	err := s.receiver.Receive(ctx, s.handle)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive progress events: %w", err)
	}
	return nil
}

func (s *Subscriber) handle(ctx context.Context, m Message) {
	// Progress ingestion is observational, so every outcome acks: redelivery
	// of a bad message cannot make it good, and a dropped event only delays
	// the fraction until the next one arrives.
	defer m.Ack()

	var env envelope
	if err := json.Unmarshal(m.Data(), &env); err != nil {
		s.logger.Warn("dropping undecodable progress event", zap.Error(err))
		return
	}
	id, err := uuid.Parse(env.RunID)
	if err != nil {
		s.logger.Warn("dropping progress event with bad run id",
			zap.String("run_id", env.RunID), zap.Error(err))
		return
	}

	if err := s.runs.Ensure(ctx, id); err != nil {
		s.logger.Warn("dropping progress event for untrackable run",
			zap.Stringer("run_id", id), zap.Error(err))
		return
	}
	if _, err := s.runs.Apply(ctx, id, env.Event); err != nil {
		s.logger.Warn("applying progress event failed",
			zap.Stringer("run_id", id), zap.Error(err))
	}
}
