package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/genprogress/internal/notify"
)

// TestPubSubSinkPublishesEachUpdate verifies the JSON wire form and per-update
// publishing.
func TestPubSubSinkPublishesEachUpdate(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := NewPubSubSink(pub)
	runUUID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()

	batch := []notify.Update{
		{RunID: notify.UUIDToBytes(runUUID), Kind: notify.KindRunStart, TS: now},
		{RunID: notify.UUIDToBytes(runUUID), Kind: notify.KindOverall, Phase: "search", Overall: 0.12, TS: now.Add(time.Second)},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, pub.messages, 2)

	var msg updateMessage
	require.NoError(t, json.Unmarshal(pub.messages[1], &msg))
	require.Equal(t, runUUID.String(), msg.RunID)
	require.Equal(t, "OVERALL", msg.Kind)
	require.Equal(t, "search", msg.Phase)
	require.Equal(t, 0.12, msg.Overall)
	require.Equal(t, "OVERALL", pub.attrs[1]["kind"])
}

// TestPubSubSinkSurfacesPublishErrors returns the first failure to the hub.
func TestPubSubSinkSurfacesPublishErrors(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{fail: true}
	sink := NewPubSubSink(pub)
	err := sink.Consume(context.Background(), []notify.Update{
		{RunID: notify.UUIDToBytes(uuid.New()), Kind: notify.KindRunStart, TS: time.Now()},
	})
	require.Error(t, err)
}

// TestPubSubSinkCloseStopsPublisher flushes the topic on shutdown.
func TestPubSubSinkCloseStopsPublisher(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := NewPubSubSink(pub)
	require.NoError(t, sink.Close(context.Background()))
	require.True(t, pub.stopped)
}

type fakePublisher struct {
	fail     bool
	stopped  bool
	messages [][]byte
	attrs    []map[string]string
}

func (f *fakePublisher) Publish(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	if f.fail {
		return "", errors.New("publish failed")
	}
	f.messages = append(f.messages, append([]byte(nil), data...))
	f.attrs = append(f.attrs, attrs)
	return "msg-1", nil
}

func (f *fakePublisher) Stop() {
	f.stopped = true
}
