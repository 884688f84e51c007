package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleUpdate(kind Kind) Update {
	return Update{
		RunID:   UUIDToBytes(uuid.New()),
		TS:      time.Now().UTC(),
		Kind:    kind,
		Overall: 0.25,
	}
}

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:      8,
		MaxBatchUpdates: 2,
		MaxBatchWait:    time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	u := sampleUpdate(KindRunStart)
	hub.Emit(u)
	hub.Emit(u)
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:      4,
		MaxBatchUpdates: 10,
		MaxBatchWait:    25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleUpdate(KindOverall))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithFullBuffer asserts Emit drops instead of blocking.
func TestHubEmitNonBlockingWithFullBuffer(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		updates: make(chan Update),
		logger:  zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleUpdate(KindOverall))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains buffered updates before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:      4,
		MaxBatchUpdates: 100,
		MaxBatchWait:    time.Minute,
	}, sink)

	hub.Emit(sampleUpdate(KindRunDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.Closed())
}

// TestHubDiscardsInvalidUpdates confirms validation failures never reach sinks.
func TestHubDiscardsInvalidUpdates(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchUpdates: 1, MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(Update{})                                                                  // missing everything
	hub.Emit(Update{RunID: UUIDToBytes(uuid.New()), TS: time.Now(), Kind: "MYSTERY"})   // bad kind
	hub.Emit(Update{RunID: UUIDToBytes(uuid.New()), TS: time.Now(), Kind: KindOverall, Overall: 3}) // out of range

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

// TestUpdateValidate covers the Update field rules.
func TestUpdateValidate(t *testing.T) {
	t.Parallel()

	valid := sampleUpdate(KindOverall)
	require.NoError(t, valid.Validate())

	missingID := valid
	missingID.RunID = [16]byte{}
	require.Error(t, missingID.Validate())

	missingTS := valid
	missingTS.TS = time.Time{}
	require.Error(t, missingTS.Validate())

	badKind := valid
	badKind.Kind = "SOMETHING"
	require.Error(t, badKind.Validate())

	negative := valid
	negative.Overall = -0.1
	require.Error(t, negative.Validate())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Update
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Update(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Update, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Update(nil), b...)
	}
	return out
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
