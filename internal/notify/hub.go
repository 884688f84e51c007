package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 1024).
//   - MaxBatchUpdates: flush once this many updates queue (default 256).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 250ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize      int
	MaxBatchUpdates int
	MaxBatchWait    time.Duration
	SinkTimeout     time.Duration
	BaseContext     context.Context
	Logger          *zap.Logger
}

const (
	defaultBufferSize      = 1024
	defaultMaxBatchUpdates = 256
	defaultMaxBatchWait    = 250 * time.Millisecond
	defaultSinkTimeout     = 10 * time.Second
	dropWarnInterval       = 5 * time.Second
)

// Hub fans Update streams out to registered sinks. Emit never blocks the
// caller; updates are batched on a background goroutine. A Hub is safe for
// concurrent use by multiple goroutines.
type Hub struct {
	cfg     config
	sinks   []Sink
	updates chan Update
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger

	dropped      atomic.Int64
	lastDropWarn atomic.Int64
	closed       atomic.Bool
	closeOnce    sync.Once
	closeCtx     context.Context
}

// config is Config after defaulting.
type config struct {
	bufferSize      int
	maxBatchUpdates int
	maxBatchWait    time.Duration
	sinkTimeout     time.Duration
	baseContext     context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine. The
// returned Hub is immediately ready to accept updates.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	resolved := config{
		bufferSize:      cfg.BufferSize,
		maxBatchUpdates: cfg.MaxBatchUpdates,
		maxBatchWait:    cfg.MaxBatchWait,
		sinkTimeout:     cfg.SinkTimeout,
		baseContext:     cfg.BaseContext,
	}
	if resolved.bufferSize <= 0 {
		resolved.bufferSize = defaultBufferSize
	}
	if resolved.maxBatchUpdates <= 0 {
		resolved.maxBatchUpdates = defaultMaxBatchUpdates
	}
	if resolved.maxBatchWait <= 0 {
		resolved.maxBatchWait = defaultMaxBatchWait
	}
	if resolved.sinkTimeout <= 0 {
		resolved.sinkTimeout = defaultSinkTimeout
	}
	if resolved.baseContext == nil {
		resolved.baseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     resolved,
		sinks:   append([]Sink(nil), sinks...),
		updates: make(chan Update, resolved.bufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
	}
	go h.run()
	return h
}

// Emit enqueues an Update for batching. It never blocks; if the buffer is
// full the update is dropped and a rate-limited warning is logged.
func (h *Hub) Emit(u Update) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := u.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress update", zap.Error(err))
		return
	}
	select {
	case h.updates <- u:
	default:
		h.dropped.Add(1)
		h.warnDrops()
	}
}

// warnDrops logs dropped-update counts at most once per dropWarnInterval.
func (h *Hub) warnDrops() {
	now := time.Now().UnixNano()
	last := h.lastDropWarn.Load()
	if now-last < dropWarnInterval.Nanoseconds() {
		return
	}
	if h.lastDropWarn.CompareAndSwap(last, now) {
		count := h.dropped.Swap(0)
		h.logger.Warn("progress updates dropped due to backpressure", zap.Int64("dropped", count))
	}
}

// Close drains remaining updates, flushes and closes the sinks, and blocks
// until the background goroutine exits. It is safe to call multiple times.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)

	batch := make([]Update, 0, h.cfg.maxBatchUpdates)
	timer := time.NewTimer(h.cfg.maxBatchWait)
	defer timer.Stop()
	drainTimer(timer)
	armed := false

	for {
		select {
		case u := <-h.updates:
			batch = append(batch, u)
			if len(batch) >= h.cfg.maxBatchUpdates {
				h.flush(batch)
				batch = batch[:0]
				if armed {
					drainTimer(timer)
					armed = false
				}
			} else if !armed {
				timer.Reset(h.cfg.maxBatchWait)
				armed = true
			}
		case <-timer.C:
			armed = false
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.drainAndClose(batch)
			return
		}
	}
}

// drainAndClose empties the buffer, flushes whatever remains, and closes the
// sinks. Called exactly once during shutdown.
func (h *Hub) drainAndClose(batch []Update) {
	for {
		select {
		case u := <-h.updates:
			batch = append(batch, u)
			if len(batch) >= h.cfg.maxBatchUpdates {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			ctx := h.closeCtx
			if ctx == nil {
				ctx = context.Background()
			}
			for _, sink := range h.sinks {
				if sink == nil {
					continue
				}
				if err := sink.Close(ctx); err != nil {
					h.logger.Warn("progress sink close failed", zap.Error(err))
				}
			}
			return
		}
	}
}

func (h *Hub) flush(batch []Update) {
	if len(batch) == 0 {
		return
	}
	shared := append([]Update(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.baseContext, h.cfg.sinkTimeout)
		if err := sink.Consume(ctx, shared); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

// drainTimer stops a timer and clears any pending fire.
func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
