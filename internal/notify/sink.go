package notify

import "context"

// Sink consumes batches of progress updates. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Update) error
	Close(ctx context.Context) error
}

// Emitter publishes individual updates; Hub satisfies this interface so the
// run registry can remain agnostic about buffering and persistence.
type Emitter interface {
	Emit(u Update)
}
