// Package notify provides the update primitives, non-blocking hub, and
// emitter interfaces used to broadcast run progress to observers. The hub
// batches updates on a background goroutine and fans them out to pluggable
// sinks such as Prometheus collectors, the snapshot store, or Pub/Sub.
package notify
