// Package sinks implements concrete progress-update consumers: Prometheus
// collectors, the snapshot repository, Pub/Sub broadcasting, and structured
// logging. Each sink satisfies the notify.Sink interface and is safe for
// repeated Consume/Close cycles.
package sinks
