// Package main hosts the progress service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and run lifecycle endpoints. Pipeline events posted
//     to a run are applied to its tracker and the resulting overall completion fraction is returned inline.
//   - Run registry: internal/registry owns one engine.Tracker per active generation run behind a per-run lock.
//     Trackers fold heterogeneous pipeline events into a monotone [0,1] fraction; completing a run emits a final
//     update and archives a JSON report.
//   - Ingestion: when Pub/Sub is enabled, internal/ingest streams pipeline events from the configured subscription
//     and applies them through the registry. Malformed messages are acked and dropped so the subscription never
//     redelivers poison input.
//   - Update fanout: internal/notify batches run updates on a background goroutine and fans them out to sinks:
//     zap logging, Prometheus metrics, snapshot persistence (memory or Postgres), and an optional Pub/Sub broadcast
//     topic for downstream consumers. Emit never blocks event handling; under backpressure updates are dropped
//     with a rate-limited warning.
//   - Persistence: internal/store keeps the latest overall per run (GREATEST semantics in Postgres, max in memory)
//     so restarts and reads never observe a regressing fraction. internal/archive writes finished run reports to
//     memory, a local directory, or GCS.
//   - Configuration & plumbing: Viper populates config from env/files (PROGRESS_ prefix); zap provides structured
//     logging; Prometheus metrics are exported via /metrics. The service is stateless across requests apart from
//     the in-memory trackers of active runs.
//
// Operational notes:
//   - Concurrency model: per-run locks serialize tracker updates; the hub batches fanout on its own goroutine.
//     Shutdown is coordinated via context cancellation from main, draining the hub before exit.
//   - Observability: zap logs carry run IDs at lifecycle transitions; Prometheus tracks started/completed/active
//     runs, per-phase update counts, and the overall-fraction distribution.
//   - Run locally: go run ./cmd/progressd -config config.yaml (or rely solely on PROGRESS_* env overrides).
package main
