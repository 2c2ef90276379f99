// Package metrics defines the observability sinks of the parking service.
// Sinks record ingestion outcomes, query evaluations and per-camera occupancy
// and can be combined with NewMultiSink. The factory returns a MultiSink
// automatically when several sinks are configured. Implementations
// (Prometheus, InfluxDB) live in infra/metrics.
package metrics
