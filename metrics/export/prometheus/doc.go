// Package prometheus exposes tokenguard metrics to Prometheus.
//
// Two forms are offered. [Collector] plugs into a client_golang registry and is
// what cmd/tokenguard-janitor mounts behind promhttp. [PrometheusExporter]
// renders the same series as plain text for callers that do not run a
// registry. Counter names are tokenguard_*_total; the refresh validate and
// rotate latencies are histograms with fixed buckets from 5ms to 500ms.
//
// # What this package must NOT do
//
//   - Register anything in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
