// Package otel publishes tokenguard metrics through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter in the
// shared definition table. Each latency histogram becomes a cumulative
// <name>_bucket counter keyed by an "le" attribute plus a <name>_count counter.
// A single callback reads Engine.MetricsSnapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
