// Package internaldefs holds the metric names and bucket bounds shared by the
// exporters.
//
// The Prometheus and OTel exporters both read these definitions, so a metric
// keeps the same name and buckets whichever exporter serves it.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
