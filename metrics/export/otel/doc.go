// Package otel publishes engine counters through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter.
// Each latency histogram becomes two gauges: <name>_bucket, observed once
// per bound with an "le" attribute, and <name>_count. The caller owns the
// MeterProvider.
package otel
