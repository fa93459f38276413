// Package prometheus exposes engine counters through client_golang.
//
// [NewCollector] returns a prometheus.Collector; register it with your own
// registry or serve it with [Collector.Handler]. Counter names are
// adminauth_*_total and the single histogram is
// adminauth_operation_latency_seconds.
package prometheus
