// Package prometheus renders authkit metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts an [authkit.Service] and exposes an [http.Handler]
// that renders all authkit counters and histograms. Counter names are prefixed
// authkit_*_total; the single histogram is authkit_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate service state.
package prometheus
