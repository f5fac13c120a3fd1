// Package prometheus renders multiauth counters in Prometheus text format.
//
// [NewPrometheusExporter] accepts a [multiauth.Engine] and exposes an
// [http.Handler]. Counter names are prefixed multiauth_*_total; the single
// histogram is multiauth_login_latency_seconds. Nothing is registered
// globally; callers mount the Handler.
package prometheus
