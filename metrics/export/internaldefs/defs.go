package internaldefs

import (
	"github.com/MrEthical07/multiauth"
)

// Source is what exporters read from. *multiauth.Engine implements it.
type Source interface {
	MetricsSnapshot() multiauth.MetricsSnapshot
	AuditDropped() uint64
	AuditDelivered() uint64
}

// CounterDef names one exported counter.
type CounterDef struct {
	ID   multiauth.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   multiauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: multiauth.MetricLoginSuccess, Name: "multiauth_login_success_total", Help: "Logins that passed credential verification."},
	{ID: multiauth.MetricLoginFailure, Name: "multiauth_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: multiauth.MetricLoginRateLimited, Name: "multiauth_login_rate_limited_total", Help: "Logins refused by the throttle."},
	{ID: multiauth.MetricLogout, Name: "multiauth_logout_total", Help: "Logout operations."},
	{ID: multiauth.MetricRefreshPushed, Name: "multiauth_refresh_pushed_total", Help: "Auto-refresh passes that updated a lagging backend."},
	{ID: multiauth.MetricRefreshExplicit, Name: "multiauth_refresh_explicit_total", Help: "Explicit refreshes with a caller-supplied user."},
	{ID: multiauth.MetricSessionTampered, Name: "multiauth_session_tampered_total", Help: "Sessions discarded for a bad tag or payload."},
	{ID: multiauth.MetricSessionExpired, Name: "multiauth_session_expired_total", Help: "Sessions discarded after expiry."},
	{ID: multiauth.MetricBackendWriteFailure, Name: "multiauth_backend_write_failure_total", Help: "Individual backend failures during fan-out."},
	{ID: multiauth.MetricRegisterSuccess, Name: "multiauth_register_success_total", Help: "Registered users."},
	{ID: multiauth.MetricRegisterDuplicate, Name: "multiauth_register_duplicate_total", Help: "Registrations rejected as duplicate."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: multiauth.MetricLoginLatency, Name: "multiauth_login_latency_seconds", Help: "Login latency histogram."},
}

// AuditDef names a counter read from the audit dispatcher rather than the
// metrics snapshot.
type AuditDef struct {
	Name string
	Help string
	Read func(Source) uint64
}

// AuditDefs lists the dispatcher counters.
var AuditDefs = []AuditDef{
	{Name: "multiauth_audit_delivered_total", Help: "Audit events handed to the sink.", Read: Source.AuditDelivered},
	{Name: "multiauth_audit_dropped_total", Help: "Audit events dropped by dispatcher backpressure.", Read: Source.AuditDropped},
}

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to Prometheus-style running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
