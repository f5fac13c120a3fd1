package prometheus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/multiauth"
	"github.com/MrEthical07/multiauth/userstore/memstore"
)

type fakeSource struct {
	snapshot  multiauth.MetricsSnapshot
	dropped   uint64
	delivered uint64
}

func (f fakeSource) MetricsSnapshot() multiauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }
func (f fakeSource) AuditDelivered() uint64                     { return f.delivered }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: multiauth.MetricsSnapshot{
			Counters:   map[multiauth.MetricID]uint64{},
			Histograms: map[multiauth.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: multiauth.MetricsSnapshot{
			Counters: map[multiauth.MetricID]uint64{
				multiauth.MetricLoginSuccess: 7,
			},
			Histograms: map[multiauth.MetricID][]uint64{
				multiauth.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			Sums: map[multiauth.MetricID]time.Duration{
				multiauth.MetricLoginLatency: 1500 * time.Millisecond,
			},
		},
		dropped:   2,
		delivered: 9,
	})

	out := exp.Render()
	if !strings.Contains(out, "multiauth_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "multiauth_login_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "multiauth_login_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "multiauth_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "multiauth_login_latency_seconds_sum 1.5") {
		t.Fatalf("expected histogram sum in output, got:\n%s", out)
	}
	if !strings.Contains(out, "multiauth_audit_delivered_total 9") {
		t.Fatalf("expected audit delivered counter in output, got:\n%s", out)
	}
	if out != exp.Render() {
		t.Fatal("expected identical output for an unchanged snapshot")
	}
}

type failingWriter struct{ err error }

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }

func TestWriteToReportsWriterError(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: multiauth.MetricsSnapshot{
			Counters: map[multiauth.MetricID]uint64{multiauth.MetricLogout: 1},
		},
	})

	boom := errors.New("boom")
	if _, err := exp.WriteTo(failingWriter{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("unexpected escaped help %q", got)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: multiauth.MetricsSnapshot{
			Counters:   map[multiauth.MetricID]uint64{multiauth.MetricLoginSuccess: 1},
			Histograms: map[multiauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRenderFromEngine(t *testing.T) {
	cfg := multiauth.DefaultConfig()
	cfg.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4

	store, err := memstore.New(memstore.Config{Password: cfg.Password.HasherConfig()})
	if err != nil {
		t.Fatalf("memstore.New failed: %v", err)
	}
	engine, err := multiauth.New().WithConfig(cfg).WithUserStore(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	_ = engine.Auth().Login(context.Background(), "ghost", "pw", nil)

	out := NewPrometheusExporter(engine).Render()
	if !strings.Contains(out, "multiauth_login_failure_total 1") {
		t.Fatalf("expected login failure counter, got:\n%s", out)
	}
	if !strings.Contains(out, "multiauth_login_success_total 0") {
		t.Fatalf("expected zero login successes, got:\n%s", out)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: multiauth.MetricsSnapshot{
			Counters: map[multiauth.MetricID]uint64{
				multiauth.MetricLoginSuccess:        1000,
				multiauth.MetricLoginFailure:        40,
				multiauth.MetricLogout:              800,
				multiauth.MetricRefreshPushed:       10,
				multiauth.MetricSessionExpired:      800,
				multiauth.MetricSessionTampered:     20,
				multiauth.MetricBackendWriteFailure: 3,
			},
			Histograms: map[multiauth.MetricID][]uint64{
				multiauth.MetricLoginLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
