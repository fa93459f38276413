package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/adminAuth"
)

type fakeSource struct {
	snapshot adminAuth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() adminAuth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestCollectorCountersAndAuditDropped(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: adminAuth.MetricsSnapshot{
			Counters: map[adminAuth.MetricID]uint64{
				adminAuth.MetricLoginSuccess: 7,
				adminAuth.MetricOTPFailure:   2,
			},
		},
		dropped: 3,
	})

	want := `
# HELP adminauth_login_success_total Password steps that issued an OTP.
# TYPE adminauth_login_success_total counter
adminauth_login_success_total 7
# HELP adminauth_otp_failure_total Wrong codes.
# TYPE adminauth_otp_failure_total counter
adminauth_otp_failure_total 2
# HELP adminauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE adminauth_audit_dropped_total counter
adminauth_audit_dropped_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"adminauth_login_success_total",
		"adminauth_otp_failure_total",
		"adminauth_audit_dropped_total",
	)
	if err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}
}

func TestCollectorHistogramIsCumulative(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: adminAuth.MetricsSnapshot{
			Counters: map[adminAuth.MetricID]uint64{},
			Histograms: map[adminAuth.MetricID][]uint64{
				adminAuth.MetricOperationLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	})

	want := `
# HELP adminauth_operation_latency_seconds Wall time of engine operations.
# TYPE adminauth_operation_latency_seconds histogram
adminauth_operation_latency_seconds_bucket{le="0.005"} 1
adminauth_operation_latency_seconds_bucket{le="0.01"} 3
adminauth_operation_latency_seconds_bucket{le="0.025"} 6
adminauth_operation_latency_seconds_bucket{le="0.05"} 10
adminauth_operation_latency_seconds_bucket{le="0.1"} 15
adminauth_operation_latency_seconds_bucket{le="0.25"} 21
adminauth_operation_latency_seconds_bucket{le="0.5"} 28
adminauth_operation_latency_seconds_bucket{le="+Inf"} 36
adminauth_operation_latency_seconds_sum 0
adminauth_operation_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "adminauth_operation_latency_seconds"); err != nil {
		t.Fatalf("unexpected histogram: %v", err)
	}
}

func TestCollectorLintsClean(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: adminAuth.MetricsSnapshot{}})
	problems, err := testutil.CollectAndLint(c)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("lint problems: %+v", problems)
	}
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorFromSource(fakeSource{})
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(NewCollectorFromSource(fakeSource{})); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	engine, err := adminAuth.New().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	h, err := NewCollector(engine).Handler()
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "adminauth_login_success_total 0") {
		t.Fatalf("expected login counter in output, got:\n%s", body)
	}
}

func BenchmarkCollect(b *testing.B) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: adminAuth.MetricsSnapshot{
			Counters: map[adminAuth.MetricID]uint64{
				adminAuth.MetricLoginSuccess:   1000,
				adminAuth.MetricLoginFailure:   40,
				adminAuth.MetricSessionCreated: 800,
			},
			Histograms: map[adminAuth.MetricID][]uint64{
				adminAuth.MetricOperationLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = reg.Gather()
	}
}
