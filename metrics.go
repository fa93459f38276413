package adminAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts password steps that issued an OTP.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts wrong passwords and unknown emails.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins rejected by the lockout.
	MetricLoginRateLimited
	// MetricLoginLockout counts failures that locked a login key.
	MetricLoginLockout
	// MetricValidationFailure counts malformed emails and codes.
	MetricValidationFailure
	// MetricOTPIssued counts codes generated by login or resend.
	MetricOTPIssued
	// MetricOTPResendThrottled counts resend requests rejected by the window.
	MetricOTPResendThrottled
	// MetricOTPSuccess counts verified codes.
	MetricOTPSuccess
	// MetricOTPFailure counts wrong codes.
	MetricOTPFailure
	// MetricOTPExpired counts codes presented after their deadline.
	MetricOTPExpired
	// MetricOTPAttemptsExceeded counts entries discarded for too many wrong codes.
	MetricOTPAttemptsExceeded
	// MetricSessionCreated counts issued session tokens.
	MetricSessionCreated
	// MetricSessionRefreshed counts successful CheckAuth refreshes.
	MetricSessionRefreshed
	// MetricSessionInvalid counts CheckAuth calls with a rejected token.
	MetricSessionInvalid
	// MetricLogout counts Logout calls.
	MetricLogout
	// MetricLogoutAll counts RevokeAllSessions calls.
	MetricLogoutAll
	// MetricSweepRemoved counts entries removed by maintenance sweeps.
	MetricSweepRemoved
	// MetricInternalError counts fail-closed backend errors.
	MetricInternalError
	// MetricOperationLatency is the only histogram: wall time of engine operations.
	MetricOperationLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the latency histogram. Other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricOperationLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricOperationLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricOperationLatency].buckets[i])
		}
		s.Histograms[MetricOperationLatency] = buckets
	}

	return s
}

// Buckets are upper bounds in milliseconds; the last is +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
