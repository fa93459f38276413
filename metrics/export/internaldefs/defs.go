package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/adminAuth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   adminAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   adminAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed order.
var CounterDefs = []CounterDef{
	{ID: adminAuth.MetricLoginSuccess, Name: "adminauth_login_success_total", Help: "Password steps that issued an OTP."},
	{ID: adminAuth.MetricLoginFailure, Name: "adminauth_login_failure_total", Help: "Wrong passwords and unknown emails."},
	{ID: adminAuth.MetricLoginRateLimited, Name: "adminauth_login_rate_limited_total", Help: "Logins rejected by the lockout."},
	{ID: adminAuth.MetricLoginLockout, Name: "adminauth_login_lockout_total", Help: "Failures that locked a login key."},
	{ID: adminAuth.MetricValidationFailure, Name: "adminauth_validation_failure_total", Help: "Malformed emails and codes."},
	{ID: adminAuth.MetricOTPIssued, Name: "adminauth_otp_issued_total", Help: "Codes generated by login or resend."},
	{ID: adminAuth.MetricOTPResendThrottled, Name: "adminauth_otp_resend_throttled_total", Help: "Resend requests rejected by the window."},
	{ID: adminAuth.MetricOTPSuccess, Name: "adminauth_otp_success_total", Help: "Verified codes."},
	{ID: adminAuth.MetricOTPFailure, Name: "adminauth_otp_failure_total", Help: "Wrong codes."},
	{ID: adminAuth.MetricOTPExpired, Name: "adminauth_otp_expired_total", Help: "Codes presented after their deadline."},
	{ID: adminAuth.MetricOTPAttemptsExceeded, Name: "adminauth_otp_attempts_exceeded_total", Help: "OTP entries discarded for too many wrong codes."},
	{ID: adminAuth.MetricSessionCreated, Name: "adminauth_session_created_total", Help: "Issued session tokens."},
	{ID: adminAuth.MetricSessionRefreshed, Name: "adminauth_session_refreshed_total", Help: "Sessions refreshed by an auth check."},
	{ID: adminAuth.MetricSessionInvalid, Name: "adminauth_session_invalid_total", Help: "Auth checks with a rejected token."},
	{ID: adminAuth.MetricLogout, Name: "adminauth_logout_total", Help: "Single-session logouts."},
	{ID: adminAuth.MetricLogoutAll, Name: "adminauth_logout_all_total", Help: "Revoke-all-sessions operations."},
	{ID: adminAuth.MetricSweepRemoved, Name: "adminauth_sweep_removed_total", Help: "Entries removed by maintenance sweeps."},
	{ID: adminAuth.MetricInternalError, Name: "adminauth_internal_error_total", Help: "Backend errors that failed closed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: adminAuth.MetricOperationLatency, Name: "adminauth_operation_latency_seconds", Help: "Wall time of engine operations."},
}

// AuditDroppedName is the counter for events lost to dispatcher backpressure.
const (
	AuditDroppedName = "adminauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// BucketCount matches the engine's latency histogram.
const BucketCount = 8

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket is +Inf.
var HistogramUpperBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabel returns the "le" label of bucket i: the bound in seconds,
// or "+Inf" for the last bucket.
func BucketLabel(i int) string {
	if i >= len(HistogramUpperBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(HistogramUpperBounds[i], 'g', -1, 64)
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling when
// the histogram is disabled.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
