package internaldefs

import (
	"github.com/civicpulse/tokenguard"
)

// CounterDef binds a counter MetricID to its exported name.
type CounterDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// HistogramDef binds a latency MetricID to its exported name.
type HistogramDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: tokenguard.MetricBlacklistAdded, Name: "tokenguard_blacklist_added_total", Help: "Access-token identifiers written to the blacklist."},
	{ID: tokenguard.MetricBlacklistHit, Name: "tokenguard_blacklist_hit_total", Help: "Blacklist lookups that found a revoked identifier."},
	{ID: tokenguard.MetricSessionCreated, Name: "tokenguard_session_created_total", Help: "Created sessions."},
	{ID: tokenguard.MetricSessionRevoked, Name: "tokenguard_session_revoked_total", Help: "Single-session revocations."},
	{ID: tokenguard.MetricSessionRevokedAll, Name: "tokenguard_session_revoked_all_total", Help: "Revoke-all-sessions operations."},
	{ID: tokenguard.MetricRateLimitChecked, Name: "tokenguard_rate_limit_checked_total", Help: "Rate-limit checks."},
	{ID: tokenguard.MetricRateLimited, Name: "tokenguard_rate_limited_total", Help: "Rate-limit checks that denied the request."},
	{ID: tokenguard.MetricRefreshIssued, Name: "tokenguard_refresh_issued_total", Help: "Stored refresh tokens."},
	{ID: tokenguard.MetricRefreshValidated, Name: "tokenguard_refresh_validated_total", Help: "Refresh tokens accepted by validation."},
	{ID: tokenguard.MetricRefreshRejected, Name: "tokenguard_refresh_rejected_total", Help: "Refresh tokens rejected by validation."},
	{ID: tokenguard.MetricRefreshRotated, Name: "tokenguard_refresh_rotated_total", Help: "Refresh token rotations that created a successor."},
	{ID: tokenguard.MetricRefreshRotationRetry, Name: "tokenguard_refresh_rotation_retry_total", Help: "Rotations resolved to an existing successor."},
	{ID: tokenguard.MetricRefreshGraceUse, Name: "tokenguard_refresh_grace_use_total", Help: "Refresh tokens accepted inside their grace window."},
	{ID: tokenguard.MetricRefreshReplay, Name: "tokenguard_refresh_replay_total", Help: "Revoked refresh tokens presented after their grace window."},
	{ID: tokenguard.MetricRefreshEvicted, Name: "tokenguard_refresh_evicted_total", Help: "Refresh tokens revoked to honour the device limit."},
	{ID: tokenguard.MetricRefreshRevoked, Name: "tokenguard_refresh_revoked_total", Help: "Refresh tokens revoked explicitly."},
	{ID: tokenguard.MetricRefreshCleanupDeleted, Name: "tokenguard_refresh_cleanup_deleted_total", Help: "Refresh token rows deleted by cleanup."},
	{ID: tokenguard.MetricStoreUnavailable, Name: "tokenguard_store_unavailable_total", Help: "Backend calls that failed."},
}

// HistogramDefs lists every latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenguard.MetricValidateLatency, Name: "tokenguard_refresh_validate_latency_seconds", Help: "Refresh token validation latency."},
	{ID: tokenguard.MetricRotateLatency, Name: "tokenguard_refresh_rotate_latency_seconds", Help: "Refresh token rotation latency."},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "tokenguard_audit_dropped_total"

// HistogramBounds are the upper bounds of the in-process buckets, as text.
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

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// in-process bucket is +Inf and has no entry.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
