package tokenguard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimitAuditEmittedOncePerWindow(t *testing.T) {
	h := newRefreshHarness(t, nil)
	ctx := WithClientIP(context.Background(), "203.0.113.9")
	h.clock.Set(time.Unix(1_800_000_000, 0).UTC())

	for i := 0; i < 6; i++ {
		if _, err := h.engine.CheckRateLimit(ctx, "login", 2, time.Minute); err != nil {
			t.Fatalf("CheckRateLimit failed: %v", err)
		}
	}

	snap := h.engine.MetricsSnapshot()
	if got := snap.Counters[MetricRateLimitChecked]; got != 6 {
		t.Fatalf("expected 6 checks, got %d", got)
	}
	if got := snap.Counters[MetricRateLimited]; got != 4 {
		t.Fatalf("expected 4 denials, got %d", got)
	}

	limited := eventsOfType(h.events(t), auditEventRateLimited)
	if len(limited) != 1 {
		t.Fatalf("expected one rate_limited event, got %d", len(limited))
	}
	ev := limited[0]
	if ev.Success || ev.Error != string(auditErrRateLimited) || ev.IP != "203.0.113.9" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Metadata["key"] != "login" || ev.Metadata["max"] != "2" {
		t.Fatalf("unexpected metadata: %+v", ev.Metadata)
	}
}

func TestSessionRevocationAudited(t *testing.T) {
	h := newRefreshHarness(t, nil)
	ctx := WithUserAgent(context.Background(), "probe/1.0")

	id, err := h.engine.CreateUserSession(ctx, "u1", nil, 0)
	if err != nil {
		t.Fatalf("CreateUserSession failed: %v", err)
	}
	if err := h.engine.RevokeUserSession(ctx, id); err != nil {
		t.Fatalf("RevokeUserSession failed: %v", err)
	}

	revoked := eventsOfType(h.events(t), auditEventSessionRevoked)
	if len(revoked) != 1 {
		t.Fatalf("expected one session_revoked event, got %d", len(revoked))
	}
	if revoked[0].UserID != "u1" || revoked[0].SessionID != id || revoked[0].UserAgent != "probe/1.0" {
		t.Fatalf("unexpected event: %+v", revoked[0])
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(16)
	cfg := testConfig()
	engine, err := New().WithConfig(cfg).WithInMemoryStores().WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := engine.StoreRefreshToken(context.Background(), StoreRefreshInput{UserID: "u1", Token: tok(1)}); err != nil {
		t.Fatalf("StoreRefreshToken failed: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case ev := <-sink.Events():
		t.Fatalf("expected no events, got %+v", ev)
	default:
	}
}

func TestMetricsDisabledSnapshotEmpty(t *testing.T) {
	engine, err := New().WithInMemoryStores().WithMetricsEnabled(false).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.StoreRefreshToken(context.Background(), StoreRefreshInput{UserID: "u1", Token: tok(1)}); err != nil {
		t.Fatalf("StoreRefreshToken failed: %v", err)
	}
	snap := engine.MetricsSnapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := map[error]AuditErrorCode{
		nil:                   "",
		ErrTokenFormat:        auditErrTokenFormat,
		ErrTokenReplay:        auditErrTokenReplay,
		ErrStoreUnavailable:   auditErrUnavailable,
		ErrInvalidRateLimit:   auditErrInvalidRequest,
		errors.New("boom"):    auditErrInternal,
		errRateLimited:        auditErrRateLimited,
		ErrAccessTokenInvalid: auditErrInvalidAccess,
	}
	for err, want := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestSecurityReportFlagsFallbacks(t *testing.T) {
	engine, _ := newMemoryEngine(t, testConfig())

	report := engine.SecurityReport()
	if report.DurableKV || report.DurableRefreshStore {
		t.Fatalf("expected volatile backends, got %+v", report)
	}
	if report.KeyedTokenHash {
		t.Fatal("expected unkeyed hash without a HashKey")
	}
	if len(report.Findings) == 0 {
		t.Fatal("expected findings for an in-process deployment")
	}
}

func TestSecurityReportDurableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	engine, _, _ := newRedisEngine(t, cfg)

	report := engine.SecurityReport()
	if !report.DurableKV || report.KVBackend != "redis" {
		t.Fatalf("expected durable redis backend, got %+v", report)
	}
	if !report.AuditEnabled {
		t.Fatal("expected audit enabled")
	}
}

func TestReplayEventsAreCriticalForAudit(t *testing.T) {
	for _, ev := range []string{auditEventRefreshReplaySuspected, auditEventRefreshRotationUnknown} {
		if !isCriticalAuditEvent(ev) {
			t.Fatalf("%s must never be dropped under backpressure", ev)
		}
	}
	for _, ev := range []string{auditEventRefreshRotated, auditEventRateLimited, auditEventSessionRevoked} {
		if isCriticalAuditEvent(ev) {
			t.Fatalf("%s should be droppable", ev)
		}
	}
}
