package tokenguard

import (
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/civicpulse/tokenguard/internal/audit"
	internalmetrics "github.com/civicpulse/tokenguard/internal/metrics"
	"github.com/civicpulse/tokenguard/refresh"
	"github.com/civicpulse/tokenguard/session"
)

// RefreshToken is a stored refresh-token row. It never contains the plaintext token.
type RefreshToken = refresh.Token

// RefreshTokenState is the four-state classification of a refresh token.
type RefreshTokenState = refresh.State

const (
	StateAbsent = refresh.StateAbsent
	StateActive = refresh.StateActive
	StateGrace  = refresh.StateGrace
	StateDead   = refresh.StateDead
)

// SessionRecord is a server-side session as returned by GetUserSession.
type SessionRecord = session.Record

// StoreRefreshInput describes a refresh token to persist.
type StoreRefreshInput struct {
	UserID string
	// Token is the 64-character lowercase-hex plaintext. It is hashed and discarded.
	Token string
	// ExpiresAt overrides the lifetime derived from RememberMe when non-zero.
	ExpiresAt  time.Time
	DeviceInfo map[string]string
	RememberMe bool
}

// RateLimitResult is the outcome of CheckRateLimit.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RotateResult is the outcome of RotateRefreshTokenDetailed.
type RotateResult struct {
	Token *RefreshToken
	// Idempotent is set when the old token had already been rotated and the
	// existing successor was returned.
	Idempotent bool
	// Evicted counts tokens revoked to honour the device limit.
	Evicted int
}

/*
====================================
AUDIT
====================================
*/

// AuditEvent is a structured security event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel, mostly for tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink forwards events to a structured logger.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

/*
====================================
METRICS
====================================
*/

// MetricID identifies a specific counter or histogram in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricBlacklistAdded        = internalmetrics.MetricBlacklistAdded
	MetricBlacklistHit          = internalmetrics.MetricBlacklistHit
	MetricSessionCreated        = internalmetrics.MetricSessionCreated
	MetricSessionRevoked        = internalmetrics.MetricSessionRevoked
	MetricSessionRevokedAll     = internalmetrics.MetricSessionRevokedAll
	MetricRateLimitChecked      = internalmetrics.MetricRateLimitChecked
	MetricRateLimited           = internalmetrics.MetricRateLimited
	MetricRefreshIssued         = internalmetrics.MetricRefreshIssued
	MetricRefreshValidated      = internalmetrics.MetricRefreshValidated
	MetricRefreshRejected       = internalmetrics.MetricRefreshRejected
	MetricRefreshRotated        = internalmetrics.MetricRefreshRotated
	MetricRefreshRotationRetry  = internalmetrics.MetricRefreshRotationRetry
	MetricRefreshGraceUse       = internalmetrics.MetricRefreshGraceUse
	MetricRefreshReplay         = internalmetrics.MetricRefreshReplay
	MetricRefreshEvicted        = internalmetrics.MetricRefreshEvicted
	MetricRefreshRevoked        = internalmetrics.MetricRefreshRevoked
	MetricRefreshCleanupDeleted = internalmetrics.MetricRefreshCleanupDeleted
	MetricStoreUnavailable      = internalmetrics.MetricStoreUnavailable
	MetricValidateLatency       = internalmetrics.MetricValidateLatency
	MetricRotateLatency         = internalmetrics.MetricRotateLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
