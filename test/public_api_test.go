package test

import (
	"context"
	"testing"
	"time"

	"github.com/civicpulse/tokenguard"
	"github.com/civicpulse/tokenguard/metrics/export/otel"
	"github.com/civicpulse/tokenguard/metrics/export/prometheus"
)

// Guards the exported surface against accidental signature changes.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = tokenguard.New
	_ = tokenguard.DefaultConfig

	var _ *tokenguard.Engine
	var _ tokenguard.Config
	var _ tokenguard.RefreshToken
	var _ tokenguard.SessionRecord
	var _ tokenguard.RateLimitResult
	var _ tokenguard.RotateResult
	var _ tokenguard.SecurityReport
	var _ tokenguard.AuditSink = tokenguard.NewChannelSink(1)

	var _ error = tokenguard.ErrTokenFormat
	var _ error = tokenguard.ErrTokenNotFound
	var _ error = tokenguard.ErrTokenExpired
	var _ error = tokenguard.ErrTokenReplay
	var _ error = tokenguard.ErrSessionNotFound
	var _ error = tokenguard.ErrStoreUnavailable

	var _ func(*tokenguard.Engine, context.Context, string, time.Time) error = (*tokenguard.Engine).BlacklistToken
	var _ func(*tokenguard.Engine, context.Context, string) (bool, error) = (*tokenguard.Engine).IsTokenBlacklisted
	var _ func(*tokenguard.Engine, context.Context, string, map[string]any, time.Duration) (string, error) = (*tokenguard.Engine).CreateUserSession
	var _ func(*tokenguard.Engine, context.Context, string) (*tokenguard.SessionRecord, error) = (*tokenguard.Engine).GetUserSession
	var _ func(*tokenguard.Engine, context.Context, string, time.Duration) error = (*tokenguard.Engine).UpdateSessionActivity
	var _ func(*tokenguard.Engine, context.Context, string) error = (*tokenguard.Engine).RevokeUserSession
	var _ func(*tokenguard.Engine, context.Context, string) (int, error) = (*tokenguard.Engine).RevokeAllUserSessions
	var _ func(*tokenguard.Engine, context.Context, string, int, time.Duration) (tokenguard.RateLimitResult, error) = (*tokenguard.Engine).CheckRateLimit
	var _ func(*tokenguard.Engine, context.Context, tokenguard.StoreRefreshInput) (*tokenguard.RefreshToken, error) = (*tokenguard.Engine).StoreRefreshToken
	var _ func(*tokenguard.Engine, context.Context, string) *tokenguard.RefreshToken = (*tokenguard.Engine).ValidateRefreshToken
	var _ func(*tokenguard.Engine, context.Context, string, string) (*tokenguard.RefreshToken, error) = (*tokenguard.Engine).RotateRefreshToken
	var _ func(*tokenguard.Engine, context.Context, string) error = (*tokenguard.Engine).RevokeRefreshToken
	var _ func(*tokenguard.Engine, context.Context, string) (int64, error) = (*tokenguard.Engine).RevokeAllUserRefreshTokens
	var _ func(*tokenguard.Engine, context.Context) (int64, error) = (*tokenguard.Engine).CleanupExpiredRefreshTokens

	_ = prometheus.NewCollector
	_ = prometheus.NewPrometheusExporter
	_ = otel.NewOTelExporter
}
