package tokenguard

import (
	"github.com/civicpulse/tokenguard/internal/kv"
	"github.com/civicpulse/tokenguard/internal/security"
	"github.com/civicpulse/tokenguard/internal/tokens"
)

// SecurityReport summarises the deployment posture of an Engine: which
// backends were selected and how refresh tokens are protected. Findings lists
// stable codes for settings that weaken that posture, such as a volatile
// fallback backend or an unkeyed token hash.
type SecurityReport = security.Report

// SecurityReport builds the posture report for the running Engine.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	_, memTokens := e.tokens.(*tokens.MemoryStore)

	return security.BuildReport(security.ReportInput{
		KVBackend:           string(e.kv.Backend()),
		DurableKV:           e.kv.Backend() == kv.BackendRedis,
		DurableRefreshStore: !memTokens,
		HashKeyLength:       len(e.config.Refresh.HashKey),
		DeviceLimit:         e.config.Refresh.DeviceLimit,
		GracePeriod:         e.config.Refresh.GracePeriod,
		RefreshLifetime:     e.config.Refresh.Lifetime,
		RememberMeLifetime:  e.config.Refresh.RememberMeLifetime,
		Retention:           e.config.Refresh.Retention,
		SigningMethod:       e.config.AccessToken.SigningMethod,
		AuditEnabled:        e.audit != nil,
		MetricsEnabled:      e.metrics.Enabled(),
	})
}
