package security

import "time"

// Finding codes reported by BuildReport.
const (
	FindingVolatileKV        = "kv_volatile_fallback"
	FindingVolatileTokens    = "refresh_store_in_memory"
	FindingUnkeyedHash       = "refresh_hash_unkeyed"
	FindingNoDeviceLimit     = "device_limit_disabled"
	FindingLongGrace         = "grace_period_long"
	FindingNoAccessVerifier  = "access_verifier_missing"
	FindingAuditDisabled     = "audit_disabled"
	FindingShortRetention    = "retention_short"
	longGraceThreshold       = 5 * time.Minute
	shortRetentionThreshold  = 24 * time.Hour
)

type Report struct {
	KVBackend           string
	DurableKV           bool
	DurableRefreshStore bool
	KeyedTokenHash      bool
	DeviceLimit         int
	GracePeriod         time.Duration
	RefreshLifetime     time.Duration
	RememberMeLifetime  time.Duration
	Retention           time.Duration
	AccessVerifier      string
	AuditEnabled        bool
	MetricsEnabled      bool
	Findings            []string
}

type ReportInput struct {
	KVBackend           string
	DurableKV           bool
	DurableRefreshStore bool
	HashKeyLength       int
	DeviceLimit         int
	GracePeriod         time.Duration
	RefreshLifetime     time.Duration
	RememberMeLifetime  time.Duration
	Retention           time.Duration
	SigningMethod       string
	AuditEnabled        bool
	MetricsEnabled      bool
}

func BuildReport(input ReportInput) Report {
	r := Report{
		KVBackend:           input.KVBackend,
		DurableKV:           input.DurableKV,
		DurableRefreshStore: input.DurableRefreshStore,
		KeyedTokenHash:      input.HashKeyLength > 0,
		DeviceLimit:         input.DeviceLimit,
		GracePeriod:         input.GracePeriod,
		RefreshLifetime:     input.RefreshLifetime,
		RememberMeLifetime:  input.RememberMeLifetime,
		Retention:           input.Retention,
		AccessVerifier:      input.SigningMethod,
		AuditEnabled:        input.AuditEnabled,
		MetricsEnabled:      input.MetricsEnabled,
	}

	if !r.DurableKV {
		r.Findings = append(r.Findings, FindingVolatileKV)
	}
	if !r.DurableRefreshStore {
		r.Findings = append(r.Findings, FindingVolatileTokens)
	}
	if !r.KeyedTokenHash {
		r.Findings = append(r.Findings, FindingUnkeyedHash)
	}
	if r.DeviceLimit <= 0 {
		r.Findings = append(r.Findings, FindingNoDeviceLimit)
	}
	if r.GracePeriod > longGraceThreshold {
		r.Findings = append(r.Findings, FindingLongGrace)
	}
	if r.AccessVerifier == "" {
		r.Findings = append(r.Findings, FindingNoAccessVerifier)
	}
	if !r.AuditEnabled {
		r.Findings = append(r.Findings, FindingAuditDisabled)
	}
	if r.Retention < shortRetentionThreshold {
		r.Findings = append(r.Findings, FindingShortRetention)
	}
	return r
}
