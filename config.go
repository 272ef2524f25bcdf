package tokenguard

import (
	"fmt"
	"strings"
	"time"
)

// Config holds every tunable of the Engine. Obtain one from [DefaultConfig],
// adjust it, and pass it to [Builder.WithConfig]. The Engine keeps a private
// deep copy, so later mutation of the caller's value has no effect.
type Config struct {
	KV           KVConfig
	RefreshStore RefreshStoreConfig
	Refresh      RefreshConfig
	Session      SessionConfig
	AccessToken  AccessTokenConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
KV CONFIG
====================================
*/

// KVConfig selects the key-value backend used for the blacklist, sessions and
// rate-limit counters. The selection happens once in Build.
type KVConfig struct {
	// URL is a redis:// or rediss:// connection string. Empty selects the in-process
	// fallback. Ignored when Builder.WithRedis supplies a client.
	URL string
	// Prefix namespaces every key this engine writes.
	Prefix string
	// DialTimeout bounds the startup ping.
	DialTimeout time.Duration
	// RequireDurable makes Build fail instead of falling back to process memory.
	RequireDurable bool
}

/*
====================================
REFRESH STORE CONFIG
====================================
*/

// RefreshStoreConfig selects where refresh-token rows live.
type RefreshStoreConfig struct {
	// DatabaseURL is a Postgres DSN. Empty selects the in-process store. Ignored when
	// Builder.WithPostgres supplies a pool.
	DatabaseURL string
	// AutoMigrate applies embedded schema migrations during Build.
	AutoMigrate bool
	// RequireDurable makes Build fail instead of using the in-process store.
	RequireDurable bool
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh-token issuance, rotation and retention.
type RefreshConfig struct {
	// DeviceLimit caps simultaneously ACTIVE tokens per user. Zero disables the cap.
	DeviceLimit int
	// Lifetime is the expiry of a token issued without remember-me.
	Lifetime time.Duration
	// RememberMeLifetime is the expiry of a token issued with remember-me.
	RememberMeLifetime time.Duration
	// GracePeriod is how long a rotated-out token stays valid.
	GracePeriod time.Duration
	// Retention is how long expired or revoked rows are kept before cleanup deletes them.
	Retention time.Duration
	// HashKey, when set, turns token hashing into HMAC-SHA256 under this key.
	HashKey []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls server-side session records.
type SessionConfig struct {
	// DefaultTTL applies when a caller passes a non-positive ttl.
	DefaultTTL time.Duration
}

/*
====================================
ACCESS TOKEN CONFIG
====================================
*/

// AccessTokenConfig configures verification of signed access tokens for
// BlacklistAccessToken and IsAccessTokenRevoked. An empty SigningMethod
// disables both operations.
type AccessTokenConfig struct {
	SigningMethod string // "ed25519", "hs256", or "" to disable
	Secret        []byte
	PublicKey     []byte
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous security-event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: device limit 10, 30-day and
// 90-day lifetimes, 30-second grace, 7-day retention, 1-hour sessions.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		KV: KVConfig{
			Prefix:      "tg:",
			DialTimeout: 3 * time.Second,
		},
		RefreshStore: RefreshStoreConfig{
			AutoMigrate: true,
		},
		Refresh: RefreshConfig{
			DeviceLimit:        10,
			Lifetime:           30 * 24 * time.Hour,
			RememberMeLifetime: 90 * 24 * time.Hour,
			GracePeriod:        30 * time.Second,
			Retention:          7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			DefaultTTL: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Refresh.HashKey = cloneBytes(cfg.Refresh.HashKey)
	out.AccessToken.Secret = cloneBytes(cfg.AccessToken.Secret)
	out.AccessToken.PublicKey = cloneBytes(cfg.AccessToken.PublicKey)
	if cfg.AccessToken.VerifyKeys != nil {
		out.AccessToken.VerifyKeys = make(map[string][]byte, len(cfg.AccessToken.VerifyKeys))
		for kid, key := range cfg.AccessToken.VerifyKeys {
			out.AccessToken.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field, wrapped in [ErrInvalidConfig].
func (c *Config) Validate() error {
	// KV
	if c.KV.Prefix == "" {
		return invalidConfig("KV Prefix must not be empty")
	}
	if strings.ContainsAny(c.KV.Prefix, "*?[] ") {
		return invalidConfig("KV Prefix must not contain glob characters or spaces")
	}
	if c.KV.DialTimeout < 0 {
		return invalidConfig("KV DialTimeout must be >= 0")
	}

	// Refresh
	if c.Refresh.DeviceLimit < 0 {
		return invalidConfig("Refresh DeviceLimit must be >= 0")
	}
	if c.Refresh.Lifetime <= 0 {
		return invalidConfig("Refresh Lifetime must be > 0")
	}
	if c.Refresh.RememberMeLifetime < c.Refresh.Lifetime {
		return invalidConfig("Refresh RememberMeLifetime must be >= Lifetime")
	}
	if c.Refresh.GracePeriod < 0 {
		return invalidConfig("Refresh GracePeriod must be >= 0")
	}
	if c.Refresh.GracePeriod >= c.Refresh.Lifetime {
		return invalidConfig("Refresh GracePeriod must be shorter than Lifetime")
	}
	if c.Refresh.Retention < 0 {
		return invalidConfig("Refresh Retention must be >= 0")
	}
	if n := len(c.Refresh.HashKey); n > 0 && n < 32 {
		return invalidConfig("Refresh HashKey must be at least 32 bytes when set")
	}

	// Session
	if c.Session.DefaultTTL <= 0 {
		return invalidConfig("Session DefaultTTL must be > 0")
	}

	// Access tokens
	switch c.AccessToken.SigningMethod {
	case "":
	case "hs256":
		if len(c.AccessToken.Secret) < 32 && len(c.AccessToken.VerifyKeys) == 0 {
			return invalidConfig("hs256 requires a Secret of at least 32 bytes or VerifyKeys")
		}
	case "ed25519":
		if len(c.AccessToken.PublicKey) == 0 && len(c.AccessToken.VerifyKeys) == 0 {
			return invalidConfig("ed25519 requires PublicKey or VerifyKeys")
		}
	default:
		return invalidConfig("unsupported AccessToken SigningMethod")
	}
	if c.AccessToken.Leeway < 0 || c.AccessToken.Leeway > 2*time.Minute {
		return invalidConfig("AccessToken Leeway must be within [0, 2m]")
	}
	if c.AccessToken.Audience != "" && strings.TrimSpace(c.AccessToken.Audience) == "" {
		return invalidConfig("AccessToken Audience must not be blank")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalidConfig("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func invalidConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
