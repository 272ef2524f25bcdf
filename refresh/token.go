package refresh

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// TokenLength is the exact length of a plaintext refresh token.
const TokenLength = 64

const hashPrefixLen = 8

// ErrMalformedToken is returned when a token is not 64 lowercase hex characters.
var ErrMalformedToken = errors.New("refresh: malformed token")

// ValidateFormat rejects anything that is not exactly 64 lowercase hex characters.
func ValidateFormat(token string) error {
	if len(token) != TokenLength {
		return ErrMalformedToken
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return ErrMalformedToken
		}
	}
	return nil
}

// Hasher derives the storage key of a plaintext token. With a key configured it computes
// HMAC-SHA256, otherwise plain SHA-256. Output is lowercase hex.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher. A nil or empty key selects plain SHA-256.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Hasher{key: k}
}

// Hash returns the hex digest of token.
func (h Hasher) Hash(token string) string {
	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(token))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashPrefix returns the log-safe prefix of a digest.
func HashPrefix(hash string) string {
	if len(hash) <= hashPrefixLen {
		return hash
	}
	return hash[:hashPrefixLen]
}

// State is the lifecycle classification of a refresh token at an instant.
type State uint8

const (
	StateAbsent State = iota
	StateActive
	StateGrace
	StateDead
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateGrace:
		return "grace"
	case StateDead:
		return "dead"
	default:
		return "absent"
	}
}

// Token is a persisted refresh-token row. The plaintext is never held here.
type Token struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	TokenHash  string            `json:"token_hash"`
	ExpiresAt  time.Time         `json:"expires_at"`
	RevokedAt  *time.Time        `json:"revoked_at,omitempty"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`
	RememberMe bool              `json:"remember_me"`
	CreatedAt  time.Time         `json:"created_at"`
	LastUsedAt *time.Time        `json:"last_used_at,omitempty"`
}

// StateAt classifies t at now. Expiry wins over a pending grace window.
func (t *Token) StateAt(now time.Time) State {
	if t == nil {
		return StateAbsent
	}
	if !t.ExpiresAt.After(now) {
		return StateDead
	}
	if t.RevokedAt == nil {
		return StateActive
	}
	if t.RevokedAt.After(now) {
		return StateGrace
	}
	return StateDead
}

// Usable reports whether t is ACTIVE or GRACE at now.
func (t *Token) Usable(now time.Time) bool {
	s := t.StateAt(now)
	return s == StateActive || s == StateGrace
}

// Clone returns a deep copy.
func (t Token) Clone() Token {
	out := t
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		out.RevokedAt = &v
	}
	if t.LastUsedAt != nil {
		v := *t.LastUsedAt
		out.LastUsedAt = &v
	}
	if t.DeviceInfo != nil {
		out.DeviceInfo = make(map[string]string, len(t.DeviceInfo))
		for k, v := range t.DeviceInfo {
			out.DeviceInfo[k] = v
		}
	}
	return out
}

// ExpiryFor returns the fixed expiry of a token issued at now.
func ExpiryFor(now time.Time, rememberMe bool, lifetime, rememberMeLifetime time.Duration) time.Time {
	if rememberMe {
		return now.Add(rememberMeLifetime)
	}
	return now.Add(lifetime)
}
