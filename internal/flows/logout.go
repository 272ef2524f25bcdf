package flows

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/civicpulse/tokenguard/jwt"
	"github.com/civicpulse/tokenguard/refresh"
)

// RevokeFailureKind classifies explicit-revocation failures.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureFormat
	RevokeFailureStore
)

// RevokeResult reports whether a row with the token hash existed.
type RevokeResult struct {
	Failure    RevokeFailureKind
	Err        error
	Found      bool
	HashPrefix string
}

// RunRevoke sets revokedAt = now on the token's row with no grace period.
func RunRevoke(ctx context.Context, token string, deps RefreshDeps) RevokeResult {
	if err := refresh.ValidateFormat(token); err != nil {
		return RevokeResult{Failure: RevokeFailureFormat, Err: err}
	}
	hash := deps.Hash(token)
	prefix := refresh.HashPrefix(hash)

	found, err := deps.Store.RevokeByHash(ctx, hash, deps.Now())
	if err != nil {
		return RevokeResult{Failure: RevokeFailureStore, Err: err, HashPrefix: prefix}
	}
	if !found {
		deps.logger().Debug("revoke requested for unknown refresh token", slog.String("hash_prefix", prefix))
	}
	return RevokeResult{Found: found, HashPrefix: prefix}
}

// RunCleanup deletes rows whose expiry or revocation lies more than Retention in the past.
func RunCleanup(ctx context.Context, deps RefreshDeps) (int64, error) {
	cutoff := deps.Now().Add(-deps.Retention)
	n, err := deps.Store.DeleteStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	deps.logger().Info("refresh token cleanup finished",
		slog.Int64("deleted", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}

// AccessBlacklist is the subset of the blacklist used by access-token logout.
type AccessBlacklist interface {
	Add(ctx context.Context, tokenID string, expiresAt time.Time) (time.Duration, error)
}

// LogoutDeps captures access-token revocation dependencies.
type LogoutDeps struct {
	ParseAccess func(string) (*jwt.RevocationClaims, error)
	Blacklist   AccessBlacklist
}

// LogoutByAccessResult reports the blacklisted identifier and applied TTL.
type LogoutByAccessResult struct {
	TokenID string
	UserID  string
	TTL     time.Duration
	Err     error
}

// RunLogoutByAccessToken verifies a signed access token and blacklists its jti until exp.
func RunLogoutByAccessToken(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutByAccessResult {
	if deps.ParseAccess == nil {
		return LogoutByAccessResult{Err: errors.New("access token parser not configured")}
	}
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return LogoutByAccessResult{Err: err}
	}

	ttl, err := deps.Blacklist.Add(ctx, claims.TokenID, claims.ExpiresAt)
	return LogoutByAccessResult{
		TokenID: claims.TokenID,
		UserID:  claims.Subject,
		TTL:     ttl,
		Err:     err,
	}
}
