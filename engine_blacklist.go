package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/civicpulse/tokenguard/internal/flows"
	"github.com/civicpulse/tokenguard/internal/stores"
)

// BlacklistToken marks the access token tokenID as revoked until expiresAt.
//
// The entry's TTL is the whole seconds remaining until expiresAt, so it never
// outlives the token it blocks. A token with less than one second left is
// already unusable and nothing is written.
func (e *Engine) BlacklistToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if e == nil {
		return ErrEngineNotReady
	}

	ttl, err := e.blacklist.Add(ctx, tokenID, expiresAt)
	if err != nil {
		return e.blacklistError("blacklist.add", err)
	}
	if ttl > 0 {
		e.metricInc(MetricBlacklistAdded)
		e.emitAudit(ctx, auditEventAccessBlacklisted, true, "", "", "", nil, func() map[string]string {
			return map[string]string{
				"token_id":    tokenID,
				"ttl_seconds": strconv.FormatInt(int64(ttl/time.Second), 10),
			}
		})
	}
	return nil
}

// IsTokenBlacklisted reports whether tokenID is currently blacklisted.
func (e *Engine) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}

	found, err := e.blacklist.Contains(ctx, tokenID)
	if err != nil {
		return false, e.blacklistError("blacklist.contains", err)
	}
	if found {
		e.metricInc(MetricBlacklistHit)
	}
	return found, nil
}

// BlacklistAccessToken verifies a signed access token and blacklists its jti
// until its exp. It returns the blacklisted jti.
func (e *Engine) BlacklistAccessToken(ctx context.Context, accessToken string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if e.verifier == nil {
		return "", ErrAccessVerifierDisabled
	}

	res := flows.RunLogoutByAccessToken(ctx, accessToken, e.flowDeps.Logout)
	if res.Err != nil {
		if errors.Is(res.Err, stores.ErrBackendUnavailable) || errors.Is(res.Err, stores.ErrEmptyTokenID) {
			return "", e.blacklistError("blacklist.add", res.Err)
		}
		e.emitAudit(ctx, auditEventAccessBlacklisted, false, "", "", "", ErrAccessTokenInvalid, nil)
		return "", fmt.Errorf("%w: %v", ErrAccessTokenInvalid, res.Err)
	}

	if res.TTL > 0 {
		e.metricInc(MetricBlacklistAdded)
		e.emitAudit(ctx, auditEventAccessBlacklisted, true, res.UserID, "", "", nil, func() map[string]string {
			return map[string]string{
				"token_id":    res.TokenID,
				"ttl_seconds": strconv.FormatInt(int64(res.TTL/time.Second), 10),
			}
		})
	}
	return res.TokenID, nil
}

// IsAccessTokenRevoked verifies a signed access token and reports whether its
// jti is blacklisted. A token that fails verification returns ErrAccessTokenInvalid.
func (e *Engine) IsAccessTokenRevoked(ctx context.Context, accessToken string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if e.verifier == nil {
		return false, ErrAccessVerifierDisabled
	}

	claims, err := e.verifier.Parse(accessToken)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAccessTokenInvalid, err)
	}
	return e.IsTokenBlacklisted(ctx, claims.TokenID)
}

func (e *Engine) blacklistError(op string, err error) error {
	if errors.Is(err, stores.ErrEmptyTokenID) {
		return ErrInvalidTokenID
	}
	return e.unavailable(op, err)
}
