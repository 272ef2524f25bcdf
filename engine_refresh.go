package tokenguard

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/civicpulse/tokenguard/internal/flows"
	"github.com/civicpulse/tokenguard/internal/tokens"
	"github.com/civicpulse/tokenguard/refresh"
)

// StoreRefreshToken hashes in.Token and persists it as an ACTIVE row.
//
// A non-zero ExpiresAt that is not after the current time yields ErrTokenExpired
// and stores nothing.
//
// When the user already holds Config.Refresh.DeviceLimit ACTIVE tokens, the one
// with the oldest creation time is revoked immediately, in the same store
// transaction. Eviction is reported through metrics and audit, never as an error.
func (e *Engine) StoreRefreshToken(ctx context.Context, in StoreRefreshInput) (*RefreshToken, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunIssue(ctx, flows.IssueInput{
		UserID:     in.UserID,
		Token:      in.Token,
		ExpiresAt:  in.ExpiresAt,
		DeviceInfo: in.DeviceInfo,
		RememberMe: in.RememberMe,
	}, e.flowDeps.Refresh)

	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureFormat:
		return nil, ErrTokenFormat
	case flows.IssueFailureInvalidUser:
		return nil, ErrInvalidUserID
	case flows.IssueFailureExpired:
		return nil, ErrTokenExpired
	case flows.IssueFailureDuplicate:
		e.emitAudit(ctx, auditEventRefreshIssued, false, in.UserID, "", res.HashPrefix, ErrDuplicateToken, nil)
		return nil, ErrDuplicateToken
	default:
		return nil, e.unavailable("refresh.issue", res.Err)
	}

	e.metricInc(MetricRefreshIssued)
	e.emitAudit(ctx, auditEventRefreshIssued, true, in.UserID, "", res.HashPrefix, nil, func() map[string]string {
		return map[string]string{"remember_me": strconv.FormatBool(in.RememberMe)}
	})
	e.emitEvictions(ctx, in.UserID, res.Evicted)
	return res.Token, nil
}

// ValidateRefreshToken returns the token's row when it is ACTIVE or in its
// grace window, and nil otherwise. It never returns an error: malformed,
// unknown, expired, revoked and backend-failure cases all yield nil.
//
// The format check runs before any store access. An ACTIVE token has its
// last-use time updated.
func (e *Engine) ValidateRefreshToken(ctx context.Context, token string) *RefreshToken {
	tok, _ := e.CheckRefreshToken(ctx, token)
	return tok
}

// CheckRefreshToken is ValidateRefreshToken with the rejection reason:
// ErrTokenFormat, ErrTokenNotFound, ErrTokenExpired, ErrTokenRevoked or
// ErrStoreUnavailable.
func (e *Engine) CheckRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	res := flows.RunValidate(ctx, token, e.flowDeps.Refresh)
	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricRefreshValidated)
		if res.State == refresh.StateGrace {
			e.metricInc(MetricRefreshGraceUse)
			remaining := res.Token.RevokedAt.Sub(e.now())
			e.emitAudit(ctx, auditEventRefreshGraceUse, true, res.Token.UserID, "", res.HashPrefix, nil, func() map[string]string {
				return map[string]string{"grace_remaining_ms": strconv.FormatInt(remaining.Milliseconds(), 10)}
			})
		}
		return res.Token, nil
	case flows.ValidateFailureFormat:
		e.metricInc(MetricRefreshRejected)
		return nil, ErrTokenFormat
	case flows.ValidateFailureAbsent:
		e.metricInc(MetricRefreshRejected)
		return nil, ErrTokenNotFound
	case flows.ValidateFailureExpired:
		e.metricInc(MetricRefreshRejected)
		return nil, ErrTokenExpired
	case flows.ValidateFailureRevoked:
		e.metricInc(MetricRefreshRejected)
		e.metricInc(MetricRefreshReplay)
		e.emitAudit(ctx, auditEventRefreshReplaySuspected, false, "", "", res.HashPrefix, ErrTokenRevoked, func() map[string]string {
			return map[string]string{"path": "validate"}
		})
		return nil, ErrTokenRevoked
	default:
		return nil, e.unavailable("refresh.validate", res.Err)
	}
}

// RefreshTokenState classifies token as ACTIVE, GRACE, DEAD or ABSENT without
// updating its last-use time. A malformed token is ABSENT.
func (e *Engine) RefreshTokenState(ctx context.Context, token string) (RefreshTokenState, error) {
	if e == nil {
		return StateAbsent, ErrEngineNotReady
	}
	if err := refresh.ValidateFormat(token); err != nil {
		return StateAbsent, nil
	}

	row, err := e.tokens.FindByHash(ctx, e.hasher.Hash(token))
	if err != nil {
		if errors.Is(err, tokens.ErrNotFound) {
			return StateAbsent, nil
		}
		return StateAbsent, e.unavailable("refresh.state", err)
	}
	return row.StateAt(e.now()), nil
}

// RotateRefreshToken replaces oldToken with newToken using the configured
// grace period. See RotateRefreshTokenDetailed.
func (e *Engine) RotateRefreshToken(ctx context.Context, oldToken, newToken string) (*RefreshToken, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.RotateRefreshTokenWithGrace(ctx, oldToken, newToken, e.config.Refresh.GracePeriod)
}

// RotateRefreshTokenWithGrace replaces oldToken with newToken, leaving oldToken
// valid for grace. See RotateRefreshTokenDetailed.
func (e *Engine) RotateRefreshTokenWithGrace(ctx context.Context, oldToken, newToken string, grace time.Duration) (*RefreshToken, error) {
	res, err := e.RotateRefreshTokenDetailed(ctx, oldToken, newToken, grace)
	if err != nil {
		return nil, err
	}
	return res.Token, nil
}

// RotateRefreshTokenDetailed replaces oldToken with newToken.
//
// An ACTIVE oldToken moves to GRACE (revoked at now+grace, never later than its
// expiry) and a successor carrying its device info and remember-me flag is
// inserted, atomically. When oldToken was already rotated, the newest live
// token of the same user created after it is returned unchanged and newToken
// is discarded; concurrent rotations of one token therefore converge on a
// single successor.
//
// Errors: ErrTokenFormat for a malformed oldToken or newToken, ErrTokenNotFound
// when oldToken was never stored, ErrTokenExpired when oldToken expired
// unrevoked, ErrTokenReplay when oldToken is revoked and has no live successor.
func (e *Engine) RotateRefreshTokenDetailed(ctx context.Context, oldToken, newToken string, grace time.Duration) (RotateResult, error) {
	if e == nil {
		return RotateResult{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricRotateLatency, start)

	res := flows.RunRotate(ctx, oldToken, newToken, grace, e.flowDeps.Refresh)
	switch res.Failure {
	case flows.RotateFailureNone:
	case flows.RotateFailureFormat:
		return RotateResult{}, ErrTokenFormat
	case flows.RotateFailureAbsent:
		e.emitAudit(ctx, auditEventRefreshRotationUnknown, false, "", "", res.HashPrefix, ErrTokenNotFound, nil)
		return RotateResult{}, ErrTokenNotFound
	case flows.RotateFailureExpired:
		return RotateResult{}, ErrTokenExpired
	case flows.RotateFailureReplay:
		e.metricInc(MetricRefreshReplay)
		e.emitAudit(ctx, auditEventRefreshReplaySuspected, false, res.UserID, "", res.HashPrefix, ErrTokenReplay, func() map[string]string {
			return map[string]string{
				"path":      "rotate",
				"old_state": res.OldState.String(),
			}
		})
		return RotateResult{}, ErrTokenReplay
	case flows.RotateFailureDuplicate:
		return RotateResult{}, ErrDuplicateToken
	default:
		return RotateResult{}, e.unavailable("refresh.rotate", res.Err)
	}

	if res.Idempotent {
		e.metricInc(MetricRefreshRotationRetry)
		e.emitAudit(ctx, auditEventRefreshRotationRetry, true, res.UserID, "", res.HashPrefix, nil, func() map[string]string {
			return map[string]string{
				"old_state":        res.OldState.String(),
				"successor_prefix": refresh.HashPrefix(res.Token.TokenHash),
			}
		})
		return RotateResult{Token: res.Token, Idempotent: true}, nil
	}

	e.metricInc(MetricRefreshRotated)
	e.emitAudit(ctx, auditEventRefreshRotated, true, res.UserID, "", res.HashPrefix, nil, func() map[string]string {
		return map[string]string{"successor_prefix": refresh.HashPrefix(res.Token.TokenHash)}
	})
	e.emitEvictions(ctx, res.UserID, res.Evicted)
	return RotateResult{Token: res.Token, Evicted: len(res.Evicted)}, nil
}

// RevokeRefreshToken revokes token immediately, with no grace period. Revoking
// an unknown token is not an error.
func (e *Engine) RevokeRefreshToken(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	res := flows.RunRevoke(ctx, token, e.flowDeps.Refresh)
	switch res.Failure {
	case flows.RevokeFailureNone:
	case flows.RevokeFailureFormat:
		return ErrTokenFormat
	default:
		return e.unavailable("refresh.revoke", res.Err)
	}

	if res.Found {
		e.metricInc(MetricRefreshRevoked)
		e.emitAudit(ctx, auditEventRefreshRevoked, true, "", "", res.HashPrefix, nil, nil)
	}
	return nil
}

// RevokeAllUserRefreshTokens revokes every live token of userID immediately and
// returns how many rows changed.
func (e *Engine) RevokeAllUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidUserID
	}

	n, err := e.tokens.RevokeAllForUser(ctx, userID, e.now())
	if err != nil {
		return 0, e.unavailable("refresh.revoke_all", err)
	}
	e.metrics.Add(MetricRefreshRevoked, uint64(n))
	e.logger.Info("revoked all refresh tokens for user",
		slog.String("user_id", userID),
		slog.Int64("count", n),
	)
	e.emitAudit(ctx, auditEventRefreshRevokedAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"count": strconv.FormatInt(n, 10)}
	})
	return n, nil
}

// CleanupExpiredRefreshTokens deletes rows whose expiry or revocation lies more
// than Config.Refresh.Retention in the past and returns how many were deleted.
// It is meant to be called by a periodic scheduler such as cmd/tokenguard-janitor.
func (e *Engine) CleanupExpiredRefreshTokens(ctx context.Context) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	n, err := flows.RunCleanup(ctx, e.flowDeps.Refresh)
	if err != nil {
		return 0, e.unavailable("refresh.cleanup", err)
	}
	e.metrics.Add(MetricRefreshCleanupDeleted, uint64(n))
	return n, nil
}
