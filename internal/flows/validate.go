package flows

import (
	"context"
	"errors"
	"log/slog"

	"github.com/civicpulse/tokenguard/internal/tokens"
	"github.com/civicpulse/tokenguard/refresh"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureFormat
	ValidateFailureAbsent
	ValidateFailureExpired
	ValidateFailureRevoked
	ValidateFailureStore
)

// ValidateResult returns either the token row or a classified failure.
type ValidateResult struct {
	Failure    ValidateFailureKind
	Err        error
	Token      *refresh.Token
	State      refresh.State
	HashPrefix string
}

// RunValidate classifies token without ever returning a Go error to the caller. The
// format check runs before any store access.
func RunValidate(ctx context.Context, token string, deps RefreshDeps) ValidateResult {
	if err := refresh.ValidateFormat(token); err != nil {
		return ValidateResult{Failure: ValidateFailureFormat, Err: err, State: refresh.StateAbsent}
	}

	log := deps.logger()
	hash := deps.Hash(token)
	prefix := refresh.HashPrefix(hash)

	row, err := deps.Store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, tokens.ErrNotFound) {
			log.Warn("refresh token not found", slog.String("hash_prefix", prefix))
			return ValidateResult{Failure: ValidateFailureAbsent, Err: err, State: refresh.StateAbsent, HashPrefix: prefix}
		}
		log.Error("refresh token lookup failed",
			slog.String("hash_prefix", prefix),
			slog.Any("err", err),
		)
		return ValidateResult{Failure: ValidateFailureStore, Err: err, State: refresh.StateAbsent, HashPrefix: prefix}
	}

	now := deps.Now()
	if !row.ExpiresAt.After(now) {
		log.Info("refresh token expired",
			slog.String("hash_prefix", prefix),
			slog.Duration("age", now.Sub(row.ExpiresAt)),
		)
		return ValidateResult{Failure: ValidateFailureExpired, Err: errors.New("refresh token expired"), State: refresh.StateDead, HashPrefix: prefix}
	}

	if row.RevokedAt != nil {
		if row.RevokedAt.After(now) {
			log.Info("refresh token used within grace window",
				slog.String("user_id", row.UserID),
				slog.String("hash_prefix", prefix),
				slog.Duration("grace_remaining", row.RevokedAt.Sub(now)),
			)
			return ValidateResult{Token: &row, State: refresh.StateGrace, HashPrefix: prefix}
		}
		log.Warn("security: possible replay attack, revoked refresh token presented",
			slog.String("user_id", row.UserID),
			slog.String("hash_prefix", prefix),
			slog.Duration("revoked_for", now.Sub(*row.RevokedAt)),
		)
		return ValidateResult{Failure: ValidateFailureRevoked, Err: errors.New("refresh token revoked"), State: refresh.StateDead, HashPrefix: prefix}
	}

	if err := deps.Store.Touch(ctx, row.ID, now); err != nil {
		log.Warn("refresh token last-use update failed",
			slog.String("hash_prefix", prefix),
			slog.Any("err", err),
		)
	} else {
		at := now
		row.LastUsedAt = &at
	}
	return ValidateResult{Token: &row, State: refresh.StateActive, HashPrefix: prefix}
}
