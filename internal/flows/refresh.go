package flows

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/civicpulse/tokenguard/internal/tokens"
	"github.com/civicpulse/tokenguard/refresh"
)

// RefreshDeps captures refresh-token flow dependencies.
type RefreshDeps struct {
	Store              RefreshStore
	Hash               func(string) string
	Now                func() time.Time
	NewID              func() string
	DeviceLimit        int
	Lifetime           time.Duration
	RememberMeLifetime time.Duration
	Retention          time.Duration
	Logger             *slog.Logger
}

func (d RefreshDeps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureFormat
	IssueFailureInvalidUser
	IssueFailureDuplicate
	IssueFailureExpired
	IssueFailureStore
)

// IssueInput describes a token to persist. A zero ExpiresAt is derived from RememberMe.
type IssueInput struct {
	UserID     string
	Token      string
	ExpiresAt  time.Time
	DeviceInfo map[string]string
	RememberMe bool
}

// IssueResult carries the stored row or failure metadata.
type IssueResult struct {
	Failure    IssueFailureKind
	Err        error
	Token      *refresh.Token
	Evicted    []refresh.Token
	HashPrefix string
}

// RunIssue hashes the plaintext, enforces the device limit, and inserts an ACTIVE row.
func RunIssue(ctx context.Context, in IssueInput, deps RefreshDeps) IssueResult {
	if err := refresh.ValidateFormat(in.Token); err != nil {
		return IssueResult{Failure: IssueFailureFormat, Err: err}
	}
	if strings.TrimSpace(in.UserID) == "" {
		return IssueResult{Failure: IssueFailureInvalidUser, Err: errors.New("empty user id")}
	}

	now := deps.Now()
	hash := deps.Hash(in.Token)
	prefix := refresh.HashPrefix(hash)

	expiresAt := in.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = refresh.ExpiryFor(now, in.RememberMe, deps.Lifetime, deps.RememberMeLifetime)
	} else if !expiresAt.After(now) {
		return IssueResult{Failure: IssueFailureExpired, Err: errors.New("expiry not in the future"), HashPrefix: prefix}
	}

	res, err := deps.Store.Issue(ctx, refresh.Token{
		ID:         deps.NewID(),
		UserID:     in.UserID,
		TokenHash:  hash,
		ExpiresAt:  expiresAt,
		DeviceInfo: in.DeviceInfo,
		RememberMe: in.RememberMe,
		CreatedAt:  now,
	}, tokens.IssueOptions{DeviceLimit: deps.DeviceLimit, Now: now})
	if err != nil {
		kind := IssueFailureStore
		if errors.Is(err, tokens.ErrDuplicateHash) {
			kind = IssueFailureDuplicate
		}
		deps.logger().Error("refresh token issue failed",
			slog.String("user_id", in.UserID),
			slog.String("hash_prefix", prefix),
			slog.Any("err", err),
		)
		return IssueResult{Failure: kind, Err: err, HashPrefix: prefix}
	}

	logEvictions(deps.logger(), in.UserID, res.Evicted)
	tok := res.Token
	return IssueResult{Token: &tok, Evicted: res.Evicted, HashPrefix: prefix}
}

func logEvictions(logger *slog.Logger, userID string, evicted []refresh.Token) {
	for _, ev := range evicted {
		logger.Info("device limit reached, evicted oldest refresh token",
			slog.String("user_id", userID),
			slog.String("evicted_id", ev.ID),
			slog.String("hash_prefix", refresh.HashPrefix(ev.TokenHash)),
			slog.Time("evicted_created_at", ev.CreatedAt),
		)
	}
}

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureFormat
	RotateFailureAbsent
	RotateFailureExpired
	RotateFailureReplay
	RotateFailureDuplicate
	RotateFailureStore
)

// RotateResult carries the successor row or failure metadata.
type RotateResult struct {
	Failure    RotateFailureKind
	Err        error
	Token      *refresh.Token
	OldID      string
	UserID     string
	HashPrefix string
	// Idempotent is set when the successor already existed and was returned unchanged.
	Idempotent bool
	// OldState is the old token's state when the idempotency path resolved it.
	OldState refresh.State
	Evicted  []refresh.Token
}

// RunRotate replaces oldToken with newToken, leaving oldToken valid for grace.
func RunRotate(ctx context.Context, oldToken, newToken string, grace time.Duration, deps RefreshDeps) RotateResult {
	if err := refresh.ValidateFormat(oldToken); err != nil {
		return RotateResult{Failure: RotateFailureFormat, Err: err}
	}
	if err := refresh.ValidateFormat(newToken); err != nil {
		return RotateResult{Failure: RotateFailureFormat, Err: err}
	}
	if grace < 0 {
		grace = 0
	}

	log := deps.logger()
	oldHash := deps.Hash(oldToken)
	prefix := refresh.HashPrefix(oldHash)

	old, err := deps.Store.FindByHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, tokens.ErrNotFound) {
			log.Warn("security: rotation attempted on unknown refresh token",
				slog.String("hash_prefix", prefix),
			)
			return RotateResult{Failure: RotateFailureAbsent, Err: err, HashPrefix: prefix}
		}
		return RotateResult{Failure: RotateFailureStore, Err: err, HashPrefix: prefix}
	}

	base := RotateResult{OldID: old.ID, UserID: old.UserID, HashPrefix: prefix}
	now := deps.Now()

	if old.RevokedAt == nil {
		if !old.ExpiresAt.After(now) {
			log.Info("refresh rotation rejected: token expired",
				slog.String("hash_prefix", prefix),
				slog.Duration("age", now.Sub(old.ExpiresAt)),
			)
			base.Failure = RotateFailureExpired
			base.Err = errors.New("refresh token expired")
			return base
		}

		revokeAt := now.Add(grace)
		if revokeAt.After(old.ExpiresAt) {
			revokeAt = old.ExpiresAt
		}
		// Successor lookup requires a strictly later created_at, and Postgres
		// truncates to microseconds.
		created := now
		if floor := old.CreatedAt.Truncate(time.Microsecond).Add(time.Microsecond); created.Before(floor) {
			created = floor
		}
		next := refresh.Token{
			ID:         deps.NewID(),
			UserID:     old.UserID,
			TokenHash:  deps.Hash(newToken),
			ExpiresAt:  refresh.ExpiryFor(now, old.RememberMe, deps.Lifetime, deps.RememberMeLifetime),
			DeviceInfo: old.DeviceInfo,
			RememberMe: old.RememberMe,
			CreatedAt:  created,
		}

		res, err := deps.Store.Supersede(ctx, old.ID, revokeAt, next, tokens.IssueOptions{
			DeviceLimit: deps.DeviceLimit,
			Now:         now,
		})
		switch {
		case err == nil:
			log.Info("refresh token rotated",
				slog.String("user_id", old.UserID),
				slog.String("hash_prefix", prefix),
				slog.String("successor_prefix", refresh.HashPrefix(next.TokenHash)),
				slog.Time("grace_until", revokeAt),
			)
			logEvictions(log, old.UserID, res.Evicted)
			tok := res.Token
			base.Token = &tok
			base.Evicted = res.Evicted
			return base
		case errors.Is(err, tokens.ErrAlreadyRevoked):
			// Lost the swap to a concurrent rotation; resolve through its successor.
			log.Debug("refresh rotation lost race, resolving successor",
				slog.String("hash_prefix", prefix),
			)
			fresh, ferr := deps.Store.FindByHash(ctx, oldHash)
			if ferr == nil {
				old = fresh
			}
		case errors.Is(err, tokens.ErrNotFound):
			log.Warn("security: rotation target vanished during rotation",
				slog.String("hash_prefix", prefix),
			)
			base.Failure = RotateFailureAbsent
			base.Err = err
			return base
		case errors.Is(err, tokens.ErrDuplicateHash):
			base.Failure = RotateFailureDuplicate
			base.Err = err
			return base
		default:
			base.Failure = RotateFailureStore
			base.Err = err
			return base
		}
	}

	return resolveSuccessor(ctx, old, now, base, deps)
}

// resolveSuccessor is the idempotency path for a token that already carries revokedAt.
func resolveSuccessor(ctx context.Context, old refresh.Token, now time.Time, base RotateResult, deps RefreshDeps) RotateResult {
	log := deps.logger()
	state := old.StateAt(now)
	base.OldState = state

	succ, err := deps.Store.LatestSuccessor(ctx, old.UserID, old.CreatedAt, now)
	if err != nil {
		if errors.Is(err, tokens.ErrNotFound) {
			log.Warn("security: possible token theft, revoked refresh token has no valid successor",
				slog.String("user_id", old.UserID),
				slog.String("hash_prefix", base.HashPrefix),
				slog.String("state", state.String()),
			)
			base.Failure = RotateFailureReplay
			base.Err = err
			return base
		}
		base.Failure = RotateFailureStore
		base.Err = err
		return base
	}

	level := slog.LevelInfo
	if state != refresh.StateGrace {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "refresh rotation retry resolved to existing successor",
		slog.String("user_id", old.UserID),
		slog.String("hash_prefix", base.HashPrefix),
		slog.String("successor_prefix", refresh.HashPrefix(succ.TokenHash)),
		slog.String("state", state.String()),
	)
	base.Token = &succ
	base.Idempotent = true
	return base
}
