package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/civicpulse/tokenguard/refresh"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("tokens: not found")
	// ErrDuplicateHash is returned when token_hash uniqueness would be violated.
	ErrDuplicateHash = errors.New("tokens: duplicate token hash")
	// ErrAlreadyRevoked is returned by Supersede when the old row already has revoked_at set.
	ErrAlreadyRevoked = errors.New("tokens: already revoked")
	// ErrUnavailable wraps driver and connection failures.
	ErrUnavailable = errors.New("tokens: store unavailable")
)

// IssueOptions carries the per-call policy for inserting a row.
type IssueOptions struct {
	// DeviceLimit caps ACTIVE rows per user. Zero or negative disables the cap.
	DeviceLimit int
	// Now is the instant used for ACTIVE classification and eviction stamps.
	Now time.Time
}

// IssueResult is the inserted row plus any rows evicted to honour the device limit.
type IssueResult struct {
	Token   refresh.Token
	Evicted []refresh.Token
}

// Store is the refresh-token persistence contract.
type Store interface {
	Issue(ctx context.Context, tok refresh.Token, opts IssueOptions) (IssueResult, error)
	FindByHash(ctx context.Context, hash string) (refresh.Token, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Supersede(ctx context.Context, oldID string, revokeAt time.Time, next refresh.Token, opts IssueOptions) (IssueResult, error)
	LatestSuccessor(ctx context.Context, userID string, after, now time.Time) (refresh.Token, error)
	RevokeByHash(ctx context.Context, hash string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}
