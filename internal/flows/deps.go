package flows

import (
	"context"
	"time"

	"github.com/civicpulse/tokenguard/internal/tokens"
	"github.com/civicpulse/tokenguard/refresh"
)

// Deps groups flow dependency sets. The root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Refresh RefreshDeps
	Logout  LogoutDeps
}

// RefreshStore is the subset of tokens.Store the refresh flows use.
type RefreshStore interface {
	Issue(ctx context.Context, tok refresh.Token, opts tokens.IssueOptions) (tokens.IssueResult, error)
	FindByHash(ctx context.Context, hash string) (refresh.Token, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Supersede(ctx context.Context, oldID string, revokeAt time.Time, next refresh.Token, opts tokens.IssueOptions) (tokens.IssueResult, error)
	LatestSuccessor(ctx context.Context, userID string, after, now time.Time) (refresh.Token, error)
	RevokeByHash(ctx context.Context, hash string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}
