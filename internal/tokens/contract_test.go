package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/tokenguard/refresh"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRow(userID string, n int, createdAt time.Time) refresh.Token {
	return refresh.Token{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  fmt.Sprintf("%s-hash-%03d-%s", userID, n, uuid.NewString()),
		ExpiresAt:  createdAt.Add(30 * 24 * time.Hour),
		DeviceInfo: map[string]string{"device": fmt.Sprintf("d%d", n)},
		CreatedAt:  createdAt,
	}
}

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("issue and find", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		row := newRow("u-find", 1, baseTime)
		row.RememberMe = true

		res, err := s.Issue(ctx, row, IssueOptions{DeviceLimit: 10, Now: baseTime})
		require.NoError(t, err)
		require.Empty(t, res.Evicted)
		require.Equal(t, row.ID, res.Token.ID)

		got, err := s.FindByHash(ctx, row.TokenHash)
		require.NoError(t, err)
		require.Equal(t, row.UserID, got.UserID)
		require.True(t, got.RememberMe)
		require.Equal(t, "d1", got.DeviceInfo["device"])
		require.Nil(t, got.RevokedAt)
		require.WithinDuration(t, row.ExpiresAt, got.ExpiresAt, time.Millisecond)

		_, err = s.FindByHash(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate hash rejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := newRow("u-dup", 1, baseTime)
		_, err := s.Issue(ctx, a, IssueOptions{Now: baseTime})
		require.NoError(t, err)

		b := newRow("u-dup", 2, baseTime)
		b.TokenHash = a.TokenHash
		_, err = s.Issue(ctx, b, IssueOptions{Now: baseTime})
		require.ErrorIs(t, err, ErrDuplicateHash)
	})

	t.Run("device cap evicts oldest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		user := "u-cap"
		var first refresh.Token
		for i := 0; i < 10; i++ {
			row := newRow(user, i, baseTime.Add(time.Duration(i)*time.Minute))
			if i == 0 {
				first = row
			}
			res, err := s.Issue(ctx, row, IssueOptions{DeviceLimit: 10, Now: row.CreatedAt})
			require.NoError(t, err)
			require.Empty(t, res.Evicted)
		}

		now := baseTime.Add(time.Hour)
		res, err := s.Issue(ctx, newRow(user, 10, now), IssueOptions{DeviceLimit: 10, Now: now})
		require.NoError(t, err)
		require.Len(t, res.Evicted, 1)
		require.Equal(t, first.ID, res.Evicted[0].ID)

		evicted, err := s.FindByHash(ctx, first.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, evicted.RevokedAt)
		require.True(t, evicted.RevokedAt.Equal(now), "eviction must not carry a grace period")
	})

	t.Run("supersede is compare and swap", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		old := newRow("u-cas", 1, baseTime)
		_, err := s.Issue(ctx, old, IssueOptions{DeviceLimit: 10, Now: baseTime})
		require.NoError(t, err)

		now := baseTime.Add(10 * time.Second)
		graceUntil := now.Add(30 * time.Second)
		next := newRow("u-cas", 2, now)
		res, err := s.Supersede(ctx, old.ID, graceUntil, next, IssueOptions{DeviceLimit: 10, Now: now})
		require.NoError(t, err)
		require.Equal(t, next.ID, res.Token.ID)

		got, err := s.FindByHash(ctx, old.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		require.True(t, got.RevokedAt.Equal(graceUntil))

		_, err = s.Supersede(ctx, old.ID, graceUntil, newRow("u-cas", 3, now), IssueOptions{DeviceLimit: 10, Now: now})
		require.ErrorIs(t, err, ErrAlreadyRevoked)

		_, err = s.Supersede(ctx, "missing-id", graceUntil, newRow("u-cas", 4, now), IssueOptions{Now: now})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent supersede has one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		old := newRow("u-race", 1, baseTime)
		_, err := s.Issue(ctx, old, IssueOptions{DeviceLimit: 10, Now: baseTime})
		require.NoError(t, err)

		now := baseTime.Add(time.Second)
		const racers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			wins    int
			losses  int
			unknown []error
		)
		wg.Add(racers)
		for i := 0; i < racers; i++ {
			go func(i int) {
				defer wg.Done()
				_, err := s.Supersede(ctx, old.ID, now.Add(30*time.Second), newRow("u-race", 100+i, now), IssueOptions{DeviceLimit: 10, Now: now})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrAlreadyRevoked):
					losses++
				default:
					unknown = append(unknown, err)
				}
			}(i)
		}
		wg.Wait()

		require.Empty(t, unknown)
		require.Equal(t, 1, wins)
		require.Equal(t, racers-1, losses)
	})

	t.Run("latest successor", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		user := "u-succ"
		old := newRow(user, 1, baseTime)
		_, err := s.Issue(ctx, old, IssueOptions{Now: baseTime})
		require.NoError(t, err)

		now := baseTime.Add(time.Hour)
		_, err = s.LatestSuccessor(ctx, user, old.CreatedAt, now)
		require.ErrorIs(t, err, ErrNotFound)

		mid := newRow(user, 2, baseTime.Add(time.Minute))
		newest := newRow(user, 3, baseTime.Add(2*time.Minute))
		revoked := newRow(user, 4, baseTime.Add(3*time.Minute))
		for _, r := range []refresh.Token{mid, newest, revoked} {
			_, err := s.Issue(ctx, r, IssueOptions{Now: r.CreatedAt})
			require.NoError(t, err)
		}
		found, err := s.RevokeByHash(ctx, revoked.TokenHash, now)
		require.NoError(t, err)
		require.True(t, found)

		got, err := s.LatestSuccessor(ctx, user, old.CreatedAt, now)
		require.NoError(t, err)
		require.Equal(t, newest.ID, got.ID)

		_, err = s.LatestSuccessor(ctx, "someone-else", old.CreatedAt, now)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("revoke never extends a past revocation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		row := newRow("u-rev", 1, baseTime)
		_, err := s.Issue(ctx, row, IssueOptions{Now: baseTime})
		require.NoError(t, err)

		first := baseTime.Add(time.Minute)
		found, err := s.RevokeByHash(ctx, row.TokenHash, first)
		require.NoError(t, err)
		require.True(t, found)

		found, err = s.RevokeByHash(ctx, row.TokenHash, first.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, found)

		got, err := s.FindByHash(ctx, row.TokenHash)
		require.NoError(t, err)
		require.True(t, got.RevokedAt.Equal(first))

		found, err = s.RevokeByHash(ctx, "missing", first)
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("revoke all collapses grace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		user := "u-all"
		a := newRow(user, 1, baseTime)
		b := newRow(user, 2, baseTime.Add(time.Second))
		other := newRow("u-other", 1, baseTime)
		for _, r := range []refresh.Token{a, b, other} {
			_, err := s.Issue(ctx, r, IssueOptions{Now: r.CreatedAt})
			require.NoError(t, err)
		}
		now := baseTime.Add(time.Minute)
		_, err := s.Supersede(ctx, a.ID, now.Add(30*time.Second), newRow(user, 3, now), IssueOptions{Now: now})
		require.NoError(t, err)

		n, err := s.RevokeAllForUser(ctx, user, now)
		require.NoError(t, err)
		require.Equal(t, int64(3), n)

		got, err := s.FindByHash(ctx, a.TokenHash)
		require.NoError(t, err)
		require.True(t, got.RevokedAt.Equal(now))

		untouched, err := s.FindByHash(ctx, other.TokenHash)
		require.NoError(t, err)
		require.Nil(t, untouched.RevokedAt)
	})

	t.Run("delete stale honours retention", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := baseTime.Add(60 * 24 * time.Hour)
		cutoff := now.Add(-7 * 24 * time.Hour)

		expiredLongAgo := newRow("u-gc", 1, baseTime)
		expiredLongAgo.ExpiresAt = cutoff.Add(-time.Hour)
		expiredRecently := newRow("u-gc", 2, baseTime)
		expiredRecently.ExpiresAt = cutoff.Add(time.Hour)
		revokedLongAgo := newRow("u-gc", 3, baseTime)
		revokedLongAgo.ExpiresAt = now.Add(24 * time.Hour)
		live := newRow("u-gc", 4, baseTime)
		live.ExpiresAt = now.Add(24 * time.Hour)

		for _, r := range []refresh.Token{expiredLongAgo, expiredRecently, revokedLongAgo, live} {
			_, err := s.Issue(ctx, r, IssueOptions{Now: baseTime})
			require.NoError(t, err)
		}
		_, err := s.RevokeByHash(ctx, revokedLongAgo.TokenHash, cutoff.Add(-time.Minute))
		require.NoError(t, err)

		n, err := s.DeleteStale(ctx, cutoff)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		_, err = s.FindByHash(ctx, expiredLongAgo.TokenHash)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindByHash(ctx, revokedLongAgo.TokenHash)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindByHash(ctx, expiredRecently.TokenHash)
		require.NoError(t, err)
		_, err = s.FindByHash(ctx, live.TokenHash)
		require.NoError(t, err)
	})

	t.Run("touch records last use", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		row := newRow("u-touch", 1, baseTime)
		_, err := s.Issue(ctx, row, IssueOptions{Now: baseTime})
		require.NoError(t, err)

		at := baseTime.Add(5 * time.Minute)
		require.NoError(t, s.Touch(ctx, row.ID, at))
		got, err := s.FindByHash(ctx, row.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got.LastUsedAt)
		require.True(t, got.LastUsedAt.Equal(at))

		require.ErrorIs(t, s.Touch(ctx, "missing", at), ErrNotFound)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(*testing.T) Store { return NewMemoryStore() })
}
