package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicpulse/tokenguard/internal/kv"
)

var (
	// ErrEmptyTokenID is returned when the identifier is blank.
	ErrEmptyTokenID = errors.New("stores: empty token id")
	// ErrBackendUnavailable wraps kv failures.
	ErrBackendUnavailable = errors.New("stores: backend unavailable")
)

var revokedMarker = []byte("1")

// Blacklist records revoked access-token identifiers until their natural expiry.
type Blacklist struct {
	store  kv.Store
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// NewBlacklist creates a [Blacklist]. A nil now defaults to time.Now and a nil logger
// discards output.
func NewBlacklist(store kv.Store, prefix string, now func() time.Time, logger *slog.Logger) *Blacklist {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Blacklist{
		store:  store,
		prefix: prefix,
		now:    now,
		logger: logger,
	}
}

// TTLFor returns max(0, floor((expiresAt-now)/1s)) at millisecond precision.
func TTLFor(expiresAt, now time.Time) time.Duration {
	diffMs := expiresAt.UnixMilli() - now.UnixMilli()
	if diffMs <= 0 {
		return 0
	}
	return time.Duration(diffMs/1000) * time.Second
}

// Add marks tokenID as revoked until expiresAt and returns the TTL applied. A token
// with less than one second left is not written.
func (b *Blacklist) Add(ctx context.Context, tokenID string, expiresAt time.Time) (time.Duration, error) {
	if tokenID == "" {
		return 0, ErrEmptyTokenID
	}

	ttl := TTLFor(expiresAt, b.now())
	if ttl == 0 {
		b.logger.Debug("blacklist: token already expired, skipping write")
		return 0, nil
	}

	if err := b.store.Set(ctx, b.key(tokenID), revokedMarker, ttl); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return ttl, nil
}

// Contains reports whether tokenID is currently blacklisted.
func (b *Blacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, ErrEmptyTokenID
	}
	_, err := b.store.Get(ctx, b.key(tokenID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return true, nil
}

func (b *Blacklist) key(tokenID string) string {
	return b.prefix + "bl:" + tokenID
}
