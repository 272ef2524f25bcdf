package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/civicpulse/tokenguard/internal/kv"
)

var (
	// ErrNotFound is returned when a session is missing or expired.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidUserID is returned for blank user ids.
	ErrInvalidUserID = errors.New("session: invalid user id")
	// ErrBackendUnavailable wraps kv failures.
	ErrBackendUnavailable = errors.New("session: backend unavailable")
)

// DefaultTTL applies when a caller passes a non-positive ttl.
const DefaultTTL = time.Hour

// Manager creates, reads, refreshes and revokes session records.
type Manager struct {
	store  kv.Store
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a [Manager]. A nil now defaults to time.Now and a nil logger
// discards output.
func NewManager(store kv.Store, prefix string, now func() time.Time, logger *slog.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		store:  store,
		prefix: prefix,
		now:    now,
		logger: logger,
	}
}

// Create stores a new record for userID and returns its id.
func (m *Manager) Create(ctx context.Context, userID string, data map[string]any, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrInvalidUserID
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := m.now()
	id, err := newID(userID, now)
	if err != nil {
		return "", err
	}
	rec := &Record{
		ID:           id,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		Data:         data,
	}
	if err := m.save(ctx, rec, ttl); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the record or [ErrNotFound].
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	raw, err := m.store.Get(ctx, m.key(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return Decode(raw)
}

// Touch sets LastActivity to now and re-applies ttl. The rewrite only lands while
// the record still exists, so a session that expires or is revoked after the read
// stays gone and Touch reports ErrNotFound.
func (m *Manager) Touch(ctx context.Context, id string, ttl time.Duration) error {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rec.LastActivity = m.now()

	blob, err := Encode(rec)
	if err != nil {
		return err
	}
	ok, err := m.store.SetIfExists(ctx, m.key(id), blob, ttl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, m.key(id)); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every record owned by userID and returns how many were
// deleted.
//
// ATOMICITY NOTE: keys are enumerated with SCAN and deleted afterwards. A session created
// concurrently may survive. On a backend without pattern scan this logs a warning and
// deletes nothing.
func (m *Manager) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidUserID
	}

	keys, err := m.store.Keys(ctx, m.prefix+"sess:"+escapeGlob(userID)+".*")
	if err != nil {
		if errors.Is(err, kv.ErrPatternScanUnsupported) {
			m.logger.Warn("session: bulk revocation unavailable on this backend",
				slog.String("backend", string(m.store.Backend())),
				slog.String("user_id", userID),
			)
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	owned := make([]string, 0, len(keys))
	for _, k := range keys {
		raw, err := m.store.Get(ctx, k)
		if err != nil {
			continue
		}
		rec, err := Decode(raw)
		if err != nil || rec.UserID != userID {
			continue
		}
		owned = append(owned, k)
	}
	if err := m.store.Delete(ctx, owned...); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return len(owned), nil
}

func (m *Manager) save(ctx context.Context, rec *Record, ttl time.Duration) error {
	blob, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, m.key(rec.ID), blob, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (m *Manager) key(id string) string {
	return m.prefix + "sess:" + id
}

func newID(userID string, now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return userID + "." + id.String(), nil
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
