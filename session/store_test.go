package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/tokenguard/internal/kv"
)

func newSessionManagerTest(t *testing.T) (*miniredis.Miniredis, *Manager, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(kv.NewRedisStore(rdb), "tg:", func() time.Time { return now }, nil)
	return mr, m, &now
}

func TestCreateAndGet(t *testing.T) {
	mr, m, now := newSessionManagerTest(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "u-1", map[string]any{"ip": "10.0.0.1"}, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(id, "u-1.") {
		t.Fatalf("expected id prefixed with user id, got %q", id)
	}
	if got := mr.TTL("tg:sess:" + id); got != DefaultTTL {
		t.Fatalf("expected default ttl, got %v", got)
	}

	rec, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.UserID != "u-1" || rec.Data["ip"] != "10.0.0.1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.CreatedAt.Equal(*now) || !rec.LastActivity.Equal(*now) {
		t.Fatalf("unexpected timestamps %+v", rec)
	}
}

func TestCreateGeneratesDistinctIDs(t *testing.T) {
	_, m, _ := newSessionManagerTest(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := m.Create(ctx, "u-1", nil, time.Minute)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestTouchRefreshesActivityAndTTL(t *testing.T) {
	mr, m, now := newSessionManagerTest(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "u-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mr.FastForward(50 * time.Second)
	*now = now.Add(50 * time.Second)

	if err := m.Touch(ctx, id, 2*time.Minute); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if got := mr.TTL("tg:sess:" + id); got != 2*time.Minute {
		t.Fatalf("expected ttl re-applied, got %v", got)
	}
	rec, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.LastActivity.Equal(*now) {
		t.Fatalf("expected last activity %v, got %v", *now, rec.LastActivity)
	}
	if rec.CreatedAt.Equal(rec.LastActivity) {
		t.Fatalf("created at must not move on touch")
	}
}

// vanishingStore deletes a key right after it is read, standing in for a record
// that expires or is revoked between Touch's read and its write.
type vanishingStore struct {
	kv.Store
}

func (s vanishingStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.Store.Get(ctx, key)
	if err == nil {
		_ = s.Store.Delete(ctx, key)
	}
	return raw, err
}

func TestTouchDoesNotResurrectVanishedSession(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	creator := NewManager(kv.NewRedisStore(rdb), "tg:", clock, nil)
	toucher := NewManager(vanishingStore{Store: kv.NewRedisStore(rdb)}, "tg:", clock, nil)
	ctx := context.Background()

	id, err := creator.Create(ctx, "u-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := toucher.Touch(ctx, id, time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("tg:sess:" + id) {
		t.Fatal("touch must not recreate a vanished session")
	}
}

func TestExpiredAndMissingSessions(t *testing.T) {
	mr, m, _ := newSessionManagerTest(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "u-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mr.FastForward(61 * time.Second)

	if _, err := m.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.Touch(ctx, id, time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Touch, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	_, m, _ := newSessionManagerTest(t)
	ctx := context.Background()

	id, _ := m.Create(ctx, "u-1", nil, time.Minute)
	for i := 0; i < 2; i++ {
		if err := m.Delete(ctx, id); err != nil {
			t.Fatalf("Delete #%d failed: %v", i+1, err)
		}
	}
	if _, err := m.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAllForUserOnlyTouchesOwner(t *testing.T) {
	_, m, _ := newSessionManagerTest(t)
	ctx := context.Background()

	a1, _ := m.Create(ctx, "a", nil, time.Minute)
	a2, _ := m.Create(ctx, "a", nil, time.Minute)
	// "a.b" shares the "a." prefix; its sessions must survive.
	ab, _ := m.Create(ctx, "a.b", nil, time.Minute)
	other, _ := m.Create(ctx, "z", nil, time.Minute)

	n, err := m.DeleteAllForUser(ctx, "a")
	if err != nil {
		t.Fatalf("DeleteAllForUser failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	for _, id := range []string{a1, a2} {
		if _, err := m.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s deleted, got %v", id, err)
		}
	}
	for _, id := range []string{ab, other} {
		if _, err := m.Get(ctx, id); err != nil {
			t.Fatalf("expected %s to survive, got %v", id, err)
		}
	}
}

func TestDeleteAllForUserDegradesOnFallback(t *testing.T) {
	m := NewManager(kv.NewMemoryStore(), "", nil, nil)
	ctx := context.Background()

	id, err := m.Create(ctx, "u-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	n, err := m.DeleteAllForUser(ctx, "u-1")
	if err != nil || n != 0 {
		t.Fatalf("expected logged no-op, got %d %v", n, err)
	}
	if _, err := m.Get(ctx, id); err != nil {
		t.Fatalf("session must be untouched on fallback, got %v", err)
	}
}

func TestCreateRejectsBlankUser(t *testing.T) {
	m := NewManager(kv.NewMemoryStore(), "", nil, nil)
	if _, err := m.Create(context.Background(), "  ", nil, 0); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestDecodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Decode([]byte{99, '{', '}'})
	if !errors.Is(err, ErrCorruptRecord) || !strings.Contains(err.Error(), "unsupported session schema version") {
		t.Fatalf("expected unsupported schema version error, got %v", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord for empty blob, got %v", err)
	}
}
