package tokens

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/civicpulse/tokenguard/refresh"
)

// MemoryStore is a process-local [Store]. All methods are serialised by one mutex.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]*refresh.Token
	byHash map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]*refresh.Token),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Issue(_ context.Context, tok refresh.Token, opts IssueOptions) (IssueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(tok, opts)
}

func (s *MemoryStore) issueLocked(tok refresh.Token, opts IssueOptions) (IssueResult, error) {
	if _, dup := s.byHash[tok.TokenHash]; dup {
		return IssueResult{}, ErrDuplicateHash
	}
	if _, dup := s.rows[tok.ID]; dup {
		return IssueResult{}, ErrDuplicateHash
	}

	var evicted []refresh.Token
	if opts.DeviceLimit > 0 {
		active := s.activeLocked(tok.UserID, opts.Now)
		for i := 0; i <= len(active)-opts.DeviceLimit; i++ {
			at := opts.Now
			active[i].RevokedAt = &at
			evicted = append(evicted, active[i].Clone())
		}
	}

	row := tok.Clone()
	s.rows[row.ID] = &row
	s.byHash[row.TokenHash] = row.ID
	return IssueResult{Token: row.Clone(), Evicted: evicted}, nil
}

// activeLocked returns the user's ACTIVE rows, oldest first. Caller holds s.mu.
func (s *MemoryStore) activeLocked(userID string, now time.Time) []*refresh.Token {
	var out []*refresh.Token
	for _, r := range s.rows {
		if r.UserID == userID && r.RevokedAt == nil && r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) FindByHash(_ context.Context, hash string) (refresh.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[hash]
	if !ok {
		return refresh.Token{}, ErrNotFound
	}
	return s.rows[id].Clone(), nil
}

func (s *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	r.LastUsedAt = &t
	return nil
}

func (s *MemoryStore) Supersede(_ context.Context, oldID string, revokeAt time.Time, next refresh.Token, opts IssueOptions) (IssueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.rows[oldID]
	if !ok {
		return IssueResult{}, ErrNotFound
	}
	if old.RevokedAt != nil {
		return IssueResult{}, ErrAlreadyRevoked
	}
	if _, dup := s.byHash[next.TokenHash]; dup {
		return IssueResult{}, ErrDuplicateHash
	}

	at := revokeAt
	old.RevokedAt = &at
	res, err := s.issueLocked(next, opts)
	if err != nil {
		old.RevokedAt = nil
		return IssueResult{}, err
	}
	return res, nil
}

func (s *MemoryStore) LatestSuccessor(_ context.Context, userID string, after, now time.Time) (refresh.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *refresh.Token
	for _, r := range s.activeLocked(userID, now) {
		if r.CreatedAt.After(after) {
			best = r
		}
	}
	if best == nil {
		return refresh.Token{}, ErrNotFound
	}
	return best.Clone(), nil
}

func (s *MemoryStore) RevokeByHash(_ context.Context, hash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[hash]
	if !ok {
		return false, nil
	}
	r := s.rows[id]
	if r.RevokedAt == nil || r.RevokedAt.After(at) {
		t := at
		r.RevokedAt = &t
	}
	return true, nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if r.UserID != userID {
			continue
		}
		if r.RevokedAt == nil || r.RevokedAt.After(at) {
			t := at
			r.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.rows {
		if r.ExpiresAt.Before(cutoff) || (r.RevokedAt != nil && r.RevokedAt.Before(cutoff)) {
			delete(s.byHash, r.TokenHash)
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Snapshot returns copies of every row for the given user, oldest first. Intended for
// tests and diagnostics.
func (s *MemoryStore) Snapshot(userID string) []refresh.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []refresh.Token
	for _, r := range s.rows {
		if r.UserID == userID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
