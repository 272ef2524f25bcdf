package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback. It is lost on restart and invisible to other
// processes.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore returns an empty fallback store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string][]byte),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// live reports whether key holds an unexpired value, dropping it if it has expired.
// Caller holds s.mu.
func (s *MemoryStore) live(key string) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	if at, ok := s.expires[key]; ok && !s.now().Before(at) {
		delete(s.values, key)
		delete(s.expires, key)
		return false
	}
	return true
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = buf
	if ttl > 0 {
		s.expires[key] = s.now().Add(ttl)
	} else {
		delete(s.expires, key)
	}
	return nil
}

func (s *MemoryStore) SetIfExists(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(key) {
		return false, nil
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	s.values[key] = buf
	if ttl > 0 {
		s.expires[key] = s.now().Add(ttl)
	} else {
		delete(s.expires, key)
	}
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(key) {
		return nil, ErrNotFound
	}
	v := s.values[key]
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
		delete(s.expires, k)
	}
	return nil
}

// Incr mirrors Redis INCR: a missing key starts at zero and keeps no expiry.
func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if s.live(key) {
		parsed, err := strconv.ParseInt(string(s.values[key]), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		n = parsed
	}
	n++
	s.values[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(key) {
		return false, nil
	}
	if ttl <= 0 {
		delete(s.values, key)
		delete(s.expires, key)
		return true, nil
	}
	s.expires[key] = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) Keys(context.Context, string) ([]string, error) {
	return nil, ErrPatternScanUnsupported
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Backend() Backend { return BackendMemory }

func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored entries, expired or not. Intended for tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
