package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is missing or expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("kv: backend unavailable")
	// ErrPatternScanUnsupported is returned by backends that cannot enumerate keys.
	ErrPatternScanUnsupported = errors.New("kv: pattern scan unsupported by backend")
	// ErrNotInteger is returned by Incr when the stored value is not a base-10 integer.
	ErrNotInteger = errors.New("kv: value is not an integer")
)

// Backend identifies which implementation is serving a [Store].
type Backend string

const (
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Store is the contract shared by the durable and fallback backends.
//
// A ttl <= 0 passed to Set stores the value without expiry. Callers must not assume
// cross-process visibility when [Backend] reports [BackendMemory].
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfExists overwrites key only while it holds a live value and reports
	// whether it did.
	SetIfExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Backend() Backend
	Close() error
}
