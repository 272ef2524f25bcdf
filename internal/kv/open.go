package kv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDialTimeout = 3 * time.Second

// OpenConfig controls backend selection.
type OpenConfig struct {
	// URL is a redis:// or rediss:// connection string. Empty selects the fallback.
	URL string
	// DialTimeout bounds the startup ping.
	DialTimeout time.Duration
	// RequireDurable turns fallback selection into an error.
	RequireDurable bool
}

// Open selects and returns the backend for the lifetime of the process.
//
// The durable backend is used when URL parses and the server answers a ping within
// DialTimeout. Otherwise the in-process fallback is returned and a warning is logged,
// unless RequireDurable is set.
func Open(ctx context.Context, cfg OpenConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.URL == "" {
		if cfg.RequireDurable {
			return nil, fmt.Errorf("%w: no redis url configured", ErrUnavailable)
		}
		logger.Warn("kv: no redis url configured, using in-process fallback")
		return NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if cfg.RequireDurable {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		logger.Warn("kv: redis unreachable at startup, using in-process fallback",
			slog.String("addr", opts.Addr),
			slog.Any("err", err),
		)
		return NewMemoryStore(), nil
	}

	logger.Info("kv: redis backend selected", slog.String("addr", opts.Addr))
	return &RedisStore{client: client, owned: true}, nil
}
