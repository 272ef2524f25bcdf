package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/tokenguard/internal/flows"
	"github.com/civicpulse/tokenguard/internal/kv"
	"github.com/civicpulse/tokenguard/internal/rate"
	"github.com/civicpulse/tokenguard/internal/stores"
	"github.com/civicpulse/tokenguard/internal/tokens"
	"github.com/civicpulse/tokenguard/jwt"
	"github.com/civicpulse/tokenguard/refresh"
	"github.com/civicpulse/tokenguard/session"
)

// buildTimeout bounds backend selection and migrations inside Build.
const buildTimeout = 30 * time.Second

// Builder assembles an [Engine]. A Builder can be used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	pool   *pgxpool.Pool

	kvStore    kv.Store
	tokenStore tokens.Store

	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis uses client as the key-value backend. The caller keeps ownership;
// Engine.Close does not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres uses pool for refresh-token rows. The caller keeps ownership;
// Engine.Close does not close it.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.pool = pool
	return b
}

// WithInMemoryStores selects process-local key-value and refresh-token stores
// without the fallback warning. Intended for tests and single-process tools.
func (b *Builder) WithInMemoryStores() *Builder {
	b.kvStore = kv.NewMemoryStore()
	b.tokenStore = tokens.NewMemoryStore()
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the destination for security events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for every time-dependent decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles validate and rotate latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, selects backends and returns the Engine.
//
// Backend selection happens once here. With no Redis client and no KV URL the
// in-process fallback is used and a warning is logged; the same applies to the
// refresh-token store without a pool or database URL. RequireDurable turns
// either fallback into an error.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
	defer cancel()

	var closers []func() error
	fail := func(err error) (*Engine, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	// -------- KEY-VALUE BACKEND --------
	store := b.kvStore
	switch {
	case store != nil:
	case b.redis != nil:
		store = kv.NewRedisStore(b.redis)
	default:
		opened, err := kv.Open(ctx, kv.OpenConfig{
			URL:            cfg.KV.URL,
			DialTimeout:    cfg.KV.DialTimeout,
			RequireDurable: cfg.KV.RequireDurable,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
		}
		store = opened
		closers = append(closers, opened.Close)
	}
	if mem, ok := store.(*kv.MemoryStore); ok {
		mem.SetClock(now)
	}

	// -------- REFRESH TOKEN STORE --------
	tokenStore := b.tokenStore
	switch {
	case tokenStore != nil:
	case b.pool != nil:
		if cfg.RefreshStore.AutoMigrate {
			if err := tokens.MigratePool(ctx, b.pool); err != nil {
				return fail(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
			}
		}
		tokenStore = tokens.NewPostgresStore(b.pool)
	case cfg.RefreshStore.DatabaseURL != "":
		if cfg.RefreshStore.AutoMigrate {
			if err := tokens.Migrate(ctx, cfg.RefreshStore.DatabaseURL); err != nil {
				return fail(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
			}
		}
		pg, err := tokens.OpenPostgres(ctx, cfg.RefreshStore.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
		}
		tokenStore = pg
		closers = append(closers, func() error { pg.Close(); return nil })
	case cfg.RefreshStore.RequireDurable:
		return fail(fmt.Errorf("%w: no refresh store database configured", ErrStoreUnavailable))
	default:
		logger.Warn("tokenguard: no refresh store database configured, using in-process store")
		tokenStore = tokens.NewMemoryStore()
	}

	// -------- ACCESS TOKEN VERIFIER --------
	var verifier *jwt.Verifier
	if cfg.AccessToken.SigningMethod != "" {
		v, err := jwt.NewVerifier(jwt.Config{
			SigningMethod: jwt.SigningMethod(cfg.AccessToken.SigningMethod),
			Secret:        cloneBytes(cfg.AccessToken.Secret),
			PublicKey:     cloneBytes(cfg.AccessToken.PublicKey),
			VerifyKeys:    cfg.AccessToken.VerifyKeys,
			Issuer:        cfg.AccessToken.Issuer,
			Audience:      cfg.AccessToken.Audience,
			Leeway:        cfg.AccessToken.Leeway,
		})
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrInvalidConfig, err))
		}
		verifier = v
	}

	hasher := refresh.NewHasher(cfg.Refresh.HashKey)
	blacklist := stores.NewBlacklist(store, cfg.KV.Prefix, now, logger)

	engine := &Engine{
		config:    cfg,
		logger:    logger,
		now:       now,
		kv:        store,
		blacklist: blacklist,
		sessions:  session.NewManager(store, cfg.KV.Prefix, now, logger),
		limiter:   rate.New(store, cfg.KV.Prefix, now),
		tokens:    tokenStore,
		hasher:    hasher,
		verifier:  verifier,
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics:   NewMetrics(cfg.Metrics),
		closers:   closers,
	}
	engine.flowDeps = flows.Deps{
		Refresh: flows.RefreshDeps{
			Store:              tokenStore,
			Hash:               hasher.Hash,
			Now:                now,
			NewID:              uuid.NewString,
			DeviceLimit:        cfg.Refresh.DeviceLimit,
			Lifetime:           cfg.Refresh.Lifetime,
			RememberMeLifetime: cfg.Refresh.RememberMeLifetime,
			Retention:          cfg.Refresh.Retention,
			Logger:             logger,
		},
		Logout: flows.LogoutDeps{
			Blacklist: blacklist,
		},
	}
	if verifier != nil {
		engine.flowDeps.Logout.ParseAccess = verifier.Parse
	}

	logger.Info("tokenguard: engine ready",
		slog.String("kv_backend", string(store.Backend())),
		slog.Int("device_limit", cfg.Refresh.DeviceLimit),
		slog.Duration("grace_period", cfg.Refresh.GracePeriod),
	)

	b.built = true
	return engine, nil
}
