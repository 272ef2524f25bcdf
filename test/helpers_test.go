//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/civicpulse/tokenguard"
)

type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
}

// startBackends boots Redis and Postgres containers shared by one test.
func startBackends(t *testing.T) backends {
	t.Helper()
	ctx := context.Background()

	rc, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })

	redisAddr, err := rc.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = rdb.Close() })

	pc, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	host, err := pc.Host(ctx)
	require.NoError(t, err)
	port, err := pc.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// The port can accept connections before initdb finishes.
	require.Eventually(t, func() bool {
		return pool.Ping(ctx) == nil
	}, 30*time.Second, 500*time.Millisecond)

	return backends{redis: rdb, pool: pool}
}

func newEngine(t *testing.T, b backends, mutate func(*tokenguard.Config)) *tokenguard.Engine {
	t.Helper()

	cfg := tokenguard.DefaultConfig()
	cfg.Audit.Enabled = false
	cfg.KV.RequireDurable = true
	cfg.RefreshStore.RequireDurable = true
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := tokenguard.New().WithConfig(cfg).WithRedis(b.redis).WithPostgres(b.pool).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func tok(n int) string {
	return fmt.Sprintf("%064x", n)
}
