package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/civicpulse/tokenguard/internal/audit"
	"github.com/civicpulse/tokenguard/internal/flows"
	"github.com/civicpulse/tokenguard/internal/kv"
	"github.com/civicpulse/tokenguard/internal/rate"
	"github.com/civicpulse/tokenguard/internal/stores"
	"github.com/civicpulse/tokenguard/internal/tokens"
	"github.com/civicpulse/tokenguard/jwt"
	"github.com/civicpulse/tokenguard/refresh"
	"github.com/civicpulse/tokenguard/session"
)

// Engine is the single entry point for blacklist, session, rate-limit and
// refresh-token operations. Construct it once with [Builder.Build].
//
// Engine methods are safe for concurrent use. Rotation correctness under
// parallel calls comes from a compare-and-swap in the refresh-token store,
// not from locks in the Engine.
type Engine struct {
	config    Config
	logger    *slog.Logger
	now       func() time.Time
	kv        kv.Store
	blacklist *stores.Blacklist
	sessions  *session.Manager
	limiter   *rate.Limiter
	tokens    tokens.Store
	hasher    refresh.Hasher
	flowDeps  flows.Deps
	verifier  *jwt.Verifier
	audit     *internalaudit.Dispatcher
	metrics   *Metrics

	closers   []func() error
	closeOnce sync.Once
}

// Close drains pending audit events and releases backends the Engine opened
// itself. Clients passed through WithRedis or WithPostgres stay open.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	e.closeOnce.Do(func() {
		if e.audit != nil {
			e.audit.Close()
		}
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Ready pings the key-value backend and the refresh-token store.
func (e *Engine) Ready(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.kv.Ping(ctx); err != nil {
		return fmt.Errorf("%w: kv: %v", ErrStoreUnavailable, err)
	}
	if err := e.tokens.Ping(ctx); err != nil {
		return fmt.Errorf("%w: refresh store: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// KVBackend reports which key-value backend was selected at startup.
func (e *Engine) KVBackend() string {
	if e == nil || e.kv == nil {
		return ""
	}
	return string(e.kv.Backend())
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of all counters and latency histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// unavailable wraps a backend failure in ErrStoreUnavailable and counts it.
func (e *Engine) unavailable(op string, err error) error {
	e.metricInc(MetricStoreUnavailable)
	e.logger.Error("tokenguard: backend call failed",
		slog.String("op", op),
		slog.Any("err", err),
	)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
