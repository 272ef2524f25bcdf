// Command tokenguard-janitor deletes stale refresh-token rows on a schedule and
// serves probes and Prometheus metrics for the shared tokenguard backends.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicpulse/tokenguard"
	"github.com/civicpulse/tokenguard/internal/config"
	tgprom "github.com/civicpulse/tokenguard/metrics/export/prometheus"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting janitor", slog.String("env", cfg.Env))

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		log.Error("config_invalid", slog.String("err", err.Error()))
		os.Exit(1)
	}

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	engine, err := tokenguard.New().
		WithConfig(engineCfg).
		WithLogger(log).
		WithAuditSink(tokenguard.NewSlogSink(log)).
		Build()
	if err != nil {
		log.Error("engine_build_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()

	for _, f := range engine.SecurityReport().Findings {
		log.Warn("security_finding", slog.String("code", f))
	}

	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		tgprom.NewCollector(engine),
	)

	var ready int32
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := engine.Ready(ctx); err != nil {
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http_listen_start", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
			rootCancel()
		}
	}()

	atomic.StoreInt32(&ready, 1)
	runJanitor(rootCtx, engine, log, cfg.Janitor.Interval, cfg.Janitor.Timeout)

	atomic.StoreInt32(&ready, 0)
	log.Info("shutdown_requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_failed", slog.String("err", err.Error()))
	}
	log.Info("janitor_stopped")
}

// runJanitor runs one cleanup immediately and then every period until ctx ends.
func runJanitor(ctx context.Context, engine *tokenguard.Engine, log *slog.Logger, period, timeout time.Duration) {
	sweep := func() {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		n, err := engine.CleanupExpiredRefreshTokens(runCtx)
		if err != nil {
			log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
			return
		}
		log.Info("refresh_janitor_done",
			slog.Int64("deleted", n),
			slog.Duration("took", time.Since(start)),
		)
	}

	sweep()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweep()
		}
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
