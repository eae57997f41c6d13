package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/basket/api"
	"github.com/use-agent/basket/api/handler"
	"github.com/use-agent/basket/browser"
	"github.com/use-agent/basket/cache"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/logging"
	"github.com/use-agent/basket/scraper"
	"github.com/use-agent/basket/source"
	"github.com/use-agent/basket/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	logging.Init(cfg.Log, os.Stdout)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("basket starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"idleStrategy", cfg.Scraper.IdleStrategy,
	)

	// ── 3. Renderer + aggregator ────────────────────────────────────
	manager := browser.NewManager(browser.RodLauncher(cfg.Browser))
	sc, err := scraper.New(manager, source.All(), cfg.Scraper)
	if err != nil {
		slog.Error("failed to initialise scraper", "error", err)
		os.Exit(1)
	}

	// A renderer that fails to start here is retried on the first search.
	if err := sc.Initialize(); err != nil {
		slog.Error("renderer failed to start, will retry lazily", "error", err)
	}

	// ── 4. Result cache ─────────────────────────────────────────────
	store := newCache(cfg.Cache)
	if store != nil {
		defer store.Close()
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	svc := handler.NewService(sc, store)
	batches := handler.NewBatches(svc, cfg.Batch, webhook.NewNotifier())
	router := api.NewRouter(svc, batches, cfg, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	batches.Close()

	// The renderer goes last so no in-flight search loses its browser.
	if err := sc.Shutdown(); err != nil {
		slog.Error("renderer shutdown failed", "error", err)
	}
	slog.Info("basket stopped")
}

// newCache picks Redis when configured, falling back to the in-memory store
// if Redis is unreachable. A zero TTL disables caching.
func newCache(cfg config.CacheConfig) cache.Store {
	if cfg.TTL <= 0 {
		slog.Info("result cache disabled")
		return nil
	}
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rs, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		if err == nil {
			slog.Info("result cache: redis", "addr", cfg.RedisAddr, "ttl", cfg.TTL)
			return rs
		}
		slog.Warn("redis unavailable, using in-memory cache", "error", err)
	}
	slog.Info("result cache: memory", "maxEntries", cfg.MaxEntries, "ttl", cfg.TTL)
	return cache.NewMemory(cfg.MaxEntries, cfg.TTL, 5*time.Minute)
}
