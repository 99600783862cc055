package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/satya6366/trust-ledger/internal/api"
	"github.com/satya6366/trust-ledger/internal/auth"
	"github.com/satya6366/trust-ledger/internal/config"
	"github.com/satya6366/trust-ledger/internal/logger"
	"github.com/satya6366/trust-ledger/internal/notify"
	"github.com/satya6366/trust-ledger/internal/service"
	"github.com/satya6366/trust-ledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ledgerStore service.Store
	if cfg.DBSource == "" {
		zlog.Warn("DB_SOURCE not set, using in-memory store; data will not survive a restart")
		ledgerStore = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
		if err != nil {
			zlog.Fatalw("database connection failed", "error", err)
		}
		defer pg.Close()
		ledgerStore = pg
	}

	var resolver auth.Resolver = auth.NewSupabaseResolver(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.AuthTimeout)
	if cfg.RoleCacheTTL > 0 {
		resolver = auth.NewCachedResolver(resolver, cfg.RoleCacheTTL)
	}
	gate := auth.NewGate(resolver)

	notifier := notify.NewSupabaseNotifier(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.NotifyTimeout)

	svc := service.New(ledgerStore, gate, notifier, zlog)
	handler := api.NewHandler(svc, zlog)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(handler),
	}

	go func() {
		zlog.Infow("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Errorw("graceful shutdown failed", "error", err)
	}
}
