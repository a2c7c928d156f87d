package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/auth"
	"github.com/DoyleJ11/floor-ops-backend/internal/cache"
	"github.com/DoyleJ11/floor-ops-backend/internal/config"
	"github.com/DoyleJ11/floor-ops-backend/internal/engine"
	"github.com/DoyleJ11/floor-ops-backend/internal/httpapi"
	"github.com/DoyleJ11/floor-ops-backend/internal/hub"
	"github.com/DoyleJ11/floor-ops-backend/internal/logger"
	"github.com/DoyleJ11/floor-ops-backend/internal/metrics"
	"github.com/DoyleJ11/floor-ops-backend/internal/presence"
	"github.com/DoyleJ11/floor-ops-backend/internal/store"
	"github.com/DoyleJ11/floor-ops-backend/internal/ws"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "floor-ops")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	backend, presenceStore, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	eng := engine.New(st, cache.NewLayer(backend, log.Named("cache")), log.Named("engine"),
		engine.WithAuditLogger(logger.NewAudit(log)),
	)
	h := hub.NewHub(ctx, log.Named("hub"))
	tracker := presence.NewTracker(presenceStore, h, log.Named("presence"),
		presence.WithTTL(cfg.PresenceTTL),
		presence.WithSweepInterval(cfg.PresenceSweepInterval),
	)
	go tracker.Run(ctx)

	// Build the router *with* every dependency injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Auth:     auth.NewAuthenticator([]byte(cfg.JWTSecret), st, backend, log.Named("auth")),
		Engine:   eng,
		Hub:      h,
		Presence: tracker,
		Store:    st,
		Log:      log.Named("http"),
		Socket: ws.Deps{
			OriginPatterns: cfg.WSOriginPatterns,
			ReadTimeout:    cfg.PresenceTTL,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
		}
	}

	// Hang up sockets first; Server.Shutdown does not wait for hijacked connections.
	h.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	cancel()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func()) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}
	}
	gs, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	if cfg.AutoMigrate {
		if err := gs.Migrate(ctx); err != nil {
			log.Fatal("migrate database", zap.Error(err))
		}
	}
	return gs, func() { _ = gs.Close() }
}

// openCache returns the response/revocation cache backend and the presence store sharing it.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Cache, presence.Store, func()) {
	if cfg.CacheDriver == "memory" {
		log.Warn("using in-memory cache; presence is local to this instance")
		return cache.NewMemoryCache(), presence.NewMemoryStore(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Cache failures degrade to store reads; keep serving.
		log.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return cache.NewRedisCache(client), presence.NewRedisStore(client), func() { _ = client.Close() }
}
