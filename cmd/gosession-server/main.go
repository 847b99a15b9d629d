// Command gosession-server serves the goSession auth routes over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/audit/kafkasink"
	"github.com/MrEthical07/goSession/cache"
	"github.com/MrEthical07/goSession/directory"
	"github.com/MrEthical07/goSession/internal/config"
	"github.com/MrEthical07/goSession/internal/logging"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/transport/httpapi"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gosession-server: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	store, locker, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeStore)

	dir, closeDir, err := openDirectory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeDir)

	b := goSession.New().
		WithConfig(cfg.Engine()).
		WithStore(store).
		WithLocker(locker).
		WithUserDirectory(dir).
		WithLogger(logger.Named("engine"))

	if cfg.AuditEnabled() {
		sink, err := kafkasink.New(cfg.KafkaBrokerList(), cfg.AuditTopic, kafkasink.WithLogger(logger))
		if err != nil {
			return err
		}
		cleanups = append(cleanups, func() { _ = sink.Close() })
		b = b.WithAuditSink(sink)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	cleanups = append(cleanups, engine.Close)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := httpapi.NewRouter(engine, logger, httpapi.Options{
		CookieSecure:   cfg.CookieSecure,
		TrustedProxies: cfg.TrustedProxyList(),
		Metrics:        promexport.Handler(engine),
		Health:         engine,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config, logger *zap.Logger) (cache.Repository, cache.Locker, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return cache.NewRedis(client, cfg.RedisPrefix), cache.NewRedisLocker(client, cfg.RedisPrefix),
			func() { _ = client.Close() }, nil

	case config.StoreMiniredis:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("using in-process miniredis; sessions are lost on restart", zap.String("addr", mr.Addr()))
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return cache.NewRedis(client, cfg.RedisPrefix), cache.NewRedisLocker(client, cfg.RedisPrefix),
			func() {
				_ = client.Close()
				mr.Close()
			}, nil

	default:
		return cache.NewMemory(), cache.NewMemoryLocker(), func() {}, nil
	}
}

func openDirectory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (goSession.UserDirectory, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DB_URL not set; users are kept in memory")
		return directory.NewMemory(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := directory.Migrate(pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("database migrations applied")

	dir, err := directory.NewPostgres(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return dir, pool.Close, nil
}
