package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ratelimit-gateway/logging"
	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

// Exemplo: o gate injetado direto no webserver (sem proxy).
type config struct {
	ListenAddr string        `env:"LISTEN_ADDR" envDefault:":3000"`
	RedisAddr  string        `env:"REDIS_ADDR"` // vazio: contador em memória
	Limit      int64         `env:"RATE_LIMIT" envDefault:"100"`
	Window     time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
	LogLevel   string        `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, "example-server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store domain.CounterStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:                  cfg.RedisAddr,
			MaxRetries:            -1,
			ContextTimeoutEnabled: true,
		})
		defer func() { _ = rdb.Close() }()
		store = infra.NewRedisCounterStore(rdb)
	} else {
		mem := infra.NewMemoryCounterStore()
		mem.StartJanitor(ctx)
		store = mem
	}

	svc, err := application.NewService(store, application.Config{Limit: cfg.Limit, Window: cfg.Window})
	if err != nil {
		logger.Error("rate limiter", slog.Any("error", err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening",
		slog.String("addr", cfg.ListenAddr),
		slog.Bool("redis", cfg.RedisAddr != ""),
		slog.Int64("limit", cfg.Limit),
		slog.Duration("window", cfg.Window),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}
