package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ratelimit-gateway/logging"
	"ratelimit-gateway/middleware/ratelimit"
	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "gateway")
	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "proxy error", slog.Any("error", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	var rdb *redis.Client
	if cfg.RateStore == storeRedis {
		rdb = newRedisClient(cfg.Redis, cfg.StoreTimeout)
		defer func() { _ = rdb.Close() }()
		pingRedis(ctx, rdb, logger)
	}

	h := http.Handler(proxy)

	concurrency, err := ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.Timeout,
		Logger:         logger,
		Registerer:     registry,
	})
	if err != nil {
		return fmt.Errorf("concurrency middleware: %w", err)
	}
	h = concurrency(h)

	if cfg.RateEnabled {
		var store domain.CounterStore
		switch cfg.RateStore {
		case storeRedis:
			store = infra.NewRedisCounterStore(rdb)
		case storeMemory:
			mem := infra.NewMemoryCounterStore()
			mem.StartJanitor(ctx)
			store = mem
		}

		svc, err := application.NewService(store, application.Config{
			Limit:     cfg.RateLimit,
			Window:    cfg.RateWindow,
			KeyPrefix: cfg.RateKeyPrefix,
			OpTimeout: cfg.StoreTimeout,
		})
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		stats, err := newStatsStore(cfg, rdb, registry)
		if err != nil {
			return fmt.Errorf("rate stats: %w", err)
		}

		h = ratelimit.Middleware(ratelimit.Options{
			Decider:            svc,
			Stats:              stats,
			Logger:             logger,
			KeyHeader:          cfg.RateKeyHeader,
			TrustXForwardedFor: cfg.TrustXFF,
		})(h)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("gateway listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("upstream", target.String()),
	)
	logger.Info("rate limit",
		slog.Bool("enabled", cfg.RateEnabled),
		slog.Int64("limit", cfg.RateLimit),
		slog.Duration("window", cfg.RateWindow),
		slog.String("store", cfg.RateStore),
		slog.Duration("store_timeout", cfg.StoreTimeout),
		slog.String("key_header", cfg.RateKeyHeader),
		slog.Bool("trust_xff", cfg.TrustXFF),
	)
	logger.Info("concurrency",
		slog.Int("max", cfg.Concurrency.Max),
		slog.Duration("acquire_timeout", cfg.Concurrency.Timeout),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// newRedisClient cria o cliente compartilhado por todas as decisões. Sem
// retries: uma falha vira fail-open na hora.
func newRedisClient(cfg redisConfig, timeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		MaxRetries:            -1,
		DialTimeout:           timeout,
		ReadTimeout:           timeout,
		WriteTimeout:          timeout,
		ContextTimeoutEnabled: true,
	})
}

// pingRedis só registra o estado: com o store fora o gateway sobe e opera em fail-open.
func pingRedis(ctx context.Context, rdb *redis.Client, logger *slog.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, rate limiter will fail open",
			slog.String("addr", rdb.Options().Addr),
			slog.Any("error", err),
		)
		return
	}
	logger.Info("redis connected", slog.String("addr", rdb.Options().Addr))
}

func newStatsStore(cfg config, rdb *redis.Client, reg prometheus.Registerer) (domain.StatsStore, error) {
	prom, err := infra.NewPrometheusStatsStore(reg)
	if err != nil {
		return nil, err
	}
	stores := infra.MultiStatsStore{prom}

	if cfg.Stats.Enabled && rdb != nil {
		stores = append(stores, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackIdentities(cfg.Stats.TrackKeys),
		))
	}
	return stores, nil
}
