package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	storeRedis  = "redis"
	storeMemory = "memory"
)

type config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	UpstreamURL string `env:"UPSTREAM_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	RateEnabled   bool          `env:"RATE_ENABLED" envDefault:"true"`
	RateLimit     int64         `env:"RATE_LIMIT" envDefault:"100"`
	RateWindow    time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
	RateKeyPrefix string        `env:"RATE_KEY_PREFIX" envDefault:"rate:user:"`
	RateKeyHeader string        `env:"RATE_KEY_HEADER" envDefault:"User-Id"`
	TrustXFF      bool          `env:"TRUST_XFF" envDefault:"false"`
	RateStore     string        `env:"RATE_STORE" envDefault:"redis"`
	// StoreTimeout limita cada chamada ao counter store.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"100ms"`

	Redis       redisConfig       `envPrefix:"REDIS_"`
	Concurrency concurrencyConfig `envPrefix:"CONCURRENCY_"`
	Stats       statsConfig       `envPrefix:"RATE_STATS_"`
}

type redisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type concurrencyConfig struct {
	Max     int           `env:"MAX" envDefault:"100"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"0s"`
}

type statsConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"false"`
	Prefix    string        `env:"PREFIX" envDefault:"ratelimit:stats"`
	TTL       time.Duration `env:"TTL" envDefault:"24h"`
	Bucket    string        `env:"BUCKET" envDefault:"minute"`
	TrackKeys bool          `env:"TRACK_KEYS" envDefault:"false"`
}

// loadConfig lê um .env opcional e depois as variáveis do processo.
func loadConfig() (config, error) {
	_ = godotenv.Load()
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.RateStore = strings.ToLower(strings.TrimSpace(cfg.RateStore))
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if _, err := url.Parse(c.UpstreamURL); err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}
	if c.RateLimit <= 0 {
		return errors.New("RATE_LIMIT must be > 0")
	}
	if c.RateWindow < time.Second {
		return errors.New("RATE_WINDOW must be >= 1s")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be > 0")
	}
	switch c.RateStore {
	case storeRedis, storeMemory:
	default:
		return fmt.Errorf("unsupported RATE_STORE: %q", c.RateStore)
	}
	if c.Stats.Enabled && c.RateStore != storeRedis {
		return errors.New("RATE_STATS_ENABLED=true requires RATE_STORE=redis")
	}
	if c.Concurrency.Max < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}
