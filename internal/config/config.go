package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string        `env:"DATABASE_URL,required"`
	JWTSecret   string        `env:"JWT_SECRET,required"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	Port        int           `env:"PORT" envDefault:"8080"`
	MetricsPort int           `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string        `env:"APP_ENV" envDefault:"production"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	WorkerConcurrency           int `env:"WORKER_CONCURRENCY" envDefault:"5"`
	TransferRetryLimit          int `env:"TRANSFER_RETRY_LIMIT" envDefault:"5"`
	TransferBackoffMS           int `env:"TRANSFER_BACKOFF_MS" envDefault:"1000"`
	TransferJobTimeoutS         int `env:"TRANSFER_JOB_TIMEOUT_S" envDefault:"30"`
	TransferOptimisticRetries   int `env:"TRANSFER_OPTIMISTIC_RETRIES" envDefault:"3"`
	TransferOptimisticBackoffMS int `env:"TRANSFER_OPTIMISTIC_BACKOFF_MS" envDefault:"50"`

	FXProvider  string  `env:"FX_PROVIDER" envDefault:"static"`
	FXAPIURL    string  `env:"FX_API_URL" envDefault:"https://v6.exchangerate-api.com/v6"`
	FXAPIKey    string  `env:"FX_API_KEY"`
	FXCacheTTLS int     `env:"FX_CACHE_TTL_S" envDefault:"300"`
	FXSpreadPct float64 `env:"FX_SPREAD_PCT" envDefault:"0"`

	SweepIntervalS    int `env:"SWEEP_INTERVAL_S" envDefault:"60"`
	SweepStaleAfterS  int `env:"SWEEP_STALE_AFTER_S" envDefault:"900"`
	SweepExpireAfterS int `env:"SWEEP_EXPIRE_AFTER_S" envDefault:"86400"`
	SweepBatchSize    int `env:"SWEEP_BATCH_SIZE" envDefault:"50"`

	StatusStreamIntervalMS int `env:"STATUS_STREAM_INTERVAL_MS" envDefault:"1000"`
	RateLimitPerMinute     int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("config.Load: WORKER_CONCURRENCY must be at least 1, got %d", cfg.WorkerConcurrency)
	}
	if cfg.FXProvider != "static" && cfg.FXProvider != "remote" {
		return nil, fmt.Errorf("config.Load: FX_PROVIDER must be static or remote, got %q", cfg.FXProvider)
	}
	return &cfg, nil
}

func (c *Config) TransferBackoff() time.Duration {
	return time.Duration(c.TransferBackoffMS) * time.Millisecond
}

func (c *Config) OptimisticBackoff() time.Duration {
	return time.Duration(c.TransferOptimisticBackoffMS) * time.Millisecond
}

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.TransferJobTimeoutS) * time.Second
}

func (c *Config) FXCacheTTL() time.Duration {
	return time.Duration(c.FXCacheTTLS) * time.Second
}

func (c *Config) StatusStreamInterval() time.Duration {
	return time.Duration(c.StatusStreamIntervalMS) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalS) * time.Second
}

func (c *Config) SweepStaleAfter() time.Duration {
	return time.Duration(c.SweepStaleAfterS) * time.Second
}

func (c *Config) SweepExpireAfter() time.Duration {
	return time.Duration(c.SweepExpireAfterS) * time.Second
}
