package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/security"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL    string
	DatabaseDriver string
	SQLitePath     string
	LocalMode      bool

	// Redis
	RedisURL     string
	NameCacheTTL time.Duration

	// RabbitMQ
	RabbitMQURL   string
	RabbitMQQueue string // prefix of the per-instance consumer queue

	// Cache
	CacheTimezone  string
	CacheClearCron string

	// Store circuit breaker
	StoreBreakerEnabled  bool
	StoreBreakerFailures int
	StoreBreakerTimeout  time.Duration

	// Health and metrics
	HealthAddr string
}

// fileConfig is the YAML overlay accepted by LoadFile. Empty fields leave
// the environment value in place.
type fileConfig struct {
	AppEnv    string `yaml:"app_env"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Database struct {
		URL        string `yaml:"url"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Redis struct {
		URL          string `yaml:"url"`
		NameCacheTTL string `yaml:"name_cache_ttl"`
	} `yaml:"redis"`

	RabbitMQ struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`

	Cache struct {
		Timezone  string `yaml:"timezone"`
		ClearCron string `yaml:"clear_cron"`
	} `yaml:"cache"`

	Breaker struct {
		Enabled  *bool  `yaml:"enabled"`
		Failures int    `yaml:"failures"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"store_breaker"`

	HealthAddr string `yaml:"health_addr"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "auto"),
		SQLitePath:     getEnv("SQLITE_PATH", getDefaultSQLitePath()),

		RedisURL:     getEnv("REDIS_URL", ""),
		NameCacheTTL: getDurationEnv("NAME_CACHE_TTL", 10*time.Minute),

		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue: getEnv("RABBITMQ_QUEUE", "schedcache.lookups"),

		CacheTimezone:  getEnv("CACHE_TIMEZONE", "UTC"),
		CacheClearCron: getEnv("CACHE_CLEAR_CRON", ""),

		StoreBreakerEnabled:  getBoolEnv("STORE_BREAKER_ENABLED", true),
		StoreBreakerFailures: getIntEnv("STORE_BREAKER_FAILURES", 5),
		StoreBreakerTimeout:  getDurationEnv("STORE_BREAKER_TIMEOUT", 30*time.Second),

		HealthAddr: getEnv("HEALTH_ADDR", "0.0.0.0:8081"),
	}
	cfg.LocalMode = getBoolEnv("LOCAL_MODE", cfg.DatabaseURL == "")
	cfg.resolveDriver()

	return cfg, nil
}

// LoadFile loads the environment configuration and overlays the YAML file
// at path on top of it.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := security.SafeReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.apply(fc); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if fc.Database.URL != "" && os.Getenv("LOCAL_MODE") == "" {
		cfg.LocalMode = false
	}
	cfg.resolveDriver()

	return cfg, nil
}

// Location returns the time zone used for cache day boundaries.
func (c *Config) Location() (*time.Location, error) {
	if c.CacheTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.CacheTimezone)
	if err != nil {
		return nil, fmt.Errorf("cache timezone %q: %w", c.CacheTimezone, err)
	}
	return loc, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// IsLocalMode reports whether the embedded SQLite store is used.
func (c *Config) IsLocalMode() bool {
	return c.LocalMode
}

// IsSQLite reports whether the SQLite driver is selected.
func (c *Config) IsSQLite() bool {
	return c.DatabaseDriver == "sqlite" || (c.DatabaseDriver == "auto" && c.LocalMode)
}

// IsPostgres reports whether the Postgres driver is selected.
func (c *Config) IsPostgres() bool {
	return c.DatabaseDriver == "postgres" || (c.DatabaseDriver == "auto" && !c.LocalMode)
}

// resolveDriver turns "auto" (or local mode) into a concrete driver name.
func (c *Config) resolveDriver() {
	switch {
	case c.LocalMode:
		c.DatabaseDriver = "sqlite"
	case c.DatabaseDriver == "" || c.DatabaseDriver == "auto":
		c.DatabaseDriver = "postgres"
	}
}

func (c *Config) apply(fc fileConfig) error {
	setString(&c.AppEnv, fc.AppEnv)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.DatabaseURL, fc.Database.URL)
	setString(&c.SQLitePath, fc.Database.SQLitePath)
	setString(&c.RedisURL, fc.Redis.URL)
	setString(&c.RabbitMQURL, fc.RabbitMQ.URL)
	setString(&c.RabbitMQQueue, fc.RabbitMQ.Queue)
	setString(&c.CacheTimezone, fc.Cache.Timezone)
	setString(&c.CacheClearCron, fc.Cache.ClearCron)
	setString(&c.HealthAddr, fc.HealthAddr)

	if fc.Breaker.Enabled != nil {
		c.StoreBreakerEnabled = *fc.Breaker.Enabled
	}
	if fc.Breaker.Failures > 0 {
		c.StoreBreakerFailures = fc.Breaker.Failures
	}

	var errs []error
	if fc.Redis.NameCacheTTL != "" {
		d, err := time.ParseDuration(fc.Redis.NameCacheTTL)
		if err != nil {
			errs = append(errs, fmt.Errorf("redis.name_cache_ttl: %w", err))
		} else {
			c.NameCacheTTL = d
		}
	}
	if fc.Breaker.Timeout != "" {
		d, err := time.ParseDuration(fc.Breaker.Timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("store_breaker.timeout: %w", err))
		} else {
			c.StoreBreakerTimeout = d
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".schedcache", "data.db")
	}
	return filepath.Join(home, ".schedcache", "data.db")
}
