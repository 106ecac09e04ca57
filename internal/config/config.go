package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Partner-Hub application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Geo        GeoConfig
	Jobs       JobsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ClickHouseConfig configures the optional click archive.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled    bool
	RPS        float64
	Burst      int
	TrackRPS   float64
	TrackBurst int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures GeoIP lookup.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

// JobsConfig configures the background reconciliation job.
type JobsConfig struct {
	ReconcileEnabled bool
	ReconcileSpec    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("PARTNER_HUB_HTTP_ADDR", ":8080"),
			Env:             getEnv("PARTNER_HUB_ENV", "development"),
			ShutdownTimeout: getDurationEnv("PARTNER_HUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PARTNER_HUB_DB_HOST", "localhost"),
			Port:     getIntEnv("PARTNER_HUB_DB_PORT", 5432),
			User:     getEnv("PARTNER_HUB_DB_USER", "partnerhub"),
			Password: getEnv("PARTNER_HUB_DB_PASSWORD", "partnerhub_secret"),
			DBName:   getEnv("PARTNER_HUB_DB_NAME", "partnerhub"),
			SSLMode:  getEnv("PARTNER_HUB_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("PARTNER_HUB_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("PARTNER_HUB_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("PARTNER_HUB_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("PARTNER_HUB_REDIS_PASSWORD", ""),
			DB:       getIntEnv("PARTNER_HUB_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("PARTNER_HUB_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("PARTNER_HUB_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("PARTNER_HUB_CLICKHOUSE_DB", "partnerhub"),
			User:     getEnv("PARTNER_HUB_CLICKHOUSE_USER", "default"),
			Password: getEnv("PARTNER_HUB_CLICKHOUSE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("PARTNER_HUB_AUTH_ENABLED", true),
			MasterKey: getEnv("PARTNER_HUB_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("PARTNER_HUB_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/ws", "/track/click", "/track/conversion", "/api/game/leaderboard"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getBoolEnv("PARTNER_HUB_RATE_LIMIT_ENABLED", true),
			RPS:        getFloatEnv("PARTNER_HUB_RATE_LIMIT_RPS", 100),
			Burst:      getIntEnv("PARTNER_HUB_RATE_LIMIT_BURST", 20),
			TrackRPS:   getFloatEnv("PARTNER_HUB_RATE_LIMIT_TRACK_RPS", 1000),
			TrackBurst: getIntEnv("PARTNER_HUB_RATE_LIMIT_TRACK_BURST", 100),
		},
		Log: LogConfig{
			Level:  getEnv("PARTNER_HUB_LOG_LEVEL", "info"),
			Format: getEnv("PARTNER_HUB_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("PARTNER_HUB_METRICS_ENABLED", true),
			Path:    getEnv("PARTNER_HUB_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("PARTNER_HUB_GEO_ENABLED", false),
			DatabasePath: getEnv("PARTNER_HUB_GEO_DB_PATH", "/app/data/GeoLite2-Country.mmdb"),
		},
		Jobs: JobsConfig{
			ReconcileEnabled: getBoolEnv("PARTNER_HUB_RECONCILE_ENABLED", true),
			ReconcileSpec:    getEnv("PARTNER_HUB_RECONCILE_SPEC", "@hourly"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("PARTNER_HUB_API_KEY_MASTER is required when auth is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
