package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PARTNER_HUB_API_KEY_MASTER", "test-master")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxConns)

	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "test-master", cfg.Auth.MasterKey)
	assert.Contains(t, cfg.Auth.SkipPaths, "/track/click")
	assert.Contains(t, cfg.Auth.SkipPaths, "/health")
	assert.Contains(t, cfg.Auth.SkipPaths, "/api/game/leaderboard")

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, float64(100), cfg.RateLimit.RPS)
	assert.Equal(t, float64(1000), cfg.RateLimit.TrackRPS)

	assert.False(t, cfg.ClickHouse.Enabled)
	assert.False(t, cfg.Geo.Enabled)
	assert.True(t, cfg.Jobs.ReconcileEnabled)
	assert.Equal(t, "@hourly", cfg.Jobs.ReconcileSpec)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PARTNER_HUB_API_KEY_MASTER", "test-master")
	t.Setenv("PARTNER_HUB_HTTP_ADDR", ":9999")
	t.Setenv("PARTNER_HUB_ENV", "production")
	t.Setenv("PARTNER_HUB_DB_PORT", "15432")
	t.Setenv("PARTNER_HUB_RATE_LIMIT_RPS", "2.5")
	t.Setenv("PARTNER_HUB_RATE_LIMIT_ENABLED", "false")
	t.Setenv("PARTNER_HUB_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("PARTNER_HUB_AUTH_SKIP_PATHS", "/health, /custom")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"/health", "/custom"}, cfg.Auth.SkipPaths)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("PARTNER_HUB_API_KEY_MASTER", "test-master")
	t.Setenv("PARTNER_HUB_DB_PORT", "not-a-number")
	t.Setenv("PARTNER_HUB_METRICS_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate_RequiresMasterKeyWhenAuthEnabled(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{Enabled: true}}
	assert.Error(t, cfg.Validate())

	cfg.Auth.MasterKey = "secret"
	assert.NoError(t, cfg.Validate())

	cfg = &Config{Auth: AuthConfig{Enabled: false}}
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "hub",
		Password: "pw",
		DBName:   "partnerhub",
		SSLMode:  "require",
	}
	assert.Equal(t, "postgres://hub:pw@db.internal:5433/partnerhub?sslmode=require", d.DSN())
}
