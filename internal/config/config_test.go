package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "dev")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/telehealth")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("VONAGE_APPLICATION_ID", "app-1")
	t.Setenv("VONAGE_PRIVATE_KEY", "key")
	t.Setenv("ALLOW_FAKE_VIDEO", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("DEFAULT_TIMEZONE", "")
	t.Setenv("LOCK_TTL", "")
	t.Setenv("POSTGRES_MAX_CONNS", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 3*time.Second, cfg.LockWait)
	assert.Equal(t, "UTC", cfg.DefaultTimezone)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, "https://video.api.vonage.com", cfg.VonageAPIBaseURL)
	assert.Equal(t, 10, cfg.PostgresMaxConn)
}

func TestLoadParsesRedisURLAndDurations(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REDIS_URL", "redis://bob:pw@cache:6380")
	t.Setenv("LOCK_TTL", "15")
	t.Setenv("LOCK_WAIT", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "bob", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 15*time.Second, cfg.LockTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.LockWait)
}

func TestValidateFatalSettings(t *testing.T) {
	base := Config{
		Env:                 "dev",
		PostgresDSN:         "postgres://x",
		AuthJWTSecret:       "s",
		DefaultTimezone:     "UTC",
		VonageApplicationID: "app",
		VonagePrivateKey:    "key",
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing dsn", func(c *Config) { c.PostgresDSN = "" }, "POSTGRES_DSN"},
		{"missing auth secret", func(c *Config) { c.AuthJWTSecret = "" }, "AUTH_JWT_SECRET"},
		{"bad timezone", func(c *Config) { c.DefaultTimezone = "Mars/Olympus" }, "DEFAULT_TIMEZONE"},
		{"missing video credentials", func(c *Config) { c.VonagePrivateKey = " " }, "VONAGE"},
		{"fake video in prod", func(c *Config) {
			c.Env = "prod"
			c.AllowFakeVideo = true
		}, "ALLOW_FAKE_VIDEO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFakeVideoSkipsCredentials(t *testing.T) {
	cfg := Config{
		Env:             "dev",
		PostgresDSN:     "postgres://x",
		AuthJWTSecret:   "s",
		DefaultTimezone: "Europe/Berlin",
		AllowFakeVideo:  true,
	}
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.FakeVideo())
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestDegraded(t *testing.T) {
	cfg := Config{Env: "dev", AllowFakeVideo: true}
	assert.Len(t, cfg.Degraded(), 2)

	cfg = Config{Env: "prod", GeminiAPIKey: "k"}
	assert.Empty(t, cfg.Degraded())
}
