package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key Load reads so a developer's .env or shell does
// not leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "PORT", "STORE_BACKEND", "DATABASE_URL",
		"POSTGRES_ADDR", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_SSLMODE",
		"JWT_SECRET", "JWT_ISSUER", "REDIS_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"CACHE_EVENT_TTL", "RL_ENABLED", "RL_REQUESTS_LIMIT", "RL_WINDOW_SECONDS",
		"DRAW_RL_LIMIT", "DRAW_RL_WINDOW", "RABBITMQ_URL", "RABBIT_URL",
		"RABBITMQ_EXCHANGE", "RABBIT_EXCHANGE", "RABBITMQ_QUEUE", "LOG_LEVEL",
		"OUTBOX_ENABLED", "CONSUMER_ENABLED", "RETENTION_ENABLED", "RETENTION_PERIOD", "MIGRATE_ON_START", "MEMORY_OUTBOX_LIMIT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/waitlist")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 5*time.Minute, cfg.CacheEventTTL)
	assert.Equal(t, 60*time.Second, cfg.RLWindow)
	assert.Equal(t, 5, cfg.DrawRLLimit)
	assert.Equal(t, "city.events", cfg.RabbitExchange)
	assert.True(t, cfg.OutboxEnabled)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoad_BuildsDSNFromParts(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("POSTGRES_ADDR", "db:5432")
	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_PASSWORD", "p@ss/word")
	t.Setenv("POSTGRES_DB", "waitlist")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/waitlist?sslmode=disable", cfg.DBDSN)
}

func TestLoad_MemoryBackendSkipsDatabase(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.DBDSN)
	assert.False(t, cfg.OutboxEnabled)
	assert.True(t, cfg.RetentionEnabled)
	assert.Equal(t, 1000, cfg.MemoryOutboxLimit)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing database", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("JWT_SECRET", "s3cret")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("missing secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STORE_BACKEND", "memory")
		_, err := Load()
		assert.ErrorContains(t, err, "JWT_SECRET")
	})
	t.Run("unknown backend", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("JWT_SECRET", "s3cret")
		t.Setenv("STORE_BACKEND", "sqlite")
		_, err := Load()
		assert.ErrorContains(t, err, "STORE_BACKEND")
	})
}

func TestGetBool_PanicsOnGarbage(t *testing.T) {
	t.Setenv("SOME_FLAG", "maybe")
	assert.Panics(t, func() { getBool("SOME_FLAG", false) })
}
