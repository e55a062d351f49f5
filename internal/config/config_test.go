package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSQLiteDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "events.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 10, cfg.MaxSeatsPerReservation)
	assert.Equal(t, 48*time.Hour, cfg.CancellationCutoff)
	assert.Equal(t, "EVT-", cfg.CodePrefix)
	assert.Equal(t, 5, cfg.CodeDigits)
	assert.Equal(t, 100, cfg.CodeMaxAttempts)
	assert.Equal(t, time.Minute, cfg.FinishSweepInterval)
	assert.False(t, cfg.QueueEnabled)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	cases := map[string]map[string]string{
		"missing jwt secret":     {"DB_DRIVER": "sqlite3"},
		"mysql without host":     {"DB_DRIVER": "mysql", "JWT_SECRET": "s", "DB_USER": "u", "DB_NAME": "n"},
		"unknown driver":         {"DB_DRIVER": "postgres", "JWT_SECRET": "s"},
		"queue without url":      {"DB_DRIVER": "sqlite3", "JWT_SECRET": "s", "QUEUE_ENABLED": "true"},
		"bad log level":          {"DB_DRIVER": "sqlite3", "JWT_SECRET": "s", "LOG_LEVEL": "loud"},
		"zero seats per booking": {"DB_DRIVER": "sqlite3", "JWT_SECRET": "s", "MAX_SEATS_PER_RESERVATION": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "events")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("QUEUE_ENABLED", "yes")
	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("CANCELLATION_CUTOFF", "24h")
	t.Setenv("APP_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.QueueEnabled)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.AMQPURL)
	assert.Equal(t, 24*time.Hour, cfg.CancellationCutoff)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, ":9000", cfg.Addr())
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL)
	assert.Equal(t, "ip_user_route", cfg.KeyStrategy)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	rc := LoadRedisConfig()
	assert.Equal(t, "cache:6380", rc.Addr)
	assert.Equal(t, 2, rc.DB)
	assert.False(t, rc.TLS)
}
