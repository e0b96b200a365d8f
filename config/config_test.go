package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("SIGNING_SECRET_SOURCE", "")
	t.Setenv("REQUEST_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mysql", cfg.DatabaseDriver)
	assert.Equal(t, "env", cfg.SigningSecretSource)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4096, cfg.SigningKeyRSABits)
	assert.False(t, cfg.OtelEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_AUTO_MIGRATE", "true")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")
	t.Setenv("SUBMIT_RATE_LIMIT_BURST", "3")
	t.Setenv("SIGNING_KEY_LIFETIME", "720h")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.True(t, cfg.DatabaseAutoMigrate)
	assert.InDelta(t, 0.25, cfg.OtelSamplingRate, 1e-9)
	assert.Equal(t, 3, cfg.SubmitRateLimitBurst)
	assert.Equal(t, 720*time.Hour, cfg.SigningKeyLifetime)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "maybe")
	t.Setenv("SIGNING_KEY_RSA_BITS", "lots")

	cfg := Load()

	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 4096, cfg.SigningKeyRSABits)
}
