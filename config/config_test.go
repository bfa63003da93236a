package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("JWT_SECRET", " s3cret ")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.Database.UseSSL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Auth.RequireEmailVerified)
	assert.Equal(t, 15*time.Minute, cfg.Auth.OTPTTL)
	assert.Equal(t, 20, cfg.RateLimit.AuthPerMinute)
	assert.False(t, cfg.RateLimit.TrustProxyHeaders)
	assert.Equal(t, "auth.verification", cfg.MQ.VerificationTopic)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("AUTH_REQUIRE_EMAIL_VERIFIED", "1")
	t.Setenv("STORAGE_BACKEND", "MINIO")
	t.Setenv("MQ_BACKEND", "rabbitmq")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Auth.RequireEmailVerified)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "rabbitmq", cfg.MQ.Backend)
	assert.True(t, cfg.RateLimit.TrustProxyHeaders)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("JWT_TTL", "-5m")
	t.Setenv("DB_USE_SSL", "maybe")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Database.UseSSL)
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("VENUELY_API_URL", "https://api.example.com/")
	t.Setenv("VENUELY_SESSION_DB", "/tmp/venuely.db")

	cfg := LoadClientConfig()

	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, "/tmp/venuely.db", cfg.SessionDB)
}
