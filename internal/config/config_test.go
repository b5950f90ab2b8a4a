package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Defaults(t *testing.T) {
	t.Setenv("HOMELENS_API_URL", "")
	t.Setenv("HOMELENS_STATE_DIR", "/tmp/homelens-test")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Client()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, "/tmp/homelens-test", cfg.StateDir)
}

func TestClient_EnvOverrides(t *testing.T) {
	t.Setenv("HOMELENS_API_URL", "https://api.example.com")
	t.Setenv("HOMELENS_STATE_DIR", "/var/lib/homelens")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Client()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, "/var/lib/homelens", cfg.StateDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestStub_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Stub()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestStub_TTLParsing(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("REFRESH_TOKEN_TTL", "24h")
	t.Setenv("OTP_DEV_MODE", "true")
	t.Setenv("PORT", "9090")

	cfg, err := Stub()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTTL)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "9090", cfg.Port)
}

func TestStub_RejectsBadTTL(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL", "soon")

	_, err := Stub()
	require.Error(t, err)
}
