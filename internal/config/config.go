package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ClientConfig holds the configuration for the session client
type ClientConfig struct {
	APIBaseURL string
	StateDir   string
	LogLevel   string
}

// StubConfig holds the configuration for the local stub backend
type StubConfig struct {
	Port       string
	JWTSecret  string
	DevMode    bool
	RedisAddr  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	LogLevel   string
}

// Client reads the session client configuration from environment
// variables. Everything has a default; the state directory falls back
// to ~/.homelens.
func Client() (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIBaseURL: "http://localhost:8080",
		LogLevel:   os.Getenv("LOG_LEVEL"),
	}

	if url := os.Getenv("HOMELENS_API_URL"); url != "" {
		cfg.APIBaseURL = url
	}

	if dir := os.Getenv("HOMELENS_STATE_DIR"); dir != "" {
		cfg.StateDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".homelens")
	}

	return cfg, nil
}

// Stub reads the stub backend configuration from environment variables.
// JWT_SECRET is required; REDIS_ADDR switches the stores from in-memory
// to redis.
func Stub() (*StubConfig, error) {
	cfg := &StubConfig{
		Port:       "8080",
		DevMode:    os.Getenv("OTP_DEV_MODE") == "true",
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
		LogLevel:   os.Getenv("LOG_LEVEL"),
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = secret

	if raw := os.Getenv("ACCESS_TOKEN_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
		}
		cfg.AccessTTL = d
	}
	if raw := os.Getenv("REFRESH_TOKEN_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REFRESH_TOKEN_TTL: %w", err)
		}
		cfg.RefreshTTL = d
	}

	return cfg, nil
}
