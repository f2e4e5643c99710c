package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to talk to its collaborators:
// the durable document store, the ephemeral presence store, the auth
// signing secret and the completion-service endpoint.
type Config struct {
	Addr      string
	DBDSN     string
	RedisAddr string
	JWTSecret string

	// SuggestURL is the completion-service endpoint. Empty disables
	// smart replies entirely (the trigger never fires a call).
	SuggestURL     string
	SuggestTimeout time.Duration

	LogLevel string
}

// Load reads configuration from the environment, honoring a local .env
// file when present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:           getEnv("ADDR", ":8080"),
		DBDSN:          os.Getenv("DB_DSN"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		SuggestURL:     os.Getenv("SUGGEST_URL"),
		SuggestTimeout: 10 * time.Second,
		LogLevel:       os.Getenv("MESSENGER_LOG_LEVEL"),
	}

	if v := os.Getenv("SUGGEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SUGGEST_TIMEOUT %q: %w", v, err)
		}
		cfg.SuggestTimeout = d
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
