package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration parsed from environment variables.
type Config struct {
	HTTPAddr             string
	CartBackendURL       string
	StorageDir           string
	JWTSecret            string
	SessionTTL           time.Duration
	CountRefreshInterval time.Duration
	WatchInterval        time.Duration
	ShutdownTimeout      time.Duration
	MergeOnLogin         bool
	AllowedOrigins       []string
}

// FromEnv builds Config with defaults, overridden by environment variables.
func FromEnv() Config {
	return Config{
		HTTPAddr:             envOrDefault("HTTP_ADDR", ":8080"),
		CartBackendURL:       envOrDefault("CART_BACKEND_URL", "http://localhost:9090"),
		StorageDir:           envOrDefault("STORAGE_DIR", "./data/sessions"),
		JWTSecret:            envOrDefault("JWT_SECRET", "dev-secret-change-me"),
		SessionTTL:           envDuration("SESSION_TTL_SECONDS", 72*time.Hour),
		CountRefreshInterval: envDuration("COUNT_REFRESH_SECONDS", 60*time.Second),
		WatchInterval:        envDuration("STORAGE_WATCH_SECONDS", 2*time.Second),
		ShutdownTimeout:      envDuration("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second),
		MergeOnLogin:         envBool("MERGE_GUEST_CART_ON_LOGIN", false),
		AllowedOrigins:       []string{envOrDefault("ALLOWED_ORIGIN", "http://localhost:3000")},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		seconds, err := strconv.Atoi(v)
		if err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err == nil {
			return parsed
		}
	}
	return def
}
