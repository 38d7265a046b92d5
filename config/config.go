// Package config loads the service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the auth service needs at startup.
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string

	// AccessSecret and RefreshSecret sign the two token kinds. Both are
	// required and must differ; there is no insecure default.
	AccessSecret  string
	RefreshSecret string
	// PreviousAccessSecret and PreviousRefreshSecret keep old tokens
	// verifiable during key rotation.
	PreviousAccessSecret  string
	PreviousRefreshSecret string

	// PostgresURL is the pgx connection string for the durable tables.
	PostgresURL string
	// RedisAddr is the shared key-value store for rate limiting and the
	// session warm cache. Empty disables both.
	RedisAddr     string
	RedisPassword string

	// CookieDomain scopes the auth cookies; empty means host-only.
	CookieDomain string
	// CookieSecure should only be false in local development.
	CookieSecure bool

	// AuthRateLimit and AuthRateWindow override the login-path policy.
	AuthRateLimit  int
	AuthRateWindow time.Duration
	// APIRateLimit and APIRateWindow override the general API policy.
	APIRateLimit  int
	APIRateWindow time.Duration

	// MaxSessions caps live sessions per account.
	MaxSessions int
}

// Load reads the environment. When envFile is non-empty and exists it is
// loaded first; real environment variables win over file values.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		ListenAddr:            getenv("LISTEN_ADDR", ":8080"),
		AccessSecret:          os.Getenv("JWT_ACCESS_SECRET"),
		RefreshSecret:         os.Getenv("JWT_REFRESH_SECRET"),
		PreviousAccessSecret:  os.Getenv("JWT_ACCESS_SECRET_PREVIOUS"),
		PreviousRefreshSecret: os.Getenv("JWT_REFRESH_SECRET_PREVIOUS"),
		PostgresURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		CookieDomain:          os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:          getbool("COOKIE_SECURE", true),
		AuthRateLimit:         getint("AUTH_RATE_LIMIT", 5),
		AuthRateWindow:        getduration("AUTH_RATE_WINDOW", 15*time.Minute),
		APIRateLimit:          getint("API_RATE_LIMIT", 100),
		APIRateWindow:         getduration("API_RATE_WINDOW", 15*time.Minute),
		MaxSessions:           getint("MAX_SESSIONS", 5),
	}

	// Missing or shared signing secrets are a deployment mistake the
	// service must refuse to start with.
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
