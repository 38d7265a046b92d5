package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	if _, err := Load(""); err == nil {
		t.Fatal("expected an error without signing secrets")
	}

	t.Setenv("JWT_ACCESS_SECRET", "same")
	t.Setenv("JWT_REFRESH_SECRET", "same")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for shared secrets")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.AuthRateLimit != 5 || cfg.AuthRateWindow != 15*time.Minute {
		t.Fatalf("unexpected auth policy defaults: %d/%s", cfg.AuthRateLimit, cfg.AuthRateWindow)
	}
	if cfg.APIRateLimit != 100 {
		t.Fatalf("unexpected api limit default: %d", cfg.APIRateLimit)
	}
	if cfg.MaxSessions != 5 {
		t.Fatalf("unexpected session cap default: %d", cfg.MaxSessions)
	}
	if !cfg.CookieSecure {
		t.Fatal("cookies must default to secure")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("AUTH_RATE_LIMIT", "9")
	t.Setenv("AUTH_RATE_WINDOW", "1m")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("MAX_SESSIONS", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AuthRateLimit != 9 || cfg.AuthRateWindow != time.Minute {
		t.Fatalf("override not applied: %d/%s", cfg.AuthRateLimit, cfg.AuthRateWindow)
	}
	if cfg.CookieSecure {
		t.Fatal("COOKIE_SECURE=false not applied")
	}
	if cfg.MaxSessions != 2 {
		t.Fatalf("MAX_SESSIONS override not applied: %d", cfg.MaxSessions)
	}
}

func TestLoadIgnoresInvalidOverrides(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("AUTH_RATE_LIMIT", "-3")
	t.Setenv("AUTH_RATE_WINDOW", "soon")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AuthRateLimit != 5 || cfg.AuthRateWindow != 15*time.Minute {
		t.Fatalf("invalid overrides must fall back to defaults: %d/%s",
			cfg.AuthRateLimit, cfg.AuthRateWindow)
	}
}
