package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR", "CORS_ALLOWED_ORIGINS", "ADMISSION_TIMEOUT"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.UsesPostgres() {
		t.Fatalf("expected in-memory stores by default")
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.AdmissionTimeout != 5*time.Second {
		t.Fatalf("expected default admission timeout, got %s", cfg.AdmissionTimeout)
	}
	if cfg.EventsRedisChannel != "bitecare:events" {
		t.Fatalf("expected default events channel, got %s", cfg.EventsRedisChannel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", " postgres://user@host/db ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://clinic.example, ,https://admin.example")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "4")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "4")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" || !cfg.UsesPostgres() {
		t.Fatalf("expected trimmed db override, got %q", cfg.DatabaseURL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 4 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.OutboxPollInterval != 250*time.Millisecond {
		t.Fatalf("expected outbox interval override, got %s", cfg.OutboxPollInterval)
	}
	if cfg.OutboxMaxAttempts != 4 || cfg.OutboxClaimLease != 30*time.Second {
		t.Fatalf("unexpected outbox claim policy %s/%d", cfg.OutboxClaimLease, cfg.OutboxMaxAttempts)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("ADMISSION_TIMEOUT", "soon")
	cfg := Load()
	if cfg.RateLimitBurst != 20 {
		t.Fatalf("expected fallback burst, got %d", cfg.RateLimitBurst)
	}
	if cfg.AdmissionTimeout != 5*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.AdmissionTimeout)
	}
}
