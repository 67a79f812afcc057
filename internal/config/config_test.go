package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PROJECTION_TTL_SECONDS", "")
	t.Setenv("SESSION_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.ProjectionTTLSeconds != 15 {
		t.Fatalf("expected default projection ttl 15, got %d", cfg.ProjectionTTLSeconds)
	}
	if cfg.SessionTTLMinutes != 30 {
		t.Fatalf("expected default session ttl 30, got %d", cfg.SessionTTLMinutes)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected address :8080, got %q", cfg.Address())
	}
}

func TestLoadFallsBackOnInvalidTTL(t *testing.T) {
	t.Setenv("PROJECTION_TTL_SECONDS", "not-a-number")
	t.Setenv("SESSION_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.ProjectionTTLSeconds != 15 {
		t.Fatalf("expected projection ttl fallback 15, got %d", cfg.ProjectionTTLSeconds)
	}
	if cfg.SessionTTLMinutes != 30 {
		t.Fatalf("expected session ttl fallback 30, got %d", cfg.SessionTTLMinutes)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PROJECTION_TTL_SECONDS", "60")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.ProjectionTTLSeconds != 60 {
		t.Fatalf("expected projection ttl 60, got %d", cfg.ProjectionTTLSeconds)
	}
}
