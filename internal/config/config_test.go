package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATEHOUSE_SESSION_TOKEN_SECRET", "unit-test-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Env != "development" {
		t.Errorf("env = %q", cfg.App.Env)
	}
	if cfg.Session.AccessTTL != 15*time.Minute {
		t.Errorf("access ttl = %s", cfg.Session.AccessTTL)
	}
	if cfg.Session.LifetimeCap != 14*24*time.Hour {
		t.Errorf("lifetime cap = %s", cfg.Session.LifetimeCap)
	}
	if cfg.Risk.AlertThreshold != 70 {
		t.Errorf("alert threshold = %d", cfg.Risk.AlertThreshold)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("GATEHOUSE_SESSION_TOKEN_SECRET", "unit-test-secret")
	t.Setenv("GATEHOUSE_SESSION_ACCESS_TTL", "5m")
	t.Setenv("GATEHOUSE_HTTP_ADDR", ":9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.AccessTTL != 5*time.Minute {
		t.Errorf("access ttl = %s", cfg.Session.AccessTTL)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("GATEHOUSE_SESSION_TOKEN_SECRET", "unit-test-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("session:\n  refresh_ttl: 1h\n  lifetime_cap: 6h\nrisk:\n  alert_threshold: 55\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.RefreshTTL != time.Hour {
		t.Errorf("refresh ttl = %s", cfg.Session.RefreshTTL)
	}
	if cfg.Session.LifetimeCap != 6*time.Hour {
		t.Errorf("lifetime cap = %s", cfg.Session.LifetimeCap)
	}
	if cfg.Risk.AlertThreshold != 55 {
		t.Errorf("alert threshold = %d", cfg.Risk.AlertThreshold)
	}
}

func TestMissingTokenSecretRejected(t *testing.T) {
	t.Setenv("GATEHOUSE_SESSION_TOKEN_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCapShorterThanRefreshRejected(t *testing.T) {
	t.Setenv("GATEHOUSE_SESSION_TOKEN_SECRET", "unit-test-secret")
	t.Setenv("GATEHOUSE_SESSION_REFRESH_TTL", "48h")
	t.Setenv("GATEHOUSE_SESSION_LIFETIME_CAP", "24h")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error")
	}
}
