package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.API.Port)
	}
	if cfg.MinIO.Namespace != "analyses" {
		t.Fatalf("unexpected namespace %q", cfg.MinIO.Namespace)
	}
	if got := cfg.Providers.Timeout(cfg.Providers.A); got != 60*time.Second {
		t.Fatalf("expected 60s provider timeout, got %v", got)
	}
	if cfg.Providers.EnabledList() != nil {
		t.Fatalf("expected no explicit provider list")
	}
}

func TestLoadProviderOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROVIDER_A_API_KEY", "sk-test")
	t.Setenv("PROVIDER_C_TIMEOUT_SECONDS", "15")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "45")
	t.Setenv("ENABLED_PROVIDERS", "A, C")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/cv?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Providers.A.APIKey != "sk-test" {
		t.Fatalf("expected provider A key")
	}
	if got := cfg.Providers.Timeout(cfg.Providers.C); got != 15*time.Second {
		t.Fatalf("expected per-provider timeout, got %v", got)
	}
	if got := cfg.Providers.Timeout(cfg.Providers.B); got != 45*time.Second {
		t.Fatalf("expected global timeout, got %v", got)
	}
	enabled := cfg.Providers.EnabledList()
	if len(enabled) != 2 || enabled[0] != "A" || enabled[1] != "C" {
		t.Fatalf("unexpected enabled list %v", enabled)
	}
	if cfg.Database.DSN() != "postgres://u:p@db:5432/cv?sslmode=disable" {
		t.Fatalf("expected DATABASE_URL to win, got %q", cfg.Database.DSN())
	}
}

func TestLoadRejectsMissingMinIOCredentials(t *testing.T) {
	t.Setenv("MINIO_ACCESS_KEY_ID", "")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing minio credentials")
	}
}
