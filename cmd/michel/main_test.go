package main

import (
	"strings"
	"testing"
	"time"
)

func TestRequiredEnv(t *testing.T) {
	t.Setenv("MICHEL_TEST_REQUIRED", "  value  ")
	got, err := requiredEnv("MICHEL_TEST_REQUIRED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "value" {
		t.Fatalf("got %q, want trimmed value", got)
	}

	t.Setenv("MICHEL_TEST_REQUIRED", "   ")
	if _, err := requiredEnv("MICHEL_TEST_REQUIRED"); err == nil {
		t.Fatalf("expected error for blank value")
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("MICHEL_TEST_ENVOR", "")
	if got := envOr("MICHEL_TEST_ENVOR", "fallback"); got != "fallback" {
		t.Fatalf("got %q, want fallback", got)
	}
	t.Setenv("MICHEL_TEST_ENVOR", "explicit")
	if got := envOr("MICHEL_TEST_ENVOR", "fallback"); got != "explicit" {
		t.Fatalf("got %q, want explicit", got)
	}
}

func TestInt64Env(t *testing.T) {
	t.Setenv("MICHEL_TEST_INT", "")
	if got := int64Env("MICHEL_TEST_INT", 42); got != 42 {
		t.Fatalf("got %d, want fallback 42", got)
	}
	t.Setenv("MICHEL_TEST_INT", "1048576")
	if got := int64Env("MICHEL_TEST_INT", 42); got != 1048576 {
		t.Fatalf("got %d, want 1048576", got)
	}
	t.Setenv("MICHEL_TEST_INT", "not-a-number")
	if got := int64Env("MICHEL_TEST_INT", 42); got != 42 {
		t.Fatalf("got %d, want fallback on bad value", got)
	}
}

func TestDurationEnv(t *testing.T) {
	t.Setenv("MICHEL_TEST_DURATION", "")
	if got := durationEnv("MICHEL_TEST_DURATION", 5*time.Second); got != 5*time.Second {
		t.Fatalf("got %s, want fallback", got)
	}
	t.Setenv("MICHEL_TEST_DURATION", "30s")
	if got := durationEnv("MICHEL_TEST_DURATION", 5*time.Second); got != 30*time.Second {
		t.Fatalf("got %s, want 30s", got)
	}
	t.Setenv("MICHEL_TEST_DURATION", "soon")
	if got := durationEnv("MICHEL_TEST_DURATION", 5*time.Second); got != 5*time.Second {
		t.Fatalf("got %s, want fallback on bad value", got)
	}
}

func setFullEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MATRIX_HOMESERVER_URL", "https://matrix.example.org")
	t.Setenv("MATRIX_USER_ID", "@bot:example.org")
	t.Setenv("MATRIX_PASSWORD", "hunter2")
	t.Setenv("MATRIX_ROOM_ALIAS", "#issues:example.org")
	t.Setenv("SEERR_API_URL", "https://seerr.example.org")
	t.Setenv("SEERR_API_KEY", "key_123")
	t.Setenv("DATABASE_URL", "postgres://michel@localhost/michel")
	t.Setenv("MICHEL_STORE_DSN", "")
	t.Setenv("WEBHOOK_LISTEN_ADDR", "")
	t.Setenv("MATRIX_ADMIN_USERS", "")
	t.Setenv("MATRIX_ADMIN_USERS_FILE", "")
	t.Setenv("OPEN_MARKER_EMOJI", "")
	t.Setenv("WEBHOOK_TOKEN", "")
	t.Setenv("ADMIN_API_TOKEN", "")
	t.Setenv("MICHEL_MAX_BODY_BYTES", "")
	t.Setenv("MICHEL_SHUTDOWN_TIMEOUT", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setFullEnv(t)
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.webhookListenAddr != "0.0.0.0:8080" {
		t.Fatalf("listen addr = %q", cfg.webhookListenAddr)
	}
	if cfg.storeDSN != "postgres://michel@localhost/michel" {
		t.Fatalf("store dsn = %q", cfg.storeDSN)
	}
	if cfg.shutdownTimeout != 5*time.Second {
		t.Fatalf("shutdown timeout = %s", cfg.shutdownTimeout)
	}
}

func TestLoadConfigStoreDSNOverridesDatabaseURL(t *testing.T) {
	setFullEnv(t)
	t.Setenv("MICHEL_STORE_DSN", "memory://")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.storeDSN != "memory://" {
		t.Fatalf("store dsn = %q, want memory://", cfg.storeDSN)
	}
}

func TestLoadConfigReportsMissingVariable(t *testing.T) {
	setFullEnv(t)
	t.Setenv("SEERR_API_KEY", "")
	_, err := loadConfig()
	if err == nil {
		t.Fatalf("expected error for missing SEERR_API_KEY")
	}
	if !strings.Contains(err.Error(), "SEERR_API_KEY") {
		t.Fatalf("error does not name the variable: %v", err)
	}
}
