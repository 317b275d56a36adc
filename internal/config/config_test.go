package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: attend
  user: attend
  password: attend
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Recognition.AcceptThreshold != 0.6 {
		t.Fatalf("expected default accept threshold 0.6, got %v", cfg.Recognition.AcceptThreshold)
	}
	if cfg.Recognition.MaxTemplatesPerSubject != 10 {
		t.Fatalf("expected default template cap 10, got %d", cfg.Recognition.MaxTemplatesPerSubject)
	}
	if cfg.Attendance.RapidSuccessionWindow != 30*time.Second {
		t.Fatalf("expected default rapid window 30s, got %s", cfg.Attendance.RapidSuccessionWindow)
	}
	if cfg.Attendance.RecentHistoryWindow != 24*time.Hour {
		t.Fatalf("expected default history window 24h, got %s", cfg.Attendance.RecentHistoryWindow)
	}
	if cfg.Consent.PolicyVersion != "1.0" {
		t.Fatalf("expected default policy version 1.0, got %s", cfg.Consent.PolicyVersion)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ATTEND_SERVER_PORT", "9090")
	t.Setenv("ATTEND_API_KEY", "sekrit")
	t.Setenv("ATTEND_DB_HOST", "db.internal")
	t.Setenv("ATTEND_ACCEPT_THRESHOLD", "0.75")
	t.Setenv("ATTEND_POLICY_VERSION", "2.1")

	path := writeConfig(t, `
server:
  port: 8080
database:
  host: localhost
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port override 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "sekrit" {
		t.Fatalf("expected api key override, got %q", cfg.Server.APIKey)
	}
	if cfg.Database.Host != "db.internal" {
		t.Fatalf("expected db host override, got %q", cfg.Database.Host)
	}
	if cfg.Recognition.AcceptThreshold != 0.75 {
		t.Fatalf("expected threshold override 0.75, got %v", cfg.Recognition.AcceptThreshold)
	}
	if cfg.Consent.PolicyVersion != "2.1" {
		t.Fatalf("expected policy version override 2.1, got %s", cfg.Consent.PolicyVersion)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "attend", User: "u", Password: "p"}
	expected := "postgres://u:p@db:5432/attend?sslmode=disable"
	if got := d.DSN(); got != expected {
		t.Fatalf("expected %q, got %q", expected, got)
	}
}
