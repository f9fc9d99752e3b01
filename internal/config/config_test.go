package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signaling.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom("", envLookup(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if cfg.Addr() != ":3000" {
		t.Fatalf("unexpected addr: %q", cfg.Addr())
	}
	if cfg.SessionMaxAge != 24*time.Hour || cfg.SweepInterval != time.Hour {
		t.Fatalf("unexpected retention: %v / %v", cfg.SessionMaxAge, cfg.SweepInterval)
	}
	if cfg.DBPath != "data/signaling.db" || !cfg.AuditEnabled() {
		t.Fatalf("unexpected db path: %q", cfg.DBPath)
	}
	if cfg.MaxMessageBytes != 65536 || cfg.MaxMessagesPerSecond != 50 {
		t.Fatalf("unexpected limits: %d / %d", cfg.MaxMessageBytes, cfg.MaxMessagesPerSecond)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("unexpected shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	if cfg.LogLevel != "info" || cfg.LogPretty {
		t.Fatalf("unexpected logging: %q pretty=%v", cfg.LogLevel, cfg.LogPretty)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("unexpected origins: %+v", cfg.AllowedOrigins)
	}
}

func TestLoadFromFileAndEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
port = 4000
db_path = "/var/lib/signaling/audit.db"
allowed_origins = ["https://app.example.com", " "]
session_max_age = "2h"
sweep_interval = "5m"
log_level = "debug"
`)

	cfg, err := LoadFrom(path, envLookup(map[string]string{
		"PORT":            "5000",
		"ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com",
		"LOG_PRETTY":      "true",
		"SWEEP_INTERVAL":  "",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Port != 5000 {
		t.Fatalf("env should override file port, got %d", cfg.Port)
	}
	if cfg.DBPath != "/var/lib/signaling/audit.db" {
		t.Fatalf("unexpected db path: %q", cfg.DBPath)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins: %+v", cfg.AllowedOrigins)
	}
	if cfg.SessionMaxAge != 2*time.Hour {
		t.Fatalf("unexpected max age: %v", cfg.SessionMaxAge)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("empty env value should not override, got %v", cfg.SweepInterval)
	}
	if cfg.LogLevel != "debug" || !cfg.LogPretty {
		t.Fatalf("unexpected logging: %q pretty=%v", cfg.LogLevel, cfg.LogPretty)
	}
	// Undefined keys keep their defaults.
	if cfg.MaxMessagesPerSecond != 50 {
		t.Fatalf("unexpected rate: %d", cfg.MaxMessagesPerSecond)
	}
}

func TestAuditCanBeDisabled(t *testing.T) {
	cfg, err := LoadFrom("", envLookup(map[string]string{"DB_PATH": "OFF"}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AuditEnabled() {
		t.Fatal("expected audit disabled")
	}
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "non numeric port", env: map[string]string{"PORT": "http"}, want: "parse PORT"},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}, want: "out of range"},
		{name: "bad duration", env: map[string]string{"SESSION_MAX_AGE": "a day"}, want: "parse SESSION_MAX_AGE"},
		{name: "zero sweep", env: map[string]string{"SWEEP_INTERVAL": "0s"}, want: "sweep interval"},
		{name: "negative rate", env: map[string]string{"MAX_MESSAGES_PER_SECOND": "-1"}, want: "messages per second"},
		{name: "bad bool", env: map[string]string{"LOG_PRETTY": "sometimes"}, want: "parse LOG_PRETTY"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom("", envLookup(tc.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadFromBadFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"), envLookup(nil)); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("bad duration in file", func(t *testing.T) {
		path := writeConfigFile(t, `shutdown_timeout = "soon"`)
		_, err := LoadFrom(path, envLookup(nil))
		if err == nil || !strings.Contains(err.Error(), "shutdown_timeout") {
			t.Fatalf("expected shutdown_timeout error, got %v", err)
		}
	})
}
