package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvConfigPath, "API_ADDR", "DATABASE_URL", "REDIS_URL", "BLOCKWIKI_LOCK_BACKEND", "BLOCKWIKI_LOCK_TTL", "BLOCKWIKI_LOCK_HEARTBEAT", "BLOCKWIKI_LOG_LEVEL", "BLOCKWIKI_LOG_FORMAT", "BLOCKWIKI_REPOS_DIR"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blockwiki.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" || cfg.Lock.Backend != "memory" || cfg.Lock.TTL != 2*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected no database by default, got %q", cfg.DatabaseURL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
addr = ":9000"
database_url = "postgres://file"

[lock]
backend = "redis"
redis_url = "redis://file:6379/0"
ttl = "90s"

[log]
level = "debug"
`)
	clearEnv(t)
	t.Setenv("API_ADDR", ":9100")
	t.Setenv("BLOCKWIKI_LOCK_HEARTBEAT", "15")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("expected env to win over file, got %q", cfg.Addr)
	}
	if cfg.DatabaseURL != "postgres://file" {
		t.Fatalf("expected file value, got %q", cfg.DatabaseURL)
	}
	if cfg.Lock.Backend != "redis" || cfg.Lock.RedisURL != "redis://file:6379/0" {
		t.Fatalf("unexpected lock config: %+v", cfg.Lock)
	}
	if cfg.Lock.TTL != 90*time.Second || cfg.Lock.Heartbeat != 15*time.Second {
		t.Fatalf("unexpected durations: ttl=%v heartbeat=%v", cfg.Lock.TTL, cfg.Lock.Heartbeat)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("expected file level with default format, got %+v", cfg.Log)
	}
}

func TestLoadUsesEnvConfigPath(t *testing.T) {
	path := writeConfig(t, `repos_dir = "/srv/repos"`)
	clearEnv(t)
	t.Setenv(EnvConfigPath, path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ReposDir != "/srv/repos" {
		t.Fatalf("expected repos dir from file, got %q", cfg.ReposDir)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `adr = ":1"`)
	clearEnv(t)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "adr") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Lock.Backend = "etcd" }},
		{"redis without url", func(c *Config) { c.Lock.Backend = "redis" }},
		{"file without path", func(c *Config) { c.Lock.Backend = "file"; c.Lock.FilePath = "" }},
		{"zero ttl", func(c *Config) { c.Lock.TTL = 0 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestGetenvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("BLOCKWIKI_TEST_DURATION", "soon")
	if got := getenvDuration("BLOCKWIKI_TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}
