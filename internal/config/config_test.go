package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected default port %d", cfg.Server.Port)
	}
	if cfg.Engine.ExecTimeout.Std() != 30*time.Minute {
		t.Fatalf("unexpected default exec timeout %s", cfg.Engine.ExecTimeout.Std())
	}
}

func TestLoadFromPathParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
engine:
  exec_timeout: 90s
  stale_task_age: 45m
auth:
  token_ttl: 12h
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port not applied: %d", cfg.Server.Port)
	}
	if cfg.Engine.ExecTimeout.Std() != 90*time.Second {
		t.Fatalf("exec timeout not parsed: %s", cfg.Engine.ExecTimeout.Std())
	}
	if cfg.Engine.StaleTaskAge.Std() != 45*time.Minute {
		t.Fatalf("stale age not parsed: %s", cfg.Engine.StaleTaskAge.Std())
	}
	if cfg.Auth.TokenTTL.Std() != 12*time.Hour {
		t.Fatalf("token ttl not parsed: %s", cfg.Auth.TokenTTL.Std())
	}
	// Values the file does not mention keep their defaults.
	if cfg.Engine.ExecutablePath != "/usr/local/bin/skyeye" {
		t.Fatalf("default executable path lost: %s", cfg.Engine.ExecutablePath)
	}
}

func TestLoadFromPathRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 99999\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected port validation error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://env/db")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("SKYEYE_PATH", "/opt/skyeye")
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "postgres://env/db" {
		t.Fatalf("dsn override lost: %s", cfg.Database.DSN)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Fatal("jwt secret override lost")
	}
	if cfg.Engine.ExecutablePath != "/opt/skyeye" {
		t.Fatalf("engine path override lost: %s", cfg.Engine.ExecutablePath)
	}
	if cfg.Server.Port != 9191 {
		t.Fatalf("port override lost: %d", cfg.Server.Port)
	}
	if cfg.LLM.APIKeys["openai"] != "sk-test" {
		t.Fatal("api key override lost")
	}
}
