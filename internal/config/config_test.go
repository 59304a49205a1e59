package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost/registry"
redisAddr: "localhost:6379"
loginRateLimitPerMinute: 5
registerRateLimitPerMinute: 3
intakeRateLimitPerMinute: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Fatalf("driver should default to postgres, got %q", cfg.DatabaseDriver)
	}
	if cfg.LoginRateLimitPerMinute != 5 || cfg.RegisterRateLimitPerMinute != 3 || cfg.IntakeRateLimitPerMinute != 10 {
		t.Fatalf("unexpected rate limits: %+v", cfg)
	}

	t.Setenv("DATABASE_URL", "postgres://db.internal/registry")
	t.Setenv("LOGIN_RATE_LIMIT_PER_MINUTE", "7")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if cfg.DatabaseURL != "postgres://db.internal/registry" {
		t.Fatalf("DATABASE_URL override not applied: %q", cfg.DatabaseURL)
	}
	if cfg.LoginRateLimitPerMinute != 7 {
		t.Fatalf("rate limit override not applied: %d", cfg.LoginRateLimitPerMinute)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"missing port", `databaseURL: "x"`},
		{"missing database url", `port: "8080"`},
		{"bad driver", "port: \"8080\"\ndatabaseURL: \"x\"\ndatabaseDriver: \"oracle\""},
		{"negative rate limit", "port: \"8080\"\ndatabaseURL: \"x\"\nloginRateLimitPerMinute: -1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.contents)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
