package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orchestrator-core.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  anthropic:
    enabled: true
    models: ["claude-3-5-sonnet"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("Server.Port = %d, want default 8443", cfg.Server.Port)
	}
	if cfg.Auth.MaxFailedLogin != 5 {
		t.Errorf("Auth.MaxFailedLogin = %d, want 5", cfg.Auth.MaxFailedLogin)
	}
	if cfg.Auth.LockoutWindow != 15*time.Minute {
		t.Errorf("Auth.LockoutWindow = %v, want 15m", cfg.Auth.LockoutWindow)
	}
	if !cfg.Providers["anthropic"].Enabled {
		t.Error("expected anthropic provider enabled")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ORCH_AUDIT_PATH", "/tmp/custom-audit.db")
	path := writeConfig(t, `
audit:
  database_path: ${ORCH_AUDIT_PATH}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Audit.DatabasePath != "/tmp/custom-audit.db" {
		t.Errorf("Audit.DatabasePath = %q, want expanded env value", cfg.Audit.DatabasePath)
	}
}

func TestLoad_ExplicitValuesOverrideDefaults(t *testing.T) {
	path := writeConfig(t, `
cache:
  max_entries: 50
  determinism_threshold: 0.05
auth:
  max_failed_login: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.MaxEntries != 50 {
		t.Errorf("Cache.MaxEntries = %d, want 50", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.DeterminismThreshold != 0.05 {
		t.Errorf("Cache.DeterminismThreshold = %v, want 0.05", cfg.Cache.DeterminismThreshold)
	}
	if cfg.Auth.MaxFailedLogin != 10 {
		t.Errorf("Auth.MaxFailedLogin = %d, want 10", cfg.Auth.MaxFailedLogin)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
