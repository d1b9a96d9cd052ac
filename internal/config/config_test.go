package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.Storage != "sqlite3" {
		t.Fatalf("expected sqlite3 storage, got %s", cfg.BasicConfig.Storage)
	}
	if p, ok := cfg.Provider("gemini"); !ok || p.Model != DefaultModel {
		t.Fatalf("unexpected gemini provider: %#v", p)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"basic_config": {"storage": "sqlite3", "workspace": "hr", "max_workers": 2},
		"databases": {"sqlite3": {"dsn": "data/test.db"}}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ARBEJDSRET_STORAGE", "memory")
	t.Setenv("ARBEJDSRET_MODEL", "gemini-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.Storage != "memory" {
		t.Fatalf("env override ignored: %s", cfg.BasicConfig.Storage)
	}
	if cfg.BasicConfig.Workspace != "hr" || cfg.BasicConfig.MaxWorkers != 2 {
		t.Fatalf("file values not applied: %#v", cfg.BasicConfig)
	}
	if got := cfg.Databases["sqlite3"].DSN; got != filepath.Join(dir, "data/test.db") {
		t.Fatalf("relative dsn not resolved: %s", got)
	}
	if cfg.Providers["gemini"].Model != "gemini-test" {
		t.Fatalf("model override ignored")
	}
	if cfg.Providers["gemini"].APIKeyEnv != "GEMINI_API_KEY" {
		t.Fatalf("default api key env missing")
	}
}

func TestValidateRejectsUnknownStorage(t *testing.T) {
	cfg := Default()
	cfg.BasicConfig.Storage = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestCredentialPrefersFirstSetVariable(t *testing.T) {
	t.Setenv("TEST_KEY_A", "")
	t.Setenv("TEST_KEY_B", "  secret ")
	got, ok := Credential("TEST_KEY_A", "TEST_KEY_B")
	if !ok || got != "secret" {
		t.Fatalf("unexpected credential %q %v", got, ok)
	}
	if _, ok := Credential("TEST_KEY_A"); ok {
		t.Fatalf("empty variable should not count")
	}
}
