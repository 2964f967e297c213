package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPostgresBackend(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "test-token"
storage:
  backend: postgres
database:
  host: localhost
  port: "5432"
  user: bot
  name: ledger
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Name != "ledger" {
		t.Fatalf("database section not read: %+v", cfg.Database)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Fatalf("backend = %q, want %q", cfg.Storage.Backend, BackendPostgres)
	}
}

func TestNormalizePostgresRequiresHost(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Storage.Backend = BackendPostgres
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for missing database.host")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run_mode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.Storage.Backend != BackendXLSX || cfg.Storage.Dir != "user_data" {
		t.Fatalf("storage defaults not applied: %+v", cfg.Storage)
	}
	if cfg.Ledger.DuplicatePolicy != DuplicateOfferDelete {
		t.Fatalf("duplicate_policy = %q, want %q", cfg.Ledger.DuplicatePolicy, DuplicateOfferDelete)
	}
}
