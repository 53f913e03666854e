package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(newFileBackend(writeTempConfig(t, "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendSQLite)
	}
	if cfg.Storage.RedisPrefix != "idiolect" {
		t.Errorf("Storage.RedisPrefix = %q, want idiolect", cfg.Storage.RedisPrefix)
	}
	if cfg.Style.MaxMinedRunes != 4000 {
		t.Errorf("Style.MaxMinedRunes = %d, want 4000", cfg.Style.MaxMinedRunes)
	}
	if !cfg.Worker.Enabled {
		t.Error("Worker.Enabled = false, want true")
	}
	if cfg.Worker.PollInterval != 500*time.Millisecond {
		t.Errorf("Worker.PollInterval = %v, want 500ms", cfg.Worker.PollInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestFileValues(t *testing.T) {
	path := writeTempConfig(t, `{
  "server.port": 5200,
  "storage.backend": "redis",
  "storage.redis_addr": "cache:6379",
  "worker.enabled": "false",
  "worker.poll_interval": "2s",
  "style.max_mined_runes": 100
}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5200 {
		t.Errorf("Server.Port = %d, want 5200", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendRedis || cfg.Storage.RedisAddr != "cache:6379" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Worker.Enabled {
		t.Error("Worker.Enabled = true, want false")
	}
	if cfg.Worker.PollInterval != 2*time.Second {
		t.Errorf("Worker.PollInterval = %v, want 2s", cfg.Worker.PollInterval)
	}
	if cfg.Style.MaxMinedRunes != 100 {
		t.Errorf("Style.MaxMinedRunes = %d, want 100", cfg.Style.MaxMinedRunes)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `{"server.port": 5200, "log.level": "warn"}`)

	t.Setenv("IDIOLECT_SERVER_PORT", "6300")
	t.Setenv("IDIOLECT_LOG_LEVEL", "debug")
	t.Setenv("IDIOLECT_API_TOKEN", "env-token")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6300 {
		t.Errorf("Server.Port = %d, want 6300", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("API.Token = %q, want env-token", cfg.API.Token)
	}
}

func TestEnvOverride_InvalidValueKeepsDefault(t *testing.T) {
	t.Setenv("IDIOLECT_WORKER_POLL_INTERVAL", "soon")

	cfg, err := loadWith(newFileBackend(writeTempConfig(t, "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Worker.PollInterval != 500*time.Millisecond {
		t.Errorf("Worker.PollInterval = %v, want default", cfg.Worker.PollInterval)
	}
}

func TestSecretNotReadFromFile(t *testing.T) {
	path := writeTempConfig(t, `{"api.token": "file-token"}`)
	t.Setenv("IDIOLECT_API_TOKEN", "")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.Token != "" {
		t.Errorf("API.Token = %q, want empty", cfg.API.Token)
	}
}

func TestCorruptFileUsesDefaults(t *testing.T) {
	cfg, err := loadWith(newFileBackend(writeTempConfig(t, "{not json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"port out of range", `{"server.port": 70000}`, "server.port"},
		{"unknown backend", `{"storage.backend": "etcd"}`, "storage.backend"},
		{"redis without addr", `{"storage.backend": "redis", "storage.redis_addr": ""}`, ""},
		{"negative mining cap", `{"style.max_mined_runes": -1}`, "max_mined_runes"},
		{"zero poll interval", `{"worker.poll_interval": "0s"}`, "poll_interval"},
		{"fractional port", `{"server.port": 4100.5}`, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWith(newFileBackend(writeTempConfig(t, tt.content)))
			if tt.wantErr == "" {
				// An empty string value is skipped, so the default address stays.
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	path := writeTempConfig(t, "")
	b := newFileBackend(path)

	if err := setKeyWith(b, "server.port", "4200"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if err := setKeyWith(b, "worker.enabled", "no"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if err := setKeyWith(b, "worker.enabled", "false"); err != nil {
		t.Fatalf("set worker.enabled: %v", err)
	}
	if err := setKeyWith(b, "worker.poll_interval", "1m"); err != nil {
		t.Fatalf("set poll interval: %v", err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.Worker.Enabled {
		t.Error("Worker.Enabled = true, want false")
	}
	if cfg.Worker.PollInterval != time.Minute {
		t.Errorf("Worker.PollInterval = %v, want 1m", cfg.Worker.PollInterval)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	b := newFileBackend(writeTempConfig(t, ""))

	if err := setKeyWith(b, "api.token", "x"); err == nil || !strings.Contains(err.Error(), "IDIOLECT_API_TOKEN") {
		t.Errorf("secret key error = %v", err)
	}
	if err := setKeyWith(b, "nope.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.API.Token = "hidden"

	infos := ShowAll(cfg)
	if len(infos) != len(ValidKeys()) {
		t.Errorf("ShowAll returned %d keys, ValidKeys %d", len(infos), len(ValidKeys()))
	}
	for _, info := range infos {
		if info.Key == "api.token" || info.Value == "hidden" {
			t.Errorf("secret leaked: %+v", info)
		}
	}
}

func TestEnsureAPIToken(t *testing.T) {
	cfg := defaults()
	cfg.Storage.DataDir = t.TempDir()

	first, err := EnsureAPIToken(cfg)
	if err != nil {
		t.Fatalf("EnsureAPIToken: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}

	info, err := os.Stat(filepath.Join(cfg.Storage.DataDir, tokenFileName))
	if err != nil {
		t.Fatalf("token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}

	second, err := EnsureAPIToken(cfg)
	if err != nil {
		t.Fatalf("EnsureAPIToken second: %v", err)
	}
	if second != first {
		t.Error("token changed between calls")
	}

	cfg.API.Token = "explicit"
	if tok, _ := EnsureAPIToken(cfg); tok != "explicit" {
		t.Errorf("token = %q, want explicit", tok)
	}
}
