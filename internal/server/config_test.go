package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSetConfigSanitizesZeroValues(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{})
	cfg := currentConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.DatabasePath != "relaychat.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 10 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("DATABASE_PATH", "/tmp/relay-test.db")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != ":9999" || cfg.DatabasePath != "/tmp/relay-test.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if diff := cmp.Diff(want, cfg.AllowedOrigins); diff != "" {
		t.Errorf("AllowedOrigins (-want +got):\n%s", diff)
	}
	if cfg.MaxMessageSize != 1024 || cfg.RateLimit.Burst != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RefillInterval = %v", cfg.RateLimit.RefillInterval)
	}
}

func TestLoadConfigInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxMessageSize != 4096 || cfg.RateLimit.Burst != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	data := []byte(`port: ":7000"
database_path: chat.db
allowed_origins:
  - https://chat.example.com
max_message_size: 2048
rate_limit:
  burst: 20
  refill_interval: 500ms
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	// Env vars still win over the file.
	t.Setenv("SERVER_PORT", ":7001")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != ":7001" {
		t.Errorf("Port = %q, want env override :7001", cfg.Port)
	}
	if cfg.DatabasePath != "chat.db" || cfg.MaxMessageSize != 2048 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RateLimit.Burst != 20 || cfg.RateLimit.RefillInterval != 500*time.Millisecond {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if diff := cmp.Diff([]string{"https://chat.example.com"}, cfg.AllowedOrigins); diff != "" {
		t.Errorf("AllowedOrigins (-want +got):\n%s", diff)
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte("port: [broken"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig accepted malformed YAML")
	}
}
