// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "taskd.yaml", `
server:
  grpc_addr: "0.0.0.0:50051"
  http_addr: "0.0.0.0:8080"
  cors_origins:
    - "https://app.example.com"

database:
  path: "./tasks.db"

auth:
  jwt_secret: "a-very-long-secret-for-testing-only!!"
  token_ttl: "2h"
  bcrypt_cost: 12

idempotency:
  ttl: "10m"
  max_entries: 500

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("expected grpc_addr '0.0.0.0:50051', got %q", cfg.Server.GRPCAddr)
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("expected http_addr '0.0.0.0:8080', got %q", cfg.Server.HTTPAddr)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("unexpected cors_origins: %v", cfg.Server.CORSOrigins)
	}
	if cfg.Database.Path != "./tasks.db" {
		t.Errorf("expected database path './tasks.db', got %q", cfg.Database.Path)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("expected token_ttl 2h, got %v", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.BcryptCost != 12 {
		t.Errorf("expected bcrypt_cost 12, got %d", cfg.Auth.BcryptCost)
	}
	if cfg.Idempotency.TTL != 10*time.Minute {
		t.Errorf("expected idempotency ttl 10m, got %v", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.MaxEntries != 500 {
		t.Errorf("expected max_entries 500, got %d", cfg.Idempotency.MaxEntries)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "taskd.toml", `
[server]
grpc_addr = "127.0.0.1:50051"
http_addr = "127.0.0.1:8080"

[database]
path = "/var/lib/taskd/tasks.db"

[auth]
jwt_secret = "a-very-long-secret-for-testing-only!!"
token_ttl = "30m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("expected http_addr '127.0.0.1:8080', got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "/var/lib/taskd/tasks.db" {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.Auth.TokenTTL != 30*time.Minute {
		t.Errorf("expected token_ttl 30m, got %v", cfg.Auth.TokenTTL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "taskd.yaml", `
server:
  grpc_addr: ":50051"
  http_addr: ":8080"
database:
  path: ":memory:"
auth:
  jwt_secret: "x"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("expected default token_ttl %v, got %v", DefaultTokenTTL, cfg.Auth.TokenTTL)
	}
	if cfg.Idempotency.TTL != DefaultIdempotencyTTL {
		t.Errorf("expected default idempotency ttl, got %v", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.MaxEntries != DefaultMaxIdempotency {
		t.Errorf("expected default max_entries, got %d", cfg.Idempotency.MaxEntries)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_TASKD_SECRET", "expanded-secret-value")
	t.Setenv("TEST_TASKD_DB", "/tmp/expanded.db")

	path := writeConfig(t, "taskd.yaml", `
server:
  grpc_addr: ":50051"
  http_addr: ":8080"
database:
  path: "${TEST_TASKD_DB}"
auth:
  jwt_secret: "${TEST_TASKD_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.JWTSecret != "expanded-secret-value" {
		t.Errorf("expected expanded secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/tmp/expanded.db" {
		t.Errorf("expected expanded db path, got %q", cfg.Database.Path)
	}
}

func TestLoad_MissingEnvVarFailsValidation(t *testing.T) {
	path := writeConfig(t, "taskd.yaml", `
server:
  grpc_addr: ":50051"
  http_addr: ":8080"
database:
  path: ":memory:"
auth:
  jwt_secret: "${TEST_TASKD_UNSET_VARIABLE}"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("expected jwt_secret validation error, got %v", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "taskd.yaml", `
server:
  grpc_addr: ":50051"
  http_addr: ":8080"
database:
  path: ":memory:"
auth:
  jwt_secret: "x"
  token_ttl: "four hours"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "token_ttl") {
		t.Errorf("expected token_ttl parse error, got %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/taskd.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{GRPCAddr: ":50051", HTTPAddr: ":8080"},
			Database: DatabaseConfig{Path: ":memory:"},
			Auth:     AuthConfig{JWTSecret: "x"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing grpc addr", mutate: func(c *Config) { c.Server.GRPCAddr = "" }, wantErr: "grpc_addr"},
		{name: "missing http addr", mutate: func(c *Config) { c.Server.HTTPAddr = "" }, wantErr: "http_addr"},
		{
			name: "tailscale replaces addresses",
			mutate: func(c *Config) {
				c.Server = ServerConfig{}
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "taskd"}
			},
		},
		{name: "tailscale needs hostname", mutate: func(c *Config) { c.Tailscale.Enabled = true }, wantErr: "hostname"},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: "jwt_secret"},
		{name: "bad bcrypt cost", mutate: func(c *Config) { c.Auth.BcryptCost = 2 }, wantErr: "bcrypt_cost"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("TASKD_CONFIG", "/etc/taskd/custom.toml")
	if got := DefaultPath(); got != "/etc/taskd/custom.toml" {
		t.Errorf("expected TASKD_CONFIG to win, got %q", got)
	}

	t.Setenv("TASKD_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "taskd", "taskd.yaml") {
		t.Errorf("unexpected XDG path %q", got)
	}
}

func TestDatabasePath_EnvOverride(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Path: "configured.db"}}

	t.Setenv("TASKD_DB_PATH", "")
	if got := cfg.DatabasePath(); got != "configured.db" {
		t.Errorf("expected configured path, got %q", got)
	}

	t.Setenv("TASKD_DB_PATH", "/override.db")
	if got := cfg.DatabasePath(); got != "/override.db" {
		t.Errorf("expected override, got %q", got)
	}
}
