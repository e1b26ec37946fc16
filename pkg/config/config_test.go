package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  transport: "http"
  port: "3443"
  env: "test"
cache:
  dir: "/var/cache/dbintel"
databases:
  - id: "shop"
    type: "postgres"
    host: "db.example.com"
    port: 5432
    user: "reader"
    database: "shop"
    password_env: "SHOP_PASSWORD"
`)

	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load(path, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify env vars override YAML
	if cfg.Server.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Server.Port)
	}
	if cfg.Server.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Server.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}

	// Verify YAML values are used where no env var is set
	if cfg.Server.Transport != TransportHTTP {
		t.Errorf("expected Transport=http (from yaml), got %s", cfg.Server.Transport)
	}
	if cfg.Cache.Dir != "/var/cache/dbintel" {
		t.Errorf("expected Cache.Dir from yaml, got %s", cfg.Cache.Dir)
	}
	if len(cfg.Databases) != 1 || cfg.Databases[0].Host != "db.example.com" {
		t.Fatalf("expected one database from yaml, got %+v", cfg.Databases)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "databases: []\n")

	for _, key := range []string{"MCP_TRANSPORT", "PORT", "ENVIRONMENT", "LOG_LEVEL", "CACHE_DIR", "CACHE_TTL_MINUTES",
		"QUERY_HISTORY_SIZE", "SLOW_QUERY_THRESHOLD_MS", "QUERY_TIMEOUT_MS", "QUERY_MAX_ROWS", "DATASOURCE_CONNECTION_TTL_MINUTES"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path, "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Transport != TransportStdio {
		t.Errorf("expected default transport stdio, got %s", cfg.Server.Transport)
	}
	if cfg.Server.Addr() != "127.0.0.1:3443" {
		t.Errorf("expected default addr 127.0.0.1:3443, got %s", cfg.Server.Addr())
	}
	if cfg.Cache.DefaultTTLMinutes != 60 {
		t.Errorf("expected default cache TTL 60, got %d", cfg.Cache.DefaultTTLMinutes)
	}
	if cfg.Query.HistorySize != 100 {
		t.Errorf("expected default history size 100, got %d", cfg.Query.HistorySize)
	}
	if cfg.Query.SlowQueryThresholdMs != 1000 {
		t.Errorf("expected default slow threshold 1000, got %v", cfg.Query.SlowQueryThresholdMs)
	}
	if cfg.Query.DefaultTimeout() != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Query.DefaultTimeout())
	}
	if cfg.Query.MaxRows != 1000 {
		t.Errorf("expected default max rows 1000, got %d", cfg.Query.MaxRows)
	}
	if cfg.Connections.TTLMinutes != 5 {
		t.Errorf("expected default connection TTL 5, got %d", cfg.Connections.TTLMinutes)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "dev")
	if !errors.Is(err, apperrors.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestLoad_MissingDefaultFileUsesEnvironment(t *testing.T) {
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	t.Setenv("CONFIG_PATH", "")
	t.Setenv("MCP_TRANSPORT", "http")

	cfg, err := Load("", "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Transport != TransportHTTP {
		t.Errorf("expected transport from env, got %s", cfg.Server.Transport)
	}
	if len(cfg.Databases) != 0 {
		t.Errorf("expected no databases, got %d", len(cfg.Databases))
	}
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	path := writeConfig(t, "server:\n  name: \"from-config-path\"\n")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_NAME", "")
	os.Unsetenv("SERVER_NAME")

	cfg, err := Load("", "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Name != "from-config-path" {
		t.Errorf("expected name from CONFIG_PATH file, got %s", cfg.Server.Name)
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Transport: TransportStdio},
		Cache:  CacheConfig{Dir: "/tmp/cache", DefaultTTLMinutes: 60},
		Query:  QueryConfig{HistorySize: 100, SlowQueryThresholdMs: 1000},
		Databases: []DatabaseConfig{
			{ID: "shop", Type: "postgres"},
			{ID: "local", Type: "sqlite", Path: ":memory:"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"engine type is case insensitive", func(c *Config) { c.Databases[0].Type = "Postgres" }, ""},
		{"bad transport", func(c *Config) { c.Server.Transport = "grpc" }, "server.transport"},
		{"empty cache dir", func(c *Config) { c.Cache.Dir = "" }, "cache.dir"},
		{"zero ttl", func(c *Config) { c.Cache.DefaultTTLMinutes = 0 }, "default_ttl_minutes"},
		{"zero history", func(c *Config) { c.Query.HistorySize = 0 }, "history_size"},
		{"zero slow threshold", func(c *Config) { c.Query.SlowQueryThresholdMs = 0 }, "slow_query_threshold_ms"},
		{"empty id", func(c *Config) { c.Databases[1].ID = " " }, "id is required"},
		{"duplicate id", func(c *Config) { c.Databases[1].ID = "shop" }, "duplicate id"},
		{"unsupported type", func(c *Config) { c.Databases[1].Type = "oracle" }, "unsupported type"},
		{"negative cache ttl", func(c *Config) { c.Databases[0].CacheTTLMinutes = -1 }, "cache_ttl_minutes"},
		{"cert without key", func(c *Config) { c.Server.TLSCertPath = "/tmp/cert.pem" }, "must be provided together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !errors.Is(err, apperrors.ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_TLSFilesMustExist(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLSCertPath = "/nonexistent/cert.pem"
	cfg.Server.TLSKeyPath = "/nonexistent/key.pem"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "TLS cert file does not exist") {
		t.Fatalf("expected missing cert error, got %v", err)
	}
}

func TestDatabaseConfig_Connection(t *testing.T) {
	t.Setenv("SHOP_DB_PASSWORD", "s3cret")

	db := DatabaseConfig{
		ID:          "shop",
		Type:        "POSTGRES",
		Host:        "db.example.com",
		Port:        5432,
		User:        "reader",
		Database:    "shop",
		SSLMode:     "require",
		PasswordEnv: "SHOP_DB_PASSWORD",
	}

	conn := db.Connection(500)
	if conn.Password != "s3cret" {
		t.Errorf("expected password from env, got %q", conn.Password)
	}
	if conn.Type != "postgres" {
		t.Errorf("expected lowercased type, got %s", conn.Type)
	}
	if conn.MaxRows != 500 {
		t.Errorf("expected fallback max rows 500, got %d", conn.MaxRows)
	}

	db.MaxRows = 20
	db.PasswordEnv = ""
	conn = db.Connection(500)
	if conn.MaxRows != 20 {
		t.Errorf("expected per-database max rows 20, got %d", conn.MaxRows)
	}
	if conn.Password != "" {
		t.Errorf("expected no password without password_env, got %q", conn.Password)
	}
}

func TestIntrospectionConfig_Options(t *testing.T) {
	opts := IntrospectionConfig{MaxTables: 50, ExcludeSchemas: []string{"pg_catalog"}}.Options()
	if !opts.IncludeViews {
		t.Error("expected views included by default")
	}
	if opts.MaxTables != 50 || len(opts.ExcludeSchemas) != 1 {
		t.Errorf("unexpected options %+v", opts)
	}

	off := false
	opts = IntrospectionConfig{IncludeViews: &off}.Options()
	if opts.IncludeViews {
		t.Error("expected views excluded when include_views is false")
	}
}
