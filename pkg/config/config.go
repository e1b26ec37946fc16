package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// DefaultPath is read when neither the caller nor CONFIG_PATH names a file.
const DefaultPath = "config.yaml"

// Transports accepted by server.transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all configuration for ekaya-dbintel.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Database passwords are never read from YAML; password_env names the variable holding one.
type Config struct {
	Version string `yaml:"-"` // Set at load time, not from config

	Server      ServerConfig      `yaml:"server"`
	Cache       CacheConfig       `yaml:"cache"`
	Query       QueryConfig       `yaml:"query"`
	Connections ConnectionsConfig `yaml:"connections"`
	Databases   []DatabaseConfig  `yaml:"databases"`
}

// ServerConfig selects the transport and logging.
type ServerConfig struct {
	Name      string `yaml:"name" env:"SERVER_NAME" env-default:"ekaya-dbintel"`
	Transport string `yaml:"transport" env:"MCP_TRANSPORT" env-default:"stdio"`
	BindAddr  string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port      string `yaml:"port" env:"PORT" env-default:"3443"`
	Env       string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// TLS configuration for the http transport (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return s.BindAddr + ":" + s.Port
}

// CacheConfig locates the durable schema cache.
type CacheConfig struct {
	Dir               string `yaml:"dir" env:"CACHE_DIR" env-default:".cache/schemas"`
	DefaultTTLMinutes int    `yaml:"default_ttl_minutes" env:"CACHE_TTL_MINUTES" env-default:"60"`
}

// QueryConfig bounds query execution and tracking.
type QueryConfig struct {
	HistorySize          int     `yaml:"history_size" env:"QUERY_HISTORY_SIZE" env-default:"100"`
	SlowQueryThresholdMs float64 `yaml:"slow_query_threshold_ms" env:"SLOW_QUERY_THRESHOLD_MS" env-default:"1000"`
	DefaultTimeoutMs     int     `yaml:"default_timeout_ms" env:"QUERY_TIMEOUT_MS" env-default:"30000"`
	MaxRows              int     `yaml:"max_rows" env:"QUERY_MAX_ROWS" env-default:"1000"`
}

// DefaultTimeout returns DefaultTimeoutMs as a duration.
func (q QueryConfig) DefaultTimeout() time.Duration {
	return time.Duration(q.DefaultTimeoutMs) * time.Millisecond
}

// ConnectionsConfig holds datasource connection management settings.
type ConnectionsConfig struct {
	// TTLMinutes is how long idle datasource connections are kept alive.
	TTLMinutes int `yaml:"ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
}

// DatabaseConfig describes one database exposed to clients.
type DatabaseConfig struct {
	ID       string            `yaml:"id"`
	Type     string            `yaml:"type"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Database string            `yaml:"database"`
	SSLMode  string            `yaml:"ssl_mode"`
	Path     string            `yaml:"path"`
	Options  map[string]string `yaml:"options"`
	MaxRows  int               `yaml:"max_rows"`

	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`

	// CacheTTLMinutes overrides cache.default_ttl_minutes for this database.
	CacheTTLMinutes int                 `yaml:"cache_ttl_minutes"`
	Introspection   IntrospectionConfig `yaml:"introspection"`
}

// IntrospectionConfig maps to models.IntrospectionOptions. IncludeViews
// defaults to true when omitted.
type IntrospectionConfig struct {
	IncludeViews    *bool    `yaml:"include_views"`
	IncludeRoutines bool     `yaml:"include_routines"`
	MaxTables       int      `yaml:"max_tables"`
	IncludeSchemas  []string `yaml:"include_schemas"`
	ExcludeSchemas  []string `yaml:"exclude_schemas"`
}

// Options converts to the adapter-facing form.
func (c IntrospectionConfig) Options() models.IntrospectionOptions {
	opts := models.DefaultIntrospectionOptions()
	if c.IncludeViews != nil {
		opts.IncludeViews = *c.IncludeViews
	}
	opts.IncludeRoutines = c.IncludeRoutines
	opts.MaxTables = c.MaxTables
	opts.IncludeSchemas = c.IncludeSchemas
	opts.ExcludeSchemas = c.ExcludeSchemas
	return opts
}

// Connection resolves the password from the environment and returns the
// adapter connection config. maxRows applies when the database sets none.
func (d DatabaseConfig) Connection(maxRows int) datasource.ConnectionConfig {
	rows := d.MaxRows
	if rows <= 0 {
		rows = maxRows
	}
	var password string
	if d.PasswordEnv != "" {
		password = os.Getenv(d.PasswordEnv)
	}
	return datasource.ConnectionConfig{
		ID:       d.ID,
		Type:     strings.ToLower(d.Type),
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: password,
		Database: d.Database,
		SSLMode:  d.SSLMode,
		Path:     d.Path,
		Options:  d.Options,
		MaxRows:  rows,
	}
}

var supportedTypes = []string{
	models.EngineTypePostgres,
	models.EngineTypeMySQL,
	models.EngineTypeSQLite,
	models.EngineTypeMSSQL,
}

// Load reads configuration from path with environment variable overrides.
// An empty path falls back to CONFIG_PATH, then config.yaml. A missing
// default file is not an error: defaults and environment apply.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath
	}

	// Load config from YAML file with environment variable overrides
	if _, statErr := os.Stat(path); statErr == nil || explicit {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", apperrors.ErrConfig, path, err)
		}
	} else if errors.Is(statErr, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read environment: %v", apperrors.ErrConfig, err)
		}
	} else {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfig, statErr)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values. Every failure wraps apperrors.ErrConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Server.Transport)
	}
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Cache.DefaultTTLMinutes <= 0 {
		return fmt.Errorf("cache.default_ttl_minutes must be positive")
	}
	if c.Query.HistorySize <= 0 {
		return fmt.Errorf("query.history_size must be positive")
	}
	if c.Query.SlowQueryThresholdMs <= 0 {
		return fmt.Errorf("query.slow_query_threshold_ms must be positive")
	}

	seen := make(map[string]bool, len(c.Databases))
	for i, db := range c.Databases {
		if strings.TrimSpace(db.ID) == "" {
			return fmt.Errorf("databases[%d]: id is required", i)
		}
		if seen[db.ID] {
			return fmt.Errorf("databases[%d]: duplicate id %q", i, db.ID)
		}
		seen[db.ID] = true
		if !isSupportedType(db.Type) {
			return fmt.Errorf("databases[%d] (%s): unsupported type %q (supported: %s)",
				i, db.ID, db.Type, strings.Join(supportedTypes, ", "))
		}
		if db.CacheTTLMinutes < 0 {
			return fmt.Errorf("databases[%d] (%s): cache_ttl_minutes cannot be negative", i, db.ID)
		}
	}
	return nil
}

func isSupportedType(t string) bool {
	for _, s := range supportedTypes {
		if strings.EqualFold(s, t) {
			return true
		}
	}
	return false
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.Server.TLSCertPath != ""
	keySet := c.Server.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.Server.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.Server.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}
