package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/config"
)

// Authentication methods
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
	MaxRows                int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromConnectionConfig converts a generic connection config. Azure AD
// settings come from Options (auth_method, tenant_id, client_id,
// client_secret); a client_id without an explicit auth_method selects
// service principal authentication.
func FromConnectionConfig(c datasource.ConnectionConfig) (*Config, error) {
	opts := c.Options
	cfg := &Config{
		Host:                   c.Host,
		Port:                   c.Port,
		Database:               c.Database,
		AuthMethod:             opts["auth_method"],
		Username:               c.User,
		Password:               c.Password,
		TenantID:               opts["tenant_id"],
		ClientID:               opts["client_id"],
		ClientSecret:           opts["client_secret"],
		Encrypt:                c.SSLMode != "disable",
		TrustServerCertificate: opts["trust_server_certificate"] == "true",
		ConnectionTimeout:      DefaultConnectionTimeout(),
		MaxRows:                c.RowLimit(),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if v := opts["connection_timeout"]; v != "" {
		timeout, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid connection_timeout %q", v)
		}
		cfg.ConnectionTimeout = timeout
	}
	if cfg.AuthMethod == "" {
		cfg.AuthMethod = AuthSQL
		if cfg.ClientID != "" {
			cfg.AuthMethod = AuthServicePrincipal
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", c.AuthMethod)
	}
	return nil
}

// connectionString returns the driver name and sqlserver:// URL for cfg.
// Service principals use the azuresql driver with fedauth.
func connectionString(cfg *Config) (string, string) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("encrypt", strconv.FormatBool(cfg.Encrypt))
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(cfg.ConnectionTimeout))
	}

	u := url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), cfg.Port),
	}

	driver := "sqlserver"
	if cfg.AuthMethod == AuthServicePrincipal {
		driver = "azuresql"
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)
	} else {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	u.RawQuery = query.Encode()
	return driver, u.String()
}
