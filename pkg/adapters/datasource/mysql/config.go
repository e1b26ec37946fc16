package mysql

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbintel/pkg/config"
)

// DefaultPort is the standard MySQL port.
const DefaultPort = 3306

const dialTimeout = 10 * time.Second

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "false", "true", "skip-verify", "preferred"
	MaxRows  int
}

// FromConnectionConfig validates and converts a generic connection config.
// SSLMode maps onto the driver's tls parameter: disable becomes false and
// require becomes true.
func FromConnectionConfig(c datasource.ConnectionConfig) (*Config, error) {
	cfg := &Config{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
		MaxRows:  c.RowLimit(),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	switch c.SSLMode {
	case "", "prefer", "preferred":
		cfg.TLS = "preferred"
	case "disable", "false":
		cfg.TLS = "false"
	case "require", "true", "verify-full":
		cfg.TLS = "true"
	case "skip-verify", "verify-ca":
		cfg.TLS = "skip-verify"
	default:
		return nil, fmt.Errorf("unsupported ssl_mode %q", c.SSLMode)
	}

	switch {
	case cfg.Host == "":
		return nil, fmt.Errorf("host is required")
	case cfg.User == "":
		return nil, fmt.Errorf("user is required")
	case cfg.Database == "":
		return nil, fmt.Errorf("database is required")
	}
	return cfg, nil
}

// driverConfig builds the go-sql-driver configuration. Time columns are
// parsed into time.Time values.
func driverConfig(cfg *Config) *mysql.Config {
	dc := mysql.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(cfg.Port))
	dc.DBName = cfg.Database
	dc.TLSConfig = cfg.TLS
	dc.ParseTime = true
	dc.Timeout = dialTimeout
	return dc
}
