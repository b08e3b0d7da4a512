package mysql

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// Config holds MySQL/GORM connection configuration for a document database
type Config struct {
	// Connection Settings
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Database string `json:"database" yaml:"database" mapstructure:"database"`
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`

	// Connection Pool Settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`

	// MySQL Specific Settings
	Collation string `json:"collation" yaml:"collation" mapstructure:"collation"` // Default: utf8mb4_unicode_ci
	TimeZone  string `json:"timezone" yaml:"timezone" mapstructure:"timezone"`    // Default: UTC

	// GORM Settings
	PrepareStmt bool   `json:"prepare_stmt" yaml:"prepare_stmt" mapstructure:"prepare_stmt"`
	LogLevel    string `json:"log_level" yaml:"log_level" mapstructure:"log_level"` // silent, error, warn, info

	// SSL Configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl" mapstructure:"ssl"`
}

// SSLConfig holds SSL/TLS configuration for MySQL
type SSLConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	CertFile   string `json:"cert_file" yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile    string `json:"key_file" yaml:"key_file" mapstructure:"key_file"`
	CAFile     string `json:"ca_file" yaml:"ca_file" mapstructure:"ca_file"`
	SkipVerify bool   `json:"skip_verify" yaml:"skip_verify" mapstructure:"skip_verify"` // Skip certificate verification (not recommended for production)
	ServerName string `json:"server_name" yaml:"server_name" mapstructure:"server_name"`
}

// DefaultConfig returns a local connection with sane pool settings
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            3306,
		Database:        "test",
		Username:        "root",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		Collation:       "utf8mb4_unicode_ci",
		TimeZone:        "UTC",
		PrepareStmt:     true,
		LogLevel:        "error",
	}
}

// Validate checks if the database configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Username == "" {
		return fmt.Errorf("database username is required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot be greater than max_open_conns")
	}

	if c.SSL.Enabled && !c.SSL.SkipVerify {
		if err := c.validateTLSFiles(); err != nil {
			return fmt.Errorf("TLS configuration error: %w", err)
		}
	}

	return nil
}

// validateTLSFiles validates that TLS certificate files exist and are readable
func (c *Config) validateTLSFiles() error {
	if c.SSL.CAFile != "" {
		if _, err := os.Stat(c.SSL.CAFile); err != nil {
			return fmt.Errorf("CA file not accessible: %w", err)
		}
	}

	if c.SSL.CertFile != "" || c.SSL.KeyFile != "" {
		// Both cert and key must be provided together
		if c.SSL.CertFile == "" || c.SSL.KeyFile == "" {
			return fmt.Errorf("both CertFile and KeyFile must be provided together")
		}
		if _, err := os.Stat(c.SSL.CertFile); err != nil {
			return fmt.Errorf("client certificate file not accessible: %w", err)
		}
		if _, err := os.Stat(c.SSL.KeyFile); err != nil {
			return fmt.Errorf("client key file not accessible: %w", err)
		}
	}

	return nil
}

// DSN returns the MySQL Data Source Name built with the official driver's config.
//
// ClientFoundRows makes UPDATE report matched rows, so replacing a document with
// identical content still counts as a match.
func (c *Config) DSN() (string, error) {
	cfg := mysqldriver.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.Collation = c.Collation
	cfg.Loc = parseLocation(c.TimeZone)
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	cfg.ClientFoundRows = true

	if c.SSL.Enabled {
		if c.SSL.SkipVerify {
			cfg.TLSConfig = "skip-verify"
		} else {
			name, err := c.registerTLS()
			if err != nil {
				return "", err
			}
			cfg.TLSConfig = name
		}
	}

	return cfg.FormatDSN(), nil
}

// registerTLS builds the TLS config and registers it with the driver under a
// name derived from the certificate settings
func (c *Config) registerTLS() (string, error) {
	tlsConfig := &tls.Config{}

	if c.SSL.CAFile != "" {
		caCert, err := os.ReadFile(c.SSL.CAFile)
		if err != nil {
			return "", fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return "", fmt.Errorf("invalid CA certificate in %s", c.SSL.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if c.SSL.CertFile != "" && c.SSL.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.SSL.CertFile, c.SSL.KeyFile)
		if err != nil {
			return "", fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.SSL.ServerName != "" {
		tlsConfig.ServerName = c.SSL.ServerName
	}

	name := c.tlsConfigName()
	if err := mysqldriver.RegisterTLSConfig(name, tlsConfig); err != nil {
		return "", fmt.Errorf("failed to register TLS config: %w", err)
	}
	return name, nil
}

// tlsConfigName hashes the SSL settings so distinct configs never collide
func (c *Config) tlsConfigName() string {
	h := sha256.New()
	h.Write([]byte(c.SSL.CAFile))
	h.Write([]byte(c.SSL.CertFile))
	h.Write([]byte(c.SSL.KeyFile))
	h.Write([]byte(c.SSL.ServerName))
	return "doc4go_tls_" + hex.EncodeToString(h.Sum(nil))[:16]
}

// parseLocation parses timezone string to *time.Location
func parseLocation(tz string) *time.Location {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback to UTC if timezone parsing fails
		return time.UTC
	}
	return loc
}

// ConfigFromDSN builds a Config from a go-sql-driver DSN, keeping default pool settings
func ConfigFromDSN(dsn string) (*Config, error) {
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid dsn: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Username = parsed.User
	cfg.Password = parsed.Passwd
	cfg.Database = parsed.DBName
	if parsed.Collation != "" {
		cfg.Collation = parsed.Collation
	}

	host, port, err := net.SplitHostPort(parsed.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid dsn address %q: %w", parsed.Addr, err)
	}
	cfg.Host = host
	if cfg.Port, err = strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("invalid dsn port %q: %w", port, err)
	}
	return cfg, nil
}
