// Package config builds adapters from configuration and keeps the process-wide one
// repositories bind to when they are defined.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ammar0144/doc4go/pkg/adapter"
	"github.com/ammar0144/doc4go/pkg/cache"
	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/driver/memory"
	"github.com/ammar0144/doc4go/pkg/driver/mysql"
	"github.com/ammar0144/doc4go/pkg/driver/postgres"
	"github.com/ammar0144/doc4go/pkg/driver/sqlite"
	"github.com/ammar0144/doc4go/pkg/log"
	"github.com/ammar0144/doc4go/pkg/metrics"
)

// EnvPrefix prefixes environment overrides, e.g. DOC4GO_DRIVER or DOC4GO_RUN_TIMEOUT
const EnvPrefix = "DOC4GO"

// DriverType selects the document store
type DriverType string

const (
	DriverMemory   DriverType = "memory"
	DriverSQLite   DriverType = "sqlite"
	DriverMySQL    DriverType = "mysql"
	DriverPostgres DriverType = "postgres"
)

// RunConfig holds the defaults applied to every query
type RunConfig struct {
	Durability string        `json:"durability" yaml:"durability" mapstructure:"durability"`    // hard, soft
	TimeFormat string        `json:"time_format" yaml:"time_format" mapstructure:"time_format"` // native, raw
	Timeout    time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Config describes one adapter
type Config struct {
	Driver DriverType `json:"driver" yaml:"driver" mapstructure:"driver"`
	// Database names the sqlite file, the mysql schema, the postgres database or the
	// memory namespace. It takes precedence over the per-driver setting.
	Database string `json:"database" yaml:"database" mapstructure:"database"`

	SQLite   sqlite.Config   `json:"sqlite" yaml:"sqlite" mapstructure:"sqlite"`
	MySQL    mysql.Config    `json:"mysql" yaml:"mysql" mapstructure:"mysql"`
	Postgres postgres.Config `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	Cache   cache.Config   `json:"cache" yaml:"cache" mapstructure:"cache"`
	Metrics metrics.Config `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Log     log.Config     `json:"log" yaml:"log" mapstructure:"log"`
	Run     RunConfig      `json:"run" yaml:"run" mapstructure:"run"`
}

// DefaultConfig returns the memory driver on database "test" with caching and
// metrics off
func DefaultConfig() *Config {
	opts := driver.DefaultRunOptions()
	return &Config{
		Driver:   DriverMemory,
		Database: "test",
		SQLite:   sqlite.Config{BusyTimeout: 5 * time.Second},
		MySQL:    *mysql.DefaultConfig(),
		Postgres: *postgres.DefaultConfig(),
		Cache:    *cache.DefaultConfig(),
		Metrics:  *metrics.DefaultConfig(),
		Log:      log.Config{Level: "info", Format: "json"},
		Run: RunConfig{
			Durability: string(opts.Durability),
			TimeFormat: string(opts.TimeFormat),
			Timeout:    opts.Timeout,
		},
	}
}

// Validate checks the settings that do not depend on the selected driver
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMemory, DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}

	switch driver.Durability(c.Run.Durability) {
	case "", driver.DurabilityHard, driver.DurabilitySoft:
	default:
		return fmt.Errorf("durability must be hard or soft, got %q", c.Run.Durability)
	}
	switch document.TimeFormat(c.Run.TimeFormat) {
	case "", document.TimeNative, document.TimeRaw:
	default:
		return fmt.Errorf("time_format must be native or raw, got %q", c.Run.TimeFormat)
	}
	if c.Run.Timeout < 0 {
		return fmt.Errorf("run timeout cannot be negative")
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}
	return nil
}

// RunOptions converts the run settings, filling unset ones with defaults
func (c *Config) RunOptions() driver.RunOptions {
	opts := driver.DefaultRunOptions()
	if c.Run.Durability != "" {
		opts.Durability = driver.Durability(c.Run.Durability)
	}
	if c.Run.TimeFormat != "" {
		opts.TimeFormat = document.TimeFormat(c.Run.TimeFormat)
	}
	opts.Timeout = c.Run.Timeout
	return opts
}

// Load reads a YAML, JSON or TOML file over the defaults. DOC4GO_* environment
// variables override file values; nested keys join with underscores.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKeys are overridable from the environment even when the file omits them
var envKeys = []string{
	"driver", "database",
	"sqlite.path", "sqlite.busy_timeout",
	"mysql.host", "mysql.port", "mysql.username", "mysql.password",
	"postgres.dsn", "postgres.host", "postgres.port", "postgres.username", "postgres.password",
	"cache.enabled", "cache.host", "cache.port", "cache.password",
	"metrics.enabled",
	"log.level", "log.format",
	"run.durability", "run.time_format", "run.timeout",
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Open validates cfg, connects the selected driver and wraps it with the read
// cache and metrics when they are enabled
func Open(cfg *Config) (*adapter.Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.NewLogger(&cfg.Log)

	d, err := openDriver(cfg)
	if err != nil {
		return nil, err
	}

	var manager *cache.Manager
	if cfg.Cache.Enabled {
		manager, err = cache.NewManager(&cfg.Cache)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		d = cache.Wrap(d, manager, cfg.Database, logger)
	}

	if cfg.Metrics.Enabled {
		m := metrics.New(&cfg.Metrics)
		if manager != nil {
			if err := m.RegisterCache(manager.Metrics); err != nil {
				d.Close()
				return nil, fmt.Errorf("failed to register cache metrics: %w", err)
			}
		}
		d = m.Wrap(d)
	}

	logger.Info("adapter opened", "driver", d.Name(), "database", cfg.Database,
		"cache", cfg.Cache.Enabled, "metrics", cfg.Metrics.Enabled)

	return adapter.New(d,
		adapter.WithRunOptions(cfg.RunOptions()),
		adapter.WithLogger(logger),
	), nil
}

func openDriver(cfg *Config) (driver.Driver, error) {
	switch cfg.Driver {
	case DriverMemory:
		return memory.New(cfg.Database), nil

	case DriverSQLite:
		sc := cfg.SQLite
		sc.Path = cfg.Database
		if sc.Durability == "" {
			sc.Durability = cfg.Run.Durability
		}
		return sqlite.Open(&sc)

	case DriverMySQL:
		mc := cfg.MySQL
		mc.Database = cfg.Database
		return mysql.Open(&mc)

	case DriverPostgres:
		pc := cfg.Postgres
		pc.Database = cfg.Database
		ctx := context.Background()
		if cfg.Run.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Run.Timeout)
			defer cancel()
		}
		return postgres.Open(ctx, &pc)
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}
