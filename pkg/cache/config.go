package cache

import (
	"fmt"
	"time"
)

// Config holds Redis read cache configuration
type Config struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	DefaultTTL   time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`
	NullCacheTTL time.Duration `json:"null_cache_ttl" yaml:"null_cache_ttl" mapstructure:"null_cache_ttl"` // Cache not-found lookups, 0 disables
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	// Redis Connection
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	Database int    `json:"database" yaml:"database" mapstructure:"database"`

	// Connection Pool
	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	MaxConnAge   time.Duration `json:"max_conn_age" yaml:"max_conn_age" mapstructure:"max_conn_age"`
	PoolTimeout  time.Duration `json:"pool_timeout" yaml:"pool_timeout" mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`

	// Performance
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// Clustering (for Redis Cluster)
	Cluster ClusterConfig `json:"cluster" yaml:"cluster" mapstructure:"cluster"`

	// Invalidation
	ScanBatchSize int64 `json:"scan_batch_size" yaml:"scan_batch_size" mapstructure:"scan_batch_size"`
}

// ClusterConfig for Redis Cluster setup
type ClusterConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Addresses []string `json:"addresses" yaml:"addresses" mapstructure:"addresses"`
	Username  string   `json:"username" yaml:"username" mapstructure:"username"`
	Password  string   `json:"password" yaml:"password" mapstructure:"password"`
}

// DefaultConfig returns a disabled cache configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:       false,
		DefaultTTL:    time.Hour,
		NullCacheTTL:  time.Minute * 5,
		KeyPrefix:     "doc4go",
		Host:          "localhost",
		Port:          6379,
		Database:      0,
		PoolSize:      10,
		MinIdleConns:  3,
		MaxConnAge:    time.Hour,
		PoolTimeout:   time.Second * 4,
		IdleTimeout:   time.Minute * 5,
		ReadTimeout:   time.Second * 3,
		WriteTimeout:  time.Second * 3,
		DialTimeout:   time.Second * 5,
		ScanBatchSize: 100,
	}
}

// Validate checks if the cache configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // Skip validation if cache is disabled
	}

	if c.Host == "" && !c.IsClusterMode() {
		return fmt.Errorf("redis host is required when cache is enabled")
	}
	if c.Port <= 0 && !c.IsClusterMode() {
		return fmt.Errorf("redis port must be positive")
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive when cache is enabled")
	}
	if c.NullCacheTTL < 0 {
		return fmt.Errorf("null_cache_ttl cannot be negative")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}
	if c.ScanBatchSize < 0 {
		return fmt.Errorf("scan_batch_size cannot be negative")
	}

	return nil
}

// Addr returns the Redis connection address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsClusterMode returns true if Redis cluster is enabled
func (c *Config) IsClusterMode() bool {
	return c.Cluster.Enabled && len(c.Cluster.Addresses) > 0
}

func (c *Config) prefix() string {
	if c.KeyPrefix == "" {
		return "doc4go"
	}
	return c.KeyPrefix
}

func (c *Config) scanBatch() int64 {
	if c.ScanBatchSize <= 0 {
		return 100
	}
	return c.ScanBatchSize
}
