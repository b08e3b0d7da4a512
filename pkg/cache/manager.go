// Package cache puts a Redis read-through cache in front of a document driver.
//
// Lookups by id and counts are cached per collection. Any write to a collection
// drops every key cached for it. Cache failures are recorded and logged but never
// change a query's outcome.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeySeparator = ":"

// Manager manages the Redis connection and raw cache operations
type Manager struct {
	config  *Config
	client  redis.UniversalClient
	metrics *Metrics
}

// NewManager creates a new Redis cache manager
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	m := &Manager{config: config, metrics: NewMetrics()}
	if !config.Enabled {
		return m, nil
	}

	if config.IsClusterMode() {
		m.client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           config.Cluster.Addresses,
			Username:        config.Cluster.Username,
			Password:        config.Cluster.Password,
			PoolSize:        config.PoolSize,
			MinIdleConns:    config.MinIdleConns,
			ConnMaxLifetime: config.MaxConnAge,
			PoolTimeout:     config.PoolTimeout,
			ConnMaxIdleTime: config.IdleTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
			DialTimeout:     config.DialTimeout,
		})
	} else {
		m.client = redis.NewClient(&redis.Options{
			Addr:            config.Addr(),
			Username:        config.Username,
			Password:        config.Password,
			DB:              config.Database,
			PoolSize:        config.PoolSize,
			MinIdleConns:    config.MinIdleConns,
			ConnMaxLifetime: config.MaxConnAge,
			PoolTimeout:     config.PoolTimeout,
			ConnMaxIdleTime: config.IdleTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
			DialTimeout:     config.DialTimeout,
		})
	}

	return m, nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection. A disabled cache is not an error.
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// Key joins parts under the configured prefix
func (m *Manager) Key(parts ...string) string {
	return m.config.prefix() + cacheKeySeparator + strings.Join(parts, cacheKeySeparator)
}

// Get retrieves a value; a missing key returns ErrKeyNotFound
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := m.client.Get(ctx, key).Bytes()
	m.metrics.RecordGet(time.Since(start))

	if errors.Is(err, redis.Nil) {
		m.metrics.RecordMiss()
		return nil, ErrKeyNotFound
	}
	if err != nil {
		m.metrics.RecordError()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	m.metrics.RecordHit()
	return data, nil
}

// Set stores a value with the default TTL
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, m.config.DefaultTTL)
}

// SetWithTTL stores a value with a custom TTL
func (m *Manager) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	start := time.Now()
	err := m.client.Set(ctx, key, value, ttl).Err()
	m.metrics.RecordSet(time.Since(start))
	if err != nil {
		m.metrics.RecordError()
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// InvalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// and returns how many were deleted
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if err := m.checkClient(); err != nil {
		return 0, err
	}

	// Collect first: deleting while the SCAN cursor advances can skip keys
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := m.client.Scan(ctx, cursor, pattern, m.config.scanBatch()).Result()
		if err != nil {
			m.metrics.RecordError()
			return 0, fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	deleted, size := 0, int(m.config.scanBatch())
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		n, err := m.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			m.metrics.RecordError()
			m.metrics.RecordInvalidation(deleted)
			return deleted, fmt.Errorf("failed to delete batch: %w", err)
		}
		deleted += int(n)
	}

	m.metrics.RecordInvalidation(deleted)
	return deleted, nil
}

// Metrics returns current cache statistics
func (m *Manager) Metrics() Snapshot {
	return m.metrics.Snapshot()
}

// ResetMetrics zeroes the statistics
func (m *Manager) ResetMetrics() {
	m.metrics.Reset()
}

// recordBypass counts a query the cache let through untouched
func (m *Manager) recordBypass() {
	m.metrics.RecordBypass()
}
