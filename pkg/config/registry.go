package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ammar0144/doc4go/pkg/adapter"
)

// Sentinel errors for the shared configuration
var (
	// ErrMissingConfigBlock is returned when Configure is called without a function
	ErrMissingConfigBlock = errors.New("missing configuration block")

	// ErrNotConfigured is returned by Current before anything was configured
	ErrNotConfigured = errors.New("doc4go is not configured")

	// ErrMissingAdapter is returned by Current when the configuration has no adapter
	ErrMissingAdapter = errors.New("configuration has no adapter")
)

// IsNotConfigured checks if error is ErrNotConfigured
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsMissingAdapter checks if error is ErrMissingAdapter
func IsMissingAdapter(err error) bool {
	return errors.Is(err, ErrMissingAdapter)
}

// registry holds the process-wide configuration and its adapter.
// Repositories copy the adapter when they are defined, so replacing it later
// only affects repositories defined afterwards.
var registry struct {
	mu      sync.Mutex
	config  *Config
	adapter *adapter.Adapter
}

// Configure applies fn to the shared configuration, creating it from DefaultConfig
// when absent, and opens a new adapter from the result. On failure the previous
// configuration stays in place.
func Configure(fn func(*Config)) error {
	if fn == nil {
		return ErrMissingConfigBlock
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	next := DefaultConfig()
	if registry.config != nil {
		copied := *registry.config
		next = &copied
	}
	fn(next)

	a, err := Open(next)
	if err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	registry.config = next
	registry.adapter = a
	return nil
}

// Use installs a configuration and an adapter built elsewhere, e.g. over a custom
// driver. A nil adapter leaves repositories unable to bind.
func Use(cfg *Config, a *adapter.Adapter) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if cfg == nil {
		cfg = DefaultConfig()
	}
	registry.config = cfg
	registry.adapter = a
}

// Get returns the shared configuration and adapter, opening one from the defaults
// when nothing is configured yet
func Get() (*Config, *adapter.Adapter, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.adapter == nil {
		cfg := registry.config
		if cfg == nil {
			cfg = DefaultConfig()
		}
		a, err := Open(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("default configuration: %w", err)
		}
		registry.config = cfg
		registry.adapter = a
	}
	return registry.config, registry.adapter, nil
}

// Current returns the shared adapter without configuring anything
func Current() (*adapter.Adapter, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.config == nil {
		return nil, ErrNotConfigured
	}
	if registry.adapter == nil {
		return nil, ErrMissingAdapter
	}
	return registry.adapter, nil
}

// Reset forgets the shared configuration. The adapter is not closed: repositories
// defined earlier may still use it.
func Reset() {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.config = nil
	registry.adapter = nil
}
