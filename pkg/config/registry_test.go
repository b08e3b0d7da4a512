package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/doc4go/pkg/adapter"
	"github.com/ammar0144/doc4go/pkg/driver/memory"
)

func resetRegistry(t *testing.T) {
	t.Helper()
	Reset()
	t.Cleanup(Reset)
}

func TestCurrent_NotConfigured(t *testing.T) {
	resetRegistry(t)

	_, err := Current()
	assert.True(t, IsNotConfigured(err))
}

func TestConfigure(t *testing.T) {
	resetRegistry(t)

	assert.ErrorIs(t, Configure(nil), ErrMissingConfigBlock)

	require.NoError(t, Configure(func(c *Config) { c.Database = "registry" }))
	a, err := Current()
	require.NoError(t, err)
	assert.Equal(t, "memory", a.Driver().Name())

	cfg, same, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "registry", cfg.Database)
	assert.Same(t, a, same)

	// reconfiguring starts from the current settings and swaps the adapter
	require.NoError(t, Configure(func(c *Config) { c.Log.Level = "debug" }))
	cfg, next, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "registry", cfg.Database)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NotSame(t, a, next)
}

func TestConfigure_FailureKeepsPrevious(t *testing.T) {
	resetRegistry(t)

	require.NoError(t, Configure(func(c *Config) { c.Database = "kept" }))
	before, err := Current()
	require.NoError(t, err)

	assert.Error(t, Configure(func(c *Config) { c.Driver = "mongo" }))

	after, err := Current()
	require.NoError(t, err)
	assert.Same(t, before, after)
	cfg, _, err := Get()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Driver)
}

func TestGet_AutoConfigures(t *testing.T) {
	resetRegistry(t)

	cfg, a, err := Get()
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, "test", cfg.Database)

	current, err := Current()
	require.NoError(t, err)
	assert.Same(t, a, current)
}

func TestUse(t *testing.T) {
	resetRegistry(t)

	Use(nil, nil)
	_, err := Current()
	assert.True(t, IsMissingAdapter(err))

	custom := adapter.New(memory.New(t.Name()))
	defer memory.Drop(t.Name())
	Use(DefaultConfig(), custom)
	a, err := Current()
	require.NoError(t, err)
	assert.Same(t, custom, a)
}
