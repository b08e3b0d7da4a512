// Package doc4go maps plain Go structs to documents and gives them identity based
// CRUD and simple queries over memory, SQLite, MySQL or PostgreSQL stores, with an
// optional Redis read cache.
package doc4go

import (
	"github.com/ammar0144/doc4go/pkg/adapter"
	"github.com/ammar0144/doc4go/pkg/config"
	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/repository"
)

// Config represents the library configuration
type Config = config.Config

// Adapter binds a driver to run options, logging and tracing
type Adapter = adapter.Adapter

// Base carries an entity's identity; embed it in entity structs
type Base = repository.Base

// Entity is implemented by structs embedding Base
type Entity = repository.Entity

// Repository provides the generic repository operations
type Repository[T any] = repository.Repository[T]

// Store is the operation set of a Repository
type Store[T any] interface {
	repository.Store[T]
}

// DefaultConfig returns the memory driver on database "test"
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// LoadConfig reads a configuration file with DOC4GO_ environment overrides
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Open builds an adapter from cfg
func Open(cfg *Config) (*Adapter, error) {
	return config.Open(cfg)
}

// Configure updates the shared configuration that Define binds to
func Configure(fn func(*Config)) error {
	return config.Configure(fn)
}

// Define binds a repository for T to the shared adapter
func Define[T any](opts ...repository.Option) (*Repository[T], error) {
	return repository.Define[T](opts...)
}

// NewRepository binds a repository for T to a
func NewRepository[T any](a *Adapter, opts ...repository.Option) (*Repository[T], error) {
	return repository.New[T](a, opts...)
}

// Ptr returns a pointer to v, for optional entity attributes
func Ptr[T any](v T) *T {
	return document.Ptr(v)
}
