package repository

import (
	"errors"
	"fmt"

	"github.com/ammar0144/doc4go/pkg/config"
	"github.com/ammar0144/doc4go/pkg/document"
)

// Repository errors
var (
	// ErrEntityNotFound is returned when a lookup by id matches nothing
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntityIDNotFound is returned when a lookup id cannot be normalised
	ErrEntityIDNotFound = errors.New("entity id not found")

	// ErrEntityClassNotFound is returned when an entity type or document key cannot be resolved
	ErrEntityClassNotFound = document.ErrEntityClassNotFound

	// ErrEntityExisted is returned when create collides with an existing id
	ErrEntityExisted = errors.New("entity already exists")

	// ErrNonPersistedEntity is returned by update and delete for entities without an id
	ErrNonPersistedEntity = errors.New("entity is not persisted")

	// ErrRuntime matches every *RuntimeError
	ErrRuntime = errors.New("repository runtime error")

	// ErrNilConsumer is returned by Cursor.Each without a function
	ErrNilConsumer = errors.New("nil cursor consumer")

	// ErrNotConfigured is returned by Define before anything was configured
	ErrNotConfigured = config.ErrNotConfigured

	// ErrMissingAdapter is returned when a repository has no adapter to bind
	ErrMissingAdapter = config.ErrMissingAdapter
)

// RuntimeError wraps a failure of the executor with the operation that hit it
type RuntimeError struct {
	Op         string
	Collection string
	Err        error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRuntime) hold for any RuntimeError
func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntime
}

// IsEntityNotFound checks if error is ErrEntityNotFound
func IsEntityNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsEntityIDNotFound checks if error is ErrEntityIDNotFound
func IsEntityIDNotFound(err error) bool {
	return errors.Is(err, ErrEntityIDNotFound)
}

// IsEntityClassNotFound checks if error is ErrEntityClassNotFound
func IsEntityClassNotFound(err error) bool {
	return errors.Is(err, ErrEntityClassNotFound)
}

// IsEntityExisted checks if error is ErrEntityExisted
func IsEntityExisted(err error) bool {
	return errors.Is(err, ErrEntityExisted)
}

// IsNonPersistedEntity checks if error is ErrNonPersistedEntity
func IsNonPersistedEntity(err error) bool {
	return errors.Is(err, ErrNonPersistedEntity)
}

// IsRuntime checks if error is a *RuntimeError
func IsRuntime(err error) bool {
	return errors.Is(err, ErrRuntime)
}
