package repository

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/google/uuid"

	"github.com/ammar0144/doc4go/pkg/document"
)

// Entity is implemented by types embedding Base. Repositories do not require it:
// any struct with a string field tagged doc:"id" can be stored.
type Entity interface {
	GetID() string
	SetID(id string)
}

// CollectionNamer lets an entity name its own collection
type CollectionNamer interface {
	CollectionName() string
}

// Base carries the identity every entity needs. Embed it untagged:
//
//	type User struct {
//		repository.Base
//		Name *string `doc:"name"`
//		Age  *int    `doc:"age"`
//	}
type Base struct {
	ID string `doc:"id,omitempty"`
}

// GetID returns the entity's identity, empty until persisted
func (b *Base) GetID() string { return b.ID }

// SetID assigns the entity's identity
func (b *Base) SetID(id string) { b.ID = id }

// Persisted reports whether the entity has an identity
func (b *Base) Persisted() bool { return b.ID != "" }

// Equal reports whether a and b are the same entity: the same instance, or values
// of the same concrete type with equal non-empty ids
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Ptr {
		if va.IsNil() || vb.IsNil() {
			return false
		}
		if va.Pointer() == vb.Pointer() {
			return true
		}
	}

	ida, oka := entityID(va)
	idb, okb := entityID(vb)
	return oka && okb && ida != "" && ida == idb
}

// entityID reads the id of an entity value, if v is one
func entityID(v reflect.Value) (string, bool) {
	if e, ok := v.Interface().(Entity); ok {
		return e.GetID(), true
	}
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}
	schema, err := document.SchemaOf(v.Type())
	if err != nil {
		return "", false
	}
	f := schema.IDField()
	return v.FieldByIndex(f.Index).String(), true
}

func isEntity(v any) bool {
	_, ok := entityID(reflect.ValueOf(v))
	return ok
}

// Build creates a *T and applies attrs to it. Unknown attribute names fail with
// ErrEntityClassNotFound.
func Build[T any](attrs map[string]any) (*T, error) {
	codec, err := document.NewCodec[T]()
	if err != nil {
		return nil, err
	}
	e := new(T)
	if err := codec.Assign(e, attrs); err != nil {
		return nil, err
	}
	return e, nil
}

// NormalizeID converts a lookup id to its stored string form. Accepted are
// non-empty strings, integers, uuid.UUID and fmt.Stringer values that are not
// entities.
func NormalizeID(id any) (string, error) {
	if id == nil {
		return "", fmt.Errorf("%w: nil", ErrEntityIDNotFound)
	}
	if isEntity(id) {
		return "", fmt.Errorf("%w: %T is an entity", ErrEntityIDNotFound, id)
	}

	var s string
	switch v := id.(type) {
	case uuid.UUID:
		if v == uuid.Nil {
			return "", fmt.Errorf("%w: nil uuid", ErrEntityIDNotFound)
		}
		s = v.String()
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return "", fmt.Errorf("%w: nil %T", ErrEntityIDNotFound, id)
		}
		s = v.String()
	default:
		rv := reflect.ValueOf(id)
		switch rv.Kind() {
		case reflect.String:
			s = rv.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			s = strconv.FormatInt(rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			s = strconv.FormatUint(rv.Uint(), 10)
		default:
			return "", fmt.Errorf("%w: unsupported type %T", ErrEntityIDNotFound, id)
		}
	}

	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrEntityIDNotFound)
	}
	return s, nil
}
