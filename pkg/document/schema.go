// Package document maps entity structs to schemaless documents and back.
//
// An entity's schema is the ordered list of its `doc`-tagged fields, parsed once per
// type and cached. Fields of embedded structs are promoted, so an entity embedding a
// base type with the id field inherits it:
//
//	type User struct {
//		repository.Base
//		Name *string `doc:"name"`
//		Age  *int    `doc:"age"`
//	}
//
// A field is absent when it is a nil pointer, slice, map or interface, or when it is
// tagged omitempty and holds its zero value. Absent fields are left out of documents.
package document

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// TagName is the struct tag holding a field's document key
const TagName = "doc"

// IDKey is the document key holding an entity's identity
const IDKey = "id"

// Field describes one persisted struct field
type Field struct {
	Key       string       // document key
	GoName    string       // struct field name
	Index     []int        // path for reflect.Value.FieldByIndex
	Type      reflect.Type // declared type
	OmitEmpty bool
}

// Schema is the static mapping between a struct type and its documents
type Schema struct {
	Name   string // struct type name, used as the entity name
	Type   reflect.Type
	Fields []Field
	id     *Field
	byKey  map[string]*Field
}

var schemas sync.Map // reflect.Type -> *Schema

// SchemaFor returns the cached schema of T, which must be a struct type
func SchemaFor[T any]() (*Schema, error) {
	var zero T
	return SchemaOf(reflect.TypeOf(zero))
}

// SchemaOf returns the cached schema of typ; pointer types are dereferenced
func SchemaOf(typ reflect.Type) (*Schema, error) {
	if typ == nil {
		return nil, fmt.Errorf("%w: nil type", ErrEntityClassNotFound)
	}
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if cached, ok := schemas.Load(typ); ok {
		return cached.(*Schema), nil
	}

	s, err := parseSchema(typ)
	if err != nil {
		return nil, err
	}
	actual, _ := schemas.LoadOrStore(typ, s)
	return actual.(*Schema), nil
}

func parseSchema(typ reflect.Type) (*Schema, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: type %s is not a struct", ErrEntityClassNotFound, typ)
	}

	s := &Schema{
		Name:  typ.Name(),
		Type:  typ,
		byKey: make(map[string]*Field),
	}
	if err := s.collect(typ, nil); err != nil {
		return nil, err
	}

	for i := range s.Fields {
		s.byKey[s.Fields[i].Key] = &s.Fields[i]
	}
	id, ok := s.byKey[IDKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q field", ErrEntityClassNotFound, typ, IDKey)
	}
	if id.Type.Kind() != reflect.String {
		return nil, fmt.Errorf("%w: %s.%s must be a string", ErrEntityClassNotFound, typ, id.GoName)
	}
	s.id = id
	return s, nil
}

func (s *Schema) collect(typ reflect.Type, parent []int) error {
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		index := append(append([]int(nil), parent...), i)
		tag, hasTag := sf.Tag.Lookup(TagName)

		if sf.Anonymous && !hasTag && sf.Type.Kind() == reflect.Struct {
			if err := s.collect(sf.Type, index); err != nil {
				return err
			}
			continue
		}
		if !hasTag || tag == "-" || !sf.IsExported() {
			continue
		}

		parts := strings.Split(tag, ",")
		key := parts[0]
		if key == "" {
			key = strings.ToLower(sf.Name)
		}
		omitEmpty := false
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				omitEmpty = true
			}
		}

		for _, f := range s.Fields {
			if f.Key == key {
				return fmt.Errorf("%w: %s declares key %q twice", ErrEntityClassNotFound, typ, key)
			}
		}
		s.Fields = append(s.Fields, Field{
			Key:       key,
			GoName:    sf.Name,
			Index:     index,
			Type:      sf.Type,
			OmitEmpty: omitEmpty,
		})
	}
	return nil
}

// Field returns the field stored under key
func (s *Schema) Field(key string) (*Field, bool) {
	f, ok := s.byKey[key]
	return f, ok
}

// IDField returns the identity field
func (s *Schema) IDField() *Field {
	return s.id
}

// Keys returns the document keys in declaration order
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Key
	}
	return keys
}

// absent reports whether v holds no value for the field
func (f *Field) absent(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		if v.IsNil() {
			return true
		}
	}
	return f.OmitEmpty && v.IsZero()
}
