package document

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Document is the stored form of an entity: only present attributes
type Document map[string]interface{}

// ID returns the document's identity as a string, or "" when it has none
func (d Document) ID() string {
	v, ok := d[IDKey]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ErrEntityClassNotFound is returned when a document cannot be mapped onto the entity type
var ErrEntityClassNotFound = errors.New("entity class not found")

// IsEntityClassNotFound checks if error is ErrEntityClassNotFound
func IsEntityClassNotFound(err error) bool {
	return errors.Is(err, ErrEntityClassNotFound)
}

// UnknownFieldPolicy decides what Decode does with a key the schema does not declare
type UnknownFieldPolicy int

const (
	// FailOnUnknown rejects the document with ErrEntityClassNotFound
	FailOnUnknown UnknownFieldPolicy = iota
	// IgnoreUnknown drops the key
	IgnoreUnknown
)

// TimeFormat controls how time values are written into documents
type TimeFormat string

const (
	TimeNative TimeFormat = "native" // keep time.Time values
	TimeRaw    TimeFormat = "raw"    // RFC3339Nano strings
)

// CodecOption configures a Codec
type CodecOption func(*codecOptions)

type codecOptions struct {
	policy     UnknownFieldPolicy
	timeFormat TimeFormat
}

// WithUnknownFieldPolicy sets the policy for undeclared document keys
func WithUnknownFieldPolicy(p UnknownFieldPolicy) CodecOption {
	return func(o *codecOptions) { o.policy = p }
}

// WithTimeFormat sets how Encode writes time values
func WithTimeFormat(f TimeFormat) CodecOption {
	return func(o *codecOptions) { o.timeFormat = f }
}

// Codec converts between *T and Document using T's schema
type Codec[T any] struct {
	schema *Schema
	opts   codecOptions
}

// NewCodec builds a codec for T
func NewCodec[T any](opts ...CodecOption) (*Codec[T], error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, err
	}
	c := &Codec[T]{
		schema: schema,
		opts:   codecOptions{policy: FailOnUnknown, timeFormat: TimeNative},
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c, nil
}

// Schema returns the entity schema
func (c *Codec[T]) Schema() *Schema {
	return c.schema
}

// Policy returns the codec's unknown-field policy
func (c *Codec[T]) Policy() UnknownFieldPolicy {
	return c.opts.policy
}

// Encode copies every present field of e into a new document.
// Absent fields are omitted, never written as nil.
func (c *Codec[T]) Encode(e *T) Document {
	doc := make(Document, len(c.schema.Fields))
	if e == nil {
		return doc
	}
	rv := reflect.ValueOf(e).Elem()
	for i := range c.schema.Fields {
		f := &c.schema.Fields[i]
		fv := rv.FieldByIndex(f.Index)
		if f.absent(fv) {
			continue
		}
		if f.Key == IDKey && fv.String() == "" {
			continue
		}
		doc[f.Key] = c.encodeValue(fv)
	}
	return doc
}

func (c *Codec[T]) encodeValue(v reflect.Value) interface{} {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	out := v.Interface()
	if t, ok := out.(time.Time); ok && c.opts.timeFormat == TimeRaw {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// Decode constructs a new entity from doc
func (c *Codec[T]) Decode(doc Document) (*T, error) {
	e := new(T)
	if err := c.apply(e, doc, c.opts.policy); err != nil {
		return nil, err
	}
	return e, nil
}

// Assign sets the named attributes on e. Unknown names always fail.
func (c *Codec[T]) Assign(e *T, attrs map[string]interface{}) error {
	return c.apply(e, attrs, FailOnUnknown)
}

func (c *Codec[T]) apply(e *T, doc map[string]interface{}, policy UnknownFieldPolicy) error {
	rv := reflect.ValueOf(e).Elem()
	for key, value := range doc {
		f, ok := c.schema.Field(key)
		if !ok {
			if policy == IgnoreUnknown {
				continue
			}
			return fmt.Errorf("%w: %s has no field for key %q", ErrEntityClassNotFound, c.schema.Name, key)
		}
		if value == nil {
			continue
		}
		if err := setField(rv.FieldByIndex(f.Index), f, value); err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrEntityClassNotFound, c.schema.Name, f.GoName, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, f *Field, value interface{}) error {
	if f.Key == IDKey {
		if s, ok := value.(string); ok {
			fv.SetString(s)
		} else {
			fv.SetString(fmt.Sprint(value))
		}
		return nil
	}

	target := reflect.New(f.Type)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(stringToTimeHook, mapstructure.StringToTimeDurationHookFunc()),
		WeaklyTypedInput: true,
		TagName:          TagName,
		Result:           target.Interface(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(value); err != nil {
		return err
	}
	fv.Set(target.Elem())
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// stringToTimeHook accepts RFC3339 strings with or without fractional seconds
func stringToTimeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != timeType {
		return data, nil
	}
	return time.Parse(time.RFC3339Nano, reflect.ValueOf(data).String())
}

// ID returns e's identity
func (c *Codec[T]) ID(e *T) string {
	if e == nil {
		return ""
	}
	return reflect.ValueOf(e).Elem().FieldByIndex(c.schema.id.Index).String()
}

// SetID assigns e's identity
func (c *Codec[T]) SetID(e *T, id string) {
	reflect.ValueOf(e).Elem().FieldByIndex(c.schema.id.Index).SetString(id)
}

// RepositorySuffix is stripped from repository names to derive entity names
const RepositorySuffix = "Repository"

// EntityName derives an entity name from a repository name: "UserRepository" → "User"
func EntityName(repositoryName string) string {
	return strings.TrimSuffix(repositoryName, RepositorySuffix)
}

// CollectionName derives a collection name from an entity name: "User" → "user"
func CollectionName(entityName string) string {
	return strings.ToLower(entityName)
}

// Ptr returns a pointer to v, for populating optional entity fields
func Ptr[T any](v T) *T {
	return &v
}
