// Package repository maps entity structs to documents and runs identity based
// CRUD and simple queries through an adapter.
//
// A repository is bound to one entity type and one collection when it is defined:
//
//	users, err := repository.Define[User](repository.WithName("UserRepository"))
//	u := &User{Name: document.Ptr("L")}
//	err = users.Create(ctx, u) // u.ID is now set
//	found, err := users.Find(ctx, u.ID)
//
// Lookups that match nothing fail with ErrEntityNotFound. Executor failures are
// returned as *RuntimeError. First, Last and Clear report failure through their
// boolean result and log the cause.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ammar0144/doc4go/pkg/adapter"
	"github.com/ammar0144/doc4go/pkg/config"
	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/log"
	"github.com/ammar0144/doc4go/pkg/query"
)

var errNilEntity = errors.New("nil entity")

// Repository runs commands and queries for entities of type T against one collection
type Repository[T any] struct {
	adapter    *adapter.Adapter
	codec      *document.Codec[T]
	collection string
	entityName string
	logger     *log.Logger
}

// Option configures a repository at definition
type Option func(*options)

type options struct {
	collection string
	name       string
	entityName string
	policy     document.UnknownFieldPolicy
	logger     *log.Logger
}

// WithCollection binds the repository to collection, skipping name resolution
func WithCollection(collection string) Option {
	return func(o *options) { o.collection = collection }
}

// WithName names the repository; "UserRepository" expects entity User and
// collection "user"
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithEntityName overrides the entity name taken from the struct type
func WithEntityName(name string) Option {
	return func(o *options) { o.entityName = name }
}

// WithUnknownFieldPolicy decides what decoding does with document keys T has no field for
func WithUnknownFieldPolicy(p document.UnknownFieldPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger replaces the adapter's logger
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Define binds a repository to the shared adapter configured in package config.
// Reconfiguring afterwards does not affect it.
func Define[T any](opts ...Option) (*Repository[T], error) {
	a, err := config.Current()
	if err != nil {
		return nil, err
	}
	return New[T](a, opts...)
}

// New binds a repository to a
func New[T any](a *adapter.Adapter, opts ...Option) (*Repository[T], error) {
	if a == nil {
		return nil, ErrMissingAdapter
	}
	o := &options{policy: document.FailOnUnknown}
	for _, opt := range opts {
		opt(o)
	}

	codec, err := document.NewCodec[T](
		document.WithUnknownFieldPolicy(o.policy),
		document.WithTimeFormat(a.RunOptions().TimeFormat),
	)
	if err != nil {
		return nil, err
	}

	entityName := codec.Schema().Name
	if o.entityName != "" {
		entityName = o.entityName
	}
	if o.name != "" {
		if derived := document.EntityName(o.name); derived != entityName {
			return nil, fmt.Errorf("%w: repository %s expects entity %s, got %s",
				ErrEntityClassNotFound, o.name, derived, entityName)
		}
	}

	collection := resolveCollection[T](o, entityName)
	if !query.ValidField(collection) {
		return nil, fmt.Errorf("%w: collection %q", query.ErrInvalidField, collection)
	}

	logger := o.logger
	if logger == nil {
		logger = a.Logger()
	}

	return &Repository[T]{
		adapter:    a,
		codec:      codec,
		collection: collection,
		entityName: entityName,
		logger:     logger.With("collection", collection, "entity", entityName),
	}, nil
}

func resolveCollection[T any](o *options, entityName string) string {
	if o.collection != "" {
		return o.collection
	}
	if namer, ok := any(new(T)).(CollectionNamer); ok {
		if name := namer.CollectionName(); name != "" {
			return name
		}
	}
	return document.CollectionName(entityName)
}

// Collection returns the bound collection name
func (r *Repository[T]) Collection() string { return r.collection }

// EntityName returns the entity name the repository was defined for
func (r *Repository[T]) EntityName() string { return r.entityName }

// Adapter returns the adapter captured at definition
func (r *Repository[T]) Adapter() *adapter.Adapter { return r.adapter }

// ============================================================================
// COMMANDS
// ============================================================================

// Persist creates e when it has no id and updates it otherwise
func (r *Repository[T]) Persist(ctx context.Context, e *T) error {
	if e == nil {
		return r.runtime("persist", errNilEntity)
	}
	if r.codec.ID(e) == "" {
		return r.Create(ctx, e)
	}
	_, err := r.Update(ctx, e)
	return err
}

// Create inserts e. A store generated id is written back to e.
func (r *Repository[T]) Create(ctx context.Context, e *T) error {
	if e == nil {
		return r.runtime("create", errNilEntity)
	}
	doc := r.codec.Encode(e)

	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		return b.Insert(doc)
	})
	if err != nil {
		if driver.IsDuplicateID(err) {
			return fmt.Errorf("%w: %s/%s", ErrEntityExisted, r.collection, r.codec.ID(e))
		}
		return r.runtime("create", err)
	}
	w, err := r.write("create", res)
	if err != nil {
		return err
	}

	if r.codec.ID(e) == "" && len(w.GeneratedKeys) > 0 {
		r.codec.SetID(e, w.GeneratedKeys[0])
	}
	return nil
}

// CreateBatch creates each entity in order, stopping at the first failure.
// Entities created before the failure stay created.
func (r *Repository[T]) CreateBatch(ctx context.Context, entities []*T) error {
	for i, e := range entities {
		if err := r.Create(ctx, e); err != nil {
			return fmt.Errorf("create batch [%d]: %w", i, err)
		}
	}
	return nil
}

// Update replaces the stored document of e. It reports false when no document
// has e's id.
func (r *Repository[T]) Update(ctx context.Context, e *T) (bool, error) {
	id := r.codec.ID(e)
	if id == "" {
		return false, ErrNonPersistedEntity
	}
	doc := r.codec.Encode(e)

	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		return b.Replace(id, doc)
	})
	if err != nil {
		return false, r.runtime("update", err)
	}
	w, err := r.write("update", res)
	if err != nil {
		return false, err
	}
	return w.Matched(), nil
}

// Delete removes the stored document of e. It reports false when no document
// has e's id.
func (r *Repository[T]) Delete(ctx context.Context, e *T) (bool, error) {
	id := r.codec.ID(e)
	if id == "" {
		return false, ErrNonPersistedEntity
	}

	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		return b.DeleteByID(id)
	})
	if err != nil {
		return false, r.runtime("delete", err)
	}
	w, err := r.write("delete", res)
	if err != nil {
		return false, err
	}
	return w.Deleted > 0, nil
}

// Clear deletes every document of the collection. ok is false when the executor
// fails or reports errors; the cause is logged.
func (r *Repository[T]) Clear(ctx context.Context) (int64, bool) {
	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		return b.DeleteAll()
	})
	if err != nil {
		r.logger.Warn("clear failed", "error", err)
		return 0, false
	}
	if res.Write == nil {
		r.logger.Warn("clear failed", "error", fmt.Sprintf("unexpected %s result", res.Kind))
		return 0, false
	}
	if res.Write.Errors > 0 {
		r.logger.Warn("clear incomplete",
			"deleted", res.Write.Deleted, "errors", res.Write.Errors, "first_error", res.Write.FirstError)
		return res.Write.Deleted, false
	}
	return res.Write.Deleted, true
}

// ============================================================================
// QUERIES
// ============================================================================

// Find returns the entity with the given id
func (r *Repository[T]) Find(ctx context.Context, id any) (*T, error) {
	key, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}

	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		return b.Get(key)
	})
	if err != nil {
		return nil, r.runtime("find", err)
	}
	if res.Document == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrEntityNotFound, r.collection, key)
	}
	return r.codec.Decode(res.Document)
}

// Exists reports whether a document has the given id
func (r *Repository[T]) Exists(ctx context.Context, id any) (bool, error) {
	key, err := NormalizeID(id)
	if err != nil {
		return false, err
	}

	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		return b.Eq(query.IDField, key).Count()
	})
	if err != nil {
		return false, r.runtime("exists", err)
	}
	n, err := r.count("exists", res)
	return n > 0, err
}

// All returns every entity of the collection
func (r *Repository[T]) All(ctx context.Context) ([]*T, error) {
	c, err := r.Stream(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Collect()
}

// Stream returns a cursor over the whole collection
func (r *Repository[T]) Stream(ctx context.Context) (*Cursor[T], error) {
	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		return b.Find()
	})
	if err != nil {
		return nil, r.runtime("stream", err)
	}
	return r.cursor(ctx, "stream", res)
}

// First returns the entity with the smallest value of orderBy, id by default.
// ok is false when the collection is empty or the lookup fails.
func (r *Repository[T]) First(ctx context.Context, orderBy ...string) (*T, bool) {
	return r.edge(ctx, "first", false, orderBy)
}

// Last returns the entity with the largest value of orderBy, id by default
func (r *Repository[T]) Last(ctx context.Context, orderBy ...string) (*T, bool) {
	return r.edge(ctx, "last", true, orderBy)
}

func (r *Repository[T]) edge(ctx context.Context, op string, desc bool, orderBy []string) (*T, bool) {
	fields := orderBy
	if len(fields) == 0 {
		fields = []string{query.IDField}
	}

	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		for _, f := range fields {
			b.OrderBy(f, desc)
		}
		return b.First()
	})
	if err != nil {
		r.logger.Warn(op+" failed", "order_by", fields, "error", err)
		return nil, false
	}
	if res.Document == nil {
		return nil, false
	}
	e, err := r.codec.Decode(res.Document)
	if err != nil {
		r.logger.Warn(op+" failed", "order_by", fields, "error", err)
		return nil, false
	}
	return e, true
}

// Where returns the entities matching every filter entry, in the given order
func (r *Repository[T]) Where(ctx context.Context, filter query.Filter, orders ...query.Order) ([]*T, error) {
	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		b.Match(filter)
		for _, o := range orders {
			b.OrderBy(o.Field, o.Desc)
		}
		return b.List()
	})
	if err != nil {
		return nil, r.runtime("where", err)
	}
	return r.decodeAll(res.Documents)
}

// Count returns the number of documents in the collection
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	res, err := r.adapter.Execute(ctx, r.collection, func(b *query.Builder) *query.Builder {
		return b.Count()
	})
	if err != nil {
		return 0, r.runtime("count", err)
	}
	return r.count("count", res)
}

// QueryResult is the decoded outcome of Query. Kind tells which field is set.
type QueryResult[T any] struct {
	Kind     driver.Kind
	Entity   *T // KindDocument, nil when not found
	Entities []*T
	Cursor   *Cursor[T]
	Scalar   any
	Write    *driver.WriteResult
}

// Query hands a builder scoped to the collection to build and decodes what the
// resulting query returns. Streams are decoded lazily through a Cursor.
func (r *Repository[T]) Query(ctx context.Context, build func(*query.Builder) *query.Builder) (*QueryResult[T], error) {
	if build == nil {
		return nil, r.runtime("query", driver.ErrMissingQueryBuilder)
	}
	res, err := r.adapter.Execute(ctx, r.collection, build)
	if err != nil {
		return nil, r.runtime("query", err)
	}

	out := &QueryResult[T]{Kind: res.Kind}
	switch res.Kind {
	case driver.KindStream:
		out.Cursor, err = r.cursor(ctx, "query", res)
	case driver.KindDocuments:
		out.Entities, err = r.decodeAll(res.Documents)
	case driver.KindDocument:
		if res.Document != nil {
			out.Entity, err = r.codec.Decode(res.Document)
		}
	case driver.KindWrite:
		out.Write = res.Write
	default:
		out.Scalar = res.Scalar
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (r *Repository[T]) runtime(op string, err error) error {
	return &RuntimeError{Op: op, Collection: r.collection, Err: err}
}

func (r *Repository[T]) write(op string, res *driver.Result) (*driver.WriteResult, error) {
	if res.Write == nil {
		return nil, r.runtime(op, fmt.Errorf("unexpected %s result", res.Kind))
	}
	if res.Write.Errors > 0 {
		return nil, r.runtime(op, errors.New(res.Write.FirstError))
	}
	return res.Write, nil
}

func (r *Repository[T]) count(op string, res *driver.Result) (int64, error) {
	switch n := res.Scalar.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	}
	f, ok := query.ToFloat(res.Scalar)
	if !ok {
		return 0, r.runtime(op, fmt.Errorf("unexpected count %T", res.Scalar))
	}
	return int64(f), nil
}

func (r *Repository[T]) cursor(ctx context.Context, op string, res *driver.Result) (*Cursor[T], error) {
	switch {
	case res.Stream != nil:
		return NewCursor(ctx, res.Stream, r.codec.Decode), nil
	case res.Kind == driver.KindDocuments:
		return NewCursor(ctx, driver.SliceStream(res.Documents), r.codec.Decode), nil
	}
	return nil, r.runtime(op, fmt.Errorf("unexpected %s result", res.Kind))
}

func (r *Repository[T]) decodeAll(docs []document.Document) ([]*T, error) {
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		e, err := r.codec.Decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
