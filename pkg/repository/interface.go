package repository

import (
	"context"

	"github.com/ammar0144/doc4go/pkg/adapter"
	"github.com/ammar0144/doc4go/pkg/query"
)

// Store is the operation set of a Repository, for callers that want to swap in fakes
type Store[T any] interface {
	// Commands
	Persist(ctx context.Context, e *T) error
	Create(ctx context.Context, e *T) error
	CreateBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, e *T) (bool, error)
	Delete(ctx context.Context, e *T) (bool, error)
	Clear(ctx context.Context) (int64, bool)

	// Queries
	Find(ctx context.Context, id any) (*T, error)
	Exists(ctx context.Context, id any) (bool, error)
	All(ctx context.Context) ([]*T, error)
	Stream(ctx context.Context) (*Cursor[T], error)
	First(ctx context.Context, orderBy ...string) (*T, bool)
	Last(ctx context.Context, orderBy ...string) (*T, bool)
	Where(ctx context.Context, filter query.Filter, orders ...query.Order) ([]*T, error)
	Count(ctx context.Context) (int64, error)
	Query(ctx context.Context, build func(*query.Builder) *query.Builder) (*QueryResult[T], error)

	// Binding
	Collection() string
	EntityName() string
	Adapter() *adapter.Adapter
}

var _ Store[Base] = (*Repository[Base])(nil)
