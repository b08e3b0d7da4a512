// Package adapter binds a driver to the run options, logger and tracer every query
// of a repository goes through.
package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/log"
	"github.com/ammar0144/doc4go/pkg/query"
)

// TracerName names the tracer used when none is given
const TracerName = "github.com/ammar0144/doc4go"

// Span attribute keys
const (
	TraceAttributeDriver     = "db.system"
	TraceAttributeCollection = "db.collection.name"
	TraceAttributeOperation  = "db.operation.name"
	TraceAttributeDurability = "doc4go.durability"
)

// Adapter executes queries against one driver
type Adapter struct {
	driver driver.Driver
	opts   driver.RunOptions
	logger *log.Logger
	tracer trace.Tracer
}

// Option configures an Adapter
type Option func(*Adapter)

// WithRunOptions replaces the default run options
func WithRunOptions(opts driver.RunOptions) Option {
	return func(a *Adapter) { a.opts = opts }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer sets the tracer; the global provider's tracer is used otherwise
func WithTracer(t trace.Tracer) Option {
	return func(a *Adapter) {
		if t != nil {
			a.tracer = t
		}
	}
}

// New creates an adapter over d
func New(d driver.Driver, opts ...Option) *Adapter {
	a := &Adapter{
		driver: d,
		opts:   driver.DefaultRunOptions(),
		logger: log.Nop(),
		tracer: otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Driver returns the driver queries run on, decorators included
func (a *Adapter) Driver() driver.Driver { return a.driver }

// RunOptions returns the defaults applied to every query
func (a *Adapter) RunOptions() driver.RunOptions { return a.opts }

// Logger returns the adapter's logger
func (a *Adapter) Logger() *log.Logger { return a.logger }

// Ping checks the driver's connection
func (a *Adapter) Ping(ctx context.Context) error {
	return a.driver.Ping(ctx)
}

// Close releases the driver
func (a *Adapter) Close() error {
	return a.driver.Close()
}

// Execute hands a builder scoped to collection to build and runs the query it returns.
// A nil build, or one that returns nil, fails with driver.ErrMissingQueryBuilder.
func (a *Adapter) Execute(ctx context.Context, collection string, build func(*query.Builder) *query.Builder) (*driver.Result, error) {
	if build == nil {
		return nil, driver.ErrMissingQueryBuilder
	}
	b := build(query.NewBuilder(collection))
	if b == nil {
		return nil, driver.ErrMissingQueryBuilder
	}
	q, err := b.Build()
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, q)
}

// Run executes a finished query
func (a *Adapter) Run(ctx context.Context, q *query.Query) (res *driver.Result, err error) {
	durability := driver.EffectiveDurability(q, a.opts)
	ctx, span := a.tracer.Start(ctx, "doc4go."+string(q.Op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(TraceAttributeDriver, a.driver.Name()),
			attribute.String(TraceAttributeCollection, q.Collection),
			attribute.String(TraceAttributeOperation, string(q.Op)),
		),
	)
	if q.Op.IsWrite() {
		span.SetAttributes(attribute.String(TraceAttributeDurability, string(durability)))
	}

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.logger.Debug("query failed",
				"driver", a.driver.Name(), "collection", q.Collection, "op", q.Op,
				"duration", elapsed, "error", err)
		} else {
			a.logger.Debug("query executed",
				"driver", a.driver.Name(), "collection", q.Collection, "op", q.Op,
				"duration", elapsed, "kind", res.Kind.String())
		}
		span.End()
	}()

	res, err = a.driver.Run(ctx, q, a.opts)
	if err == nil && res == nil {
		err = fmt.Errorf("driver %s returned no result for %s", a.driver.Name(), q.Op)
	}
	return res, err
}
