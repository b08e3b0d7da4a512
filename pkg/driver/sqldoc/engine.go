// Package sqldoc runs document queries against SQL databases.
//
// Every collection is a table of two columns: id (primary key) and data, a JSON
// object holding every other document field. Filters and ordering on document fields
// go through the database's JSON functions, described by a Dialect. Tables are
// created on first use.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/query"
)

// Dialect describes one database's SQL for document tables
type Dialect interface {
	query.Dialect

	// CreateTableSQL returns DDL creating table if it does not exist
	CreateTableSQL(table string) string
	// InsertSQL binds id then data
	InsertSQL(table string) string
	// ReplaceSQL binds data then id
	ReplaceSQL(table string) string
	// IsDuplicate reports whether err is a primary key violation
	IsDuplicate(err error) bool
}

// TableCreator creates a collection table; it replaces Dialect.CreateTableSQL when set
type TableCreator func(ctx context.Context, table string) error

// Option configures an Engine
type Option func(*Engine)

// WithTableCreator overrides how tables are created
func WithTableCreator(fn TableCreator) Option {
	return func(e *Engine) { e.createTable = fn }
}

// WithBufferedStreams makes Find read every row before returning.
// Databases limited to one connection need it so an open stream cannot block writes.
func WithBufferedStreams() Option {
	return func(e *Engine) { e.buffered = true }
}

// Engine implements driver.Driver on top of a Conn and a Dialect
type Engine struct {
	name        string
	conn        Conn
	dialect     Dialect
	createTable TableCreator
	buffered    bool

	mu     sync.Mutex
	tables map[string]bool
}

// New creates an engine reporting name as its driver name
func New(name string, conn Conn, dialect Dialect, opts ...Option) *Engine {
	e := &Engine{
		name:    name,
		conn:    conn,
		dialect: dialect,
		tables:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.createTable == nil {
		e.createTable = func(ctx context.Context, table string) error {
			_, err := e.conn.Exec(ctx, e.dialect.CreateTableSQL(table))
			return err
		}
	}
	return e
}

// Name returns the driver name
func (e *Engine) Name() string {
	return e.name
}

// Conn returns the underlying connection
func (e *Engine) Conn() Conn {
	return e.conn
}

// Ping checks the connection
func (e *Engine) Ping(ctx context.Context) error {
	return e.conn.Ping(ctx)
}

// Close closes the connection
func (e *Engine) Close() error {
	return e.conn.Close()
}

// Run executes q
func (e *Engine) Run(ctx context.Context, q *query.Query, opts driver.RunOptions) (*driver.Result, error) {
	if !query.ValidField(q.Collection) {
		return nil, fmt.Errorf("%w: collection %q", query.ErrInvalidQuery, q.Collection)
	}

	ctx, cancel := driver.WithTimeout(ctx, opts)
	if err := e.ensureTable(ctx, q.Collection); err != nil {
		cancel()
		return nil, err
	}

	if q.Op == query.OpFind && !e.buffered {
		// the stream owns cancel
		return e.stream(ctx, cancel, q)
	}
	defer cancel()

	switch q.Op {
	case query.OpInsert:
		return e.insert(ctx, q, opts)
	case query.OpReplace:
		return e.replace(ctx, q, opts)
	case query.OpDelete:
		return e.deleteByID(ctx, q, opts)
	case query.OpDeleteAll:
		return e.deleteAll(ctx, q, opts)
	case query.OpCount:
		return e.count(ctx, q)
	case query.OpSum, query.OpAvg:
		return e.aggregate(ctx, q)
	}

	docs, err := e.selectDocs(ctx, q)
	if err != nil {
		return nil, err
	}
	return driver.Finish(q, docs)
}

func (e *Engine) ensureTable(ctx context.Context, table string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tables[table] {
		return nil
	}
	if err := e.createTable(ctx, table); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	e.tables[table] = true
	return nil
}

func (e *Engine) exec(ctx context.Context, q *query.Query, opts driver.RunOptions, stmt string, args ...interface{}) (int64, error) {
	if driver.EffectiveDurability(q, opts) == driver.DurabilitySoft {
		if sw, ok := e.conn.(SoftWriter); ok {
			return sw.ExecSoft(ctx, stmt, args...)
		}
	}
	return e.conn.Exec(ctx, stmt, args...)
}

func (e *Engine) insert(ctx context.Context, q *query.Query, opts driver.RunOptions) (*driver.Result, error) {
	doc := document.Document(q.Document)
	id := doc.ID()
	var generated []string
	if id == "" {
		id = uuid.NewString()
		generated = []string{id}
	}

	data, err := encodeData(doc)
	if err != nil {
		return nil, err
	}

	if _, err := e.exec(ctx, q, opts, e.dialect.InsertSQL(q.Collection), id, data); err != nil {
		if e.dialect.IsDuplicate(err) {
			return nil, fmt.Errorf("%w: %s/%s", driver.ErrDuplicateID, q.Collection, id)
		}
		return nil, fmt.Errorf("insert into %s: %w", q.Collection, err)
	}

	return &driver.Result{Kind: driver.KindWrite, Write: &driver.WriteResult{
		Inserted:      1,
		GeneratedKeys: generated,
	}}, nil
}

func (e *Engine) replace(ctx context.Context, q *query.Query, opts driver.RunOptions) (*driver.Result, error) {
	data, err := encodeData(q.Document)
	if err != nil {
		return nil, err
	}
	n, err := e.exec(ctx, q, opts, e.dialect.ReplaceSQL(q.Collection), data, q.ID)
	if err != nil {
		return nil, fmt.Errorf("replace in %s: %w", q.Collection, err)
	}
	return &driver.Result{Kind: driver.KindWrite, Write: &driver.WriteResult{Replaced: n}}, nil
}

func (e *Engine) deleteByID(ctx context.Context, q *query.Query, opts driver.RunOptions) (*driver.Result, error) {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = %s", q.Collection, e.dialect.Placeholder(1))
	n, err := e.exec(ctx, q, opts, stmt, q.ID)
	if err != nil {
		return nil, fmt.Errorf("delete from %s: %w", q.Collection, err)
	}
	return &driver.Result{Kind: driver.KindWrite, Write: &driver.WriteResult{Deleted: n}}, nil
}

func (e *Engine) deleteAll(ctx context.Context, q *query.Query, opts driver.RunOptions) (*driver.Result, error) {
	where, err := query.RenderWhere(e.dialect, q, 0)
	if err != nil {
		return nil, err
	}
	stmt := "DELETE FROM " + q.Collection
	if where.SQL != "" {
		stmt += " WHERE " + where.SQL
	}
	n, err := e.exec(ctx, q, opts, stmt, where.Args...)
	if err != nil {
		return nil, fmt.Errorf("delete from %s: %w", q.Collection, err)
	}
	return &driver.Result{Kind: driver.KindWrite, Write: &driver.WriteResult{Deleted: n}}, nil
}

func (e *Engine) count(ctx context.Context, q *query.Query) (*driver.Result, error) {
	stmt, err := query.RenderSelect(e.dialect, q.Collection, "COUNT(*)", unpaged(q))
	if err != nil {
		return nil, err
	}

	var n int64
	if err := e.scalar(ctx, stmt, &n); err != nil {
		return nil, err
	}
	return &driver.Result{Kind: driver.KindScalar, Scalar: n}, nil
}

func (e *Engine) aggregate(ctx context.Context, q *query.Query) (*driver.Result, error) {
	fn := "SUM"
	if q.Op == query.OpAvg {
		fn = "AVG"
	}
	expr := fmt.Sprintf("%s(%s)", fn, e.dialect.NumericExpr(q.Field))
	stmt, err := query.RenderSelect(e.dialect, q.Collection, expr, unpaged(q))
	if err != nil {
		return nil, err
	}

	var v sql.NullFloat64
	if err := e.scalar(ctx, stmt, &v); err != nil {
		return nil, err
	}
	switch {
	case v.Valid:
		return &driver.Result{Kind: driver.KindScalar, Scalar: v.Float64}, nil
	case q.Op == query.OpSum:
		return &driver.Result{Kind: driver.KindScalar, Scalar: 0.0}, nil
	default:
		return &driver.Result{Kind: driver.KindScalar, Scalar: nil}, nil
	}
}

func (e *Engine) scalar(ctx context.Context, stmt query.Statement, dest interface{}) error {
	rows, err := e.conn.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("query: %w", err)
		}
		return fmt.Errorf("query: no rows")
	}
	if err := rows.Scan(dest); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return rows.Err()
}

func (e *Engine) selectQuery(q *query.Query) (query.Statement, error) {
	if q.Op == query.OpGet {
		scoped := *q
		scoped.Where = &query.ConditionGroup{
			Operator:   query.And,
			Conditions: []interface{}{query.Condition{Field: query.IDField, Operator: query.Equal, Value: q.ID}},
		}
		if q.HasWhere() {
			scoped.Where.Conditions = append(scoped.Where.Conditions, q.Where)
		}
		q = &scoped
	}
	return query.RenderSelect(e.dialect, q.Collection, "id, data", q)
}

func (e *Engine) selectDocs(ctx context.Context, q *query.Query) ([]document.Document, error) {
	stmt, err := e.selectQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := e.conn.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	s := &rowStream{rows: rows}
	docs, err := driver.Drain(ctx, s)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []document.Document{}
	}
	return docs, nil
}

func (e *Engine) stream(ctx context.Context, cancel context.CancelFunc, q *query.Query) (*driver.Result, error) {
	stmt, err := e.selectQuery(q)
	if err != nil {
		cancel()
		return nil, err
	}
	rows, err := e.conn.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return &driver.Result{
		Kind:   driver.KindStream,
		Stream: &rowStream{rows: rows, cancel: cancel, pluck: q.Pluck},
	}, nil
}

// unpaged drops ordering and paging, which aggregates ignore
func unpaged(q *query.Query) *query.Query {
	c := *q
	c.Orders = nil
	c.Limit = 0
	c.Offset = 0
	c.Op = query.OpCount
	return &c
}

// encodeData serialises every field except id
func encodeData(doc map[string]interface{}) (string, error) {
	data := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k == query.IDField {
			continue
		}
		data[k] = v
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(b), nil
}

// rowStream reads (id, data) rows lazily
type rowStream struct {
	rows   Rows
	cancel context.CancelFunc
	pluck  []string
	done   bool
}

func (s *rowStream) Next(ctx context.Context) (document.Document, error) {
	if s.done {
		return nil, io.EOF
	}
	if !s.rows.Next() {
		err := s.rows.Err()
		s.Close()
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
		return nil, io.EOF
	}

	var id string
	var data []byte
	if err := s.rows.Scan(&id, &data); err != nil {
		s.Close()
		return nil, fmt.Errorf("scan row: %w", err)
	}
	doc := make(document.Document)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			s.Close()
			return nil, fmt.Errorf("decode row %s: %w", id, err)
		}
	}
	doc[query.IDField] = id
	return document.Document(query.Project(doc, s.pluck)), nil
}

func (s *rowStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.rows.Close()
	if s.cancel != nil {
		s.cancel()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// JSONArg encodes v as JSON text for dialects that compare against JSON values
func JSONArg(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
