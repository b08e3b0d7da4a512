// Package memory is an in-process document store.
//
// Documents are kept msgpack-encoded so callers never share mutable state with the
// store. Databases are process-wide: drivers opened on the same database name see the
// same collections until Drop is called.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/query"
)

// DriverName is the name memory drivers report
const DriverName = "memory"

type collection struct {
	ids  []string // insertion order
	docs map[string][]byte
}

type store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var (
	databasesMu sync.Mutex
	databases   = make(map[string]*store)
)

func open(database string) *store {
	databasesMu.Lock()
	defer databasesMu.Unlock()

	s, ok := databases[database]
	if !ok {
		s = &store{collections: make(map[string]*collection)}
		databases[database] = s
	}
	return s
}

// Drop forgets every collection of database
func Drop(database string) {
	databasesMu.Lock()
	defer databasesMu.Unlock()
	delete(databases, database)
}

// Driver runs queries against an in-process database
type Driver struct {
	database string
	store    *store

	mu     sync.RWMutex
	closed bool
}

// New opens the named in-process database
func New(database string) *Driver {
	return &Driver{
		database: database,
		store:    open(database),
	}
}

// Name returns "memory"
func (d *Driver) Name() string {
	return DriverName
}

// Database returns the database name
func (d *Driver) Database() string {
	return d.database
}

// Ping fails only after Close
func (d *Driver) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return driver.ErrClosed
	}
	return ctx.Err()
}

// Close detaches the driver; the database itself survives
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Run executes q
func (d *Driver) Run(ctx context.Context, q *query.Query, opts driver.RunOptions) (*driver.Result, error) {
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	switch q.Op {
	case query.OpInsert:
		return d.insert(q)
	case query.OpReplace:
		return d.replace(q)
	case query.OpDelete:
		return d.deleteByID(q)
	case query.OpDeleteAll:
		return d.deleteAll(q)
	}

	docs, err := d.scan(q)
	if err != nil {
		return nil, err
	}
	return driver.Finish(q, docs)
}

func (d *Driver) insert(q *query.Query) (*driver.Result, error) {
	doc := make(document.Document, len(q.Document)+1)
	for k, v := range q.Document {
		doc[k] = v
	}
	id := doc.ID()
	var generated []string
	if id == "" {
		id = uuid.NewString()
		generated = []string{id}
	}
	doc[query.IDField] = id

	data, err := encode(doc)
	if err != nil {
		return nil, err
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	c := d.store.collection(q.Collection)
	if _, exists := c.docs[id]; exists {
		return nil, fmt.Errorf("%w: %s/%s", driver.ErrDuplicateID, q.Collection, id)
	}
	c.ids = append(c.ids, id)
	c.docs[id] = data

	return &driver.Result{Kind: driver.KindWrite, Write: &driver.WriteResult{
		Inserted:      1,
		GeneratedKeys: generated,
	}}, nil
}

func (d *Driver) replace(q *query.Query) (*driver.Result, error) {
	doc := make(document.Document, len(q.Document)+1)
	for k, v := range q.Document {
		doc[k] = v
	}
	doc[query.IDField] = q.ID

	data, err := encode(doc)
	if err != nil {
		return nil, err
	}

	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	w := &driver.WriteResult{}
	c := d.store.collection(q.Collection)
	old, exists := c.docs[q.ID]
	switch {
	case !exists:
	case bytes.Equal(old, data):
		w.Unchanged = 1
	default:
		c.docs[q.ID] = data
		w.Replaced = 1
	}
	return &driver.Result{Kind: driver.KindWrite, Write: w}, nil
}

func (d *Driver) deleteByID(q *query.Query) (*driver.Result, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	w := &driver.WriteResult{}
	c := d.store.collection(q.Collection)
	if _, exists := c.docs[q.ID]; exists {
		c.remove(map[string]bool{q.ID: true})
		w.Deleted = 1
	}
	return &driver.Result{Kind: driver.KindWrite, Write: w}, nil
}

func (d *Driver) deleteAll(q *query.Query) (*driver.Result, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	w := &driver.WriteResult{}
	c := d.store.collection(q.Collection)
	doomed := make(map[string]bool)
	for _, id := range c.ids {
		if q.HasWhere() {
			doc, err := decode(c.docs[id])
			if err != nil {
				w.Errors++
				if w.FirstError == "" {
					w.FirstError = err.Error()
				}
				continue
			}
			if !query.Match(doc, q.Where) {
				continue
			}
		}
		doomed[id] = true
	}
	c.remove(doomed)
	w.Deleted = int64(len(doomed))
	return &driver.Result{Kind: driver.KindWrite, Write: w}, nil
}

// scan returns the matching documents in query order, paged
func (d *Driver) scan(q *query.Query) ([]document.Document, error) {
	d.store.mu.RLock()
	c, ok := d.store.collections[q.Collection]
	var raw [][]byte
	if ok {
		if q.Op == query.OpGet {
			if data, found := c.docs[q.ID]; found {
				raw = append(raw, data)
			}
		} else {
			raw = make([][]byte, 0, len(c.ids))
			for _, id := range c.ids {
				raw = append(raw, c.docs[id])
			}
		}
	}
	d.store.mu.RUnlock()

	docs := make([]document.Document, 0, len(raw))
	for _, data := range raw {
		doc, err := decode(data)
		if err != nil {
			return nil, err
		}
		if query.Match(doc, q.Where) {
			docs = append(docs, doc)
		}
	}

	if len(q.Orders) > 0 {
		sort.SliceStable(docs, func(i, j int) bool {
			for _, o := range q.Orders {
				cmp := query.Compare(docs[i][o.Field], docs[j][o.Field])
				if cmp == 0 {
					continue
				}
				if o.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	switch q.Op {
	case query.OpCount, query.OpSum, query.OpAvg:
		// aggregates ignore paging
		return docs, nil
	}

	if q.Offset > 0 {
		if q.Offset >= len(docs) {
			return nil, nil
		}
		docs = docs[q.Offset:]
	}
	limit := q.Limit
	if q.Op == query.OpFirst {
		limit = 1
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *store) collection(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string][]byte)}
		s.collections[name] = c
	}
	return c
}

func (c *collection) remove(ids map[string]bool) {
	if len(ids) == 0 {
		return
	}
	kept := c.ids[:0]
	for _, id := range c.ids {
		if ids[id] {
			delete(c.docs, id)
			continue
		}
		kept = append(kept, id)
	}
	c.ids = kept
}

// encode sorts map keys so equal documents encode to equal bytes
func encode(doc document.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(map[string]interface{}(doc)); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (document.Document, error) {
	var doc map[string]interface{}
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return document.Document(doc), nil
}
