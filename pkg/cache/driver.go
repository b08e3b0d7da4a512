package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/log"
	"github.com/ammar0144/doc4go/pkg/query"
)

const cacheKeyHashLength = 12

// Driver is a read-through cache around another driver
type Driver struct {
	next     driver.Driver
	cache    *Manager
	database string
	logger   *log.Logger
}

// Wrap puts the cache in front of next. Keys are namespaced by database so two
// adapters sharing one Redis never see each other's entries.
func Wrap(next driver.Driver, m *Manager, database string, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Nop()
	}
	return &Driver{
		next:     next,
		cache:    m,
		database: database,
		logger:   logger.With("component", "cache", "driver", next.Name()),
	}
}

// Name reports the wrapped driver's name
func (d *Driver) Name() string {
	return d.next.Name()
}

// Unwrap returns the wrapped driver
func (d *Driver) Unwrap() driver.Driver {
	return d.next
}

// Manager returns the cache manager
func (d *Driver) Manager() *Manager {
	return d.cache
}

// Ping checks the wrapped driver; an unreachable cache is only logged
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.cache.Ping(ctx); err != nil {
		d.logger.Warn("cache ping failed", "error", err)
	}
	return d.next.Ping(ctx)
}

func (d *Driver) Close() error {
	return errors.Join(d.next.Close(), d.cache.Close())
}

func (d *Driver) Run(ctx context.Context, q *query.Query, opts driver.RunOptions) (*driver.Result, error) {
	if !d.cache.config.Enabled {
		return d.next.Run(ctx, q, opts)
	}

	if q.Op.IsWrite() {
		res, err := d.next.Run(ctx, q, opts)
		// a failed delete_all may still have removed documents
		d.Invalidate(ctx, q.Collection)
		return res, err
	}

	if q.Op != query.OpGet && q.Op != query.OpCount {
		d.cache.recordBypass()
		return d.next.Run(ctx, q, opts)
	}

	key, err := d.queryKey(q)
	if err != nil {
		d.logger.Warn("cache key failed", "collection", q.Collection, "error", err)
		d.cache.recordBypass()
		return d.next.Run(ctx, q, opts)
	}

	if res, ok := d.lookup(ctx, key, q); ok {
		return res, nil
	}

	res, err := d.next.Run(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	d.store(ctx, key, res)
	return res, nil
}

// Invalidate drops every cached result of collection
func (d *Driver) Invalidate(ctx context.Context, collection string) {
	pattern := escapePattern(d.collectionKey(collection)) + cacheKeySeparator + "*"
	n, err := d.cache.InvalidatePattern(ctx, pattern)
	if err != nil {
		d.logger.Warn("cache invalidation failed", "collection", collection, "error", err)
		return
	}
	d.logger.Debug("cache invalidated", "collection", collection, "keys", n)
}

// entry is the cached payload of one read
type entry struct {
	Found bool                   `msgpack:"f"`
	Doc   map[string]interface{} `msgpack:"d,omitempty"`
	Count int64                  `msgpack:"c,omitempty"`
}

func (d *Driver) lookup(ctx context.Context, key string, q *query.Query) (*driver.Result, bool) {
	data, err := d.cache.Get(ctx, key)
	if err != nil {
		if !IsKeyNotFound(err) {
			d.logger.Warn("cache read failed", "collection", q.Collection, "error", err)
		}
		return nil, false
	}

	var e entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		d.logger.Warn("cache decode failed", "collection", q.Collection,
			"error", fmt.Errorf("%w: %v", ErrSerializationFailed, err))
		return nil, false
	}

	if q.Op == query.OpCount {
		return &driver.Result{Kind: driver.KindScalar, Scalar: e.Count}, true
	}
	if !e.Found {
		return &driver.Result{Kind: driver.KindDocument}, true
	}
	return &driver.Result{Kind: driver.KindDocument, Document: document.Document(e.Doc)}, true
}

func (d *Driver) store(ctx context.Context, key string, res *driver.Result) {
	var e entry
	ttl := d.cache.config.DefaultTTL

	switch res.Kind {
	case driver.KindScalar:
		n, ok := res.Scalar.(int64)
		if !ok {
			return
		}
		e.Found, e.Count = true, n
	case driver.KindDocument:
		if res.Document == nil {
			ttl = d.cache.config.NullCacheTTL
			if ttl <= 0 {
				return
			}
		} else {
			e.Found, e.Doc = true, res.Document
		}
	default:
		return
	}

	data, err := msgpack.Marshal(&e)
	if err != nil {
		d.logger.Warn("cache encode failed", "error", fmt.Errorf("%w: %v", ErrSerializationFailed, err))
		return
	}
	if err := d.cache.SetWithTTL(ctx, key, data, ttl); err != nil {
		d.logger.Warn("cache write failed", "error", err)
	}
}

func (d *Driver) collectionKey(collection string) string {
	return d.cache.Key(d.database, collection)
}

// queryKey hashes everything that shapes a cacheable result
func (d *Driver) queryKey(q *query.Query) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(struct {
		ID    string
		Where *query.ConditionGroup
		Pluck []string
	}{q.ID, q.Where, q.Pluck})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	hash := fmt.Sprintf("%016x", xxhash.Sum64(buf.Bytes()))
	return d.collectionKey(q.Collection) + cacheKeySeparator + string(q.Op) +
		cacheKeySeparator + hash[:cacheKeyHashLength], nil
}

var patternEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapePattern keeps glob characters in key names literal inside a SCAN pattern
func escapePattern(s string) string {
	return patternEscaper.Replace(s)
}
