// Package driver defines the query executor contract between adapters and stores.
//
// A Driver runs one finished query.Query and returns a tagged Result. Lookups that
// match nothing return a KindDocument result with a nil Document, never an error.
// Identity collisions are reported as ErrDuplicateID; anything else a driver
// returns is an infrastructure failure.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/query"
)

// Sentinel errors shared by all drivers
var (
	// ErrMissingQueryBuilder is returned when Execute is called without a build function
	ErrMissingQueryBuilder = errors.New("missing query builder")

	// ErrDuplicateID is returned when an insert collides with an existing identity
	ErrDuplicateID = errors.New("duplicate document id")

	// ErrClosed is returned by a driver after Close
	ErrClosed = errors.New("driver closed")

	// ErrUnsupported is returned for a query op the driver cannot run
	ErrUnsupported = errors.New("unsupported operation")
)

// IsDuplicateID checks if error is ErrDuplicateID
func IsDuplicateID(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}

// IsMissingQueryBuilder checks if error is ErrMissingQueryBuilder
func IsMissingQueryBuilder(err error) bool {
	return errors.Is(err, ErrMissingQueryBuilder)
}

// Durability selects how strongly a write must be persisted before it returns
type Durability string

const (
	DurabilityHard Durability = "hard"
	DurabilitySoft Durability = "soft"
)

// RunOptions apply to every query an adapter runs
type RunOptions struct {
	Durability Durability
	TimeFormat document.TimeFormat
	Timeout    time.Duration // per round trip, 0 means none
}

// DefaultRunOptions returns hard durability, native times and a 30s timeout
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Durability: DurabilityHard,
		TimeFormat: document.TimeNative,
		Timeout:    30 * time.Second,
	}
}

// Kind tags which field of a Result is set
type Kind int

const (
	KindDocument  Kind = iota // Document, nil when not found
	KindDocuments             // Documents
	KindStream                // Stream
	KindScalar                // Scalar
	KindWrite                 // Write
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindDocuments:
		return "documents"
	case KindStream:
		return "stream"
	case KindScalar:
		return "scalar"
	case KindWrite:
		return "write"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// WriteResult reports what a write did
type WriteResult struct {
	Inserted      int64
	Replaced      int64
	Unchanged     int64
	Deleted       int64
	Errors        int64
	FirstError    string
	GeneratedKeys []string
}

// Matched reports whether a replace or delete touched an existing document
func (w *WriteResult) Matched() bool {
	return w.Replaced+w.Unchanged+w.Deleted > 0
}

// Result is the raw outcome of one query
type Result struct {
	Kind      Kind
	Document  document.Document
	Documents []document.Document
	Stream    Stream
	Scalar    interface{}
	Write     *WriteResult
}

// Stream yields documents one at a time. Next returns io.EOF when exhausted.
// A stream is single-pass and owned by one consumer.
type Stream interface {
	Next(ctx context.Context) (document.Document, error)
	Close() error
}

// Driver runs queries against one database
type Driver interface {
	// Name identifies the driver in logs, metrics and spans
	Name() string
	Run(ctx context.Context, q *query.Query, opts RunOptions) (*Result, error)
	Ping(ctx context.Context) error
	Close() error
}

// WithTimeout bounds ctx by opts.Timeout when set
func WithTimeout(ctx context.Context, opts RunOptions) (context.Context, context.CancelFunc) {
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// EffectiveDurability returns the query's durability override or the default
func EffectiveDurability(q *query.Query, opts RunOptions) Durability {
	if q.Durability != "" {
		return Durability(q.Durability)
	}
	if opts.Durability == "" {
		return DurabilityHard
	}
	return opts.Durability
}

// SliceStream streams an in-memory list
func SliceStream(docs []document.Document) Stream {
	return &sliceStream{docs: docs}
}

type sliceStream struct {
	docs []document.Document
	pos  int
}

func (s *sliceStream) Next(ctx context.Context) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.docs) {
		return nil, io.EOF
	}
	doc := s.docs[s.pos]
	s.docs[s.pos] = nil
	s.pos++
	return doc, nil
}

func (s *sliceStream) Close() error {
	s.pos = len(s.docs)
	return nil
}

// Drain reads a stream to the end and closes it
func Drain(ctx context.Context, s Stream) ([]document.Document, error) {
	defer s.Close()
	var docs []document.Document
	for {
		doc, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
}

// Finish shapes a list of matched documents into the result the query's op asks for.
// Drivers that materialise rows use it for every read op.
func Finish(q *query.Query, docs []document.Document) (*Result, error) {
	switch q.Op {
	case query.OpGet, query.OpFirst, query.OpList, query.OpFind:
		for i, doc := range docs {
			docs[i] = document.Document(query.Project(doc, q.Pluck))
		}
	}

	switch q.Op {
	case query.OpGet, query.OpFirst:
		if len(docs) == 0 {
			return &Result{Kind: KindDocument}, nil
		}
		return &Result{Kind: KindDocument, Document: docs[0]}, nil
	case query.OpList:
		if docs == nil {
			docs = []document.Document{}
		}
		return &Result{Kind: KindDocuments, Documents: docs}, nil
	case query.OpFind:
		return &Result{Kind: KindStream, Stream: SliceStream(docs)}, nil
	case query.OpCount:
		return &Result{Kind: KindScalar, Scalar: int64(len(docs))}, nil
	case query.OpSum, query.OpAvg:
		var sum float64
		var n int
		for _, doc := range docs {
			if f, ok := query.ToFloat(doc[q.Field]); ok {
				sum += f
				n++
			}
		}
		if q.Op == query.OpSum {
			return &Result{Kind: KindScalar, Scalar: sum}, nil
		}
		if n == 0 {
			return &Result{Kind: KindScalar, Scalar: nil}, nil
		}
		return &Result{Kind: KindScalar, Scalar: sum / float64(n)}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, q.Op)
}
