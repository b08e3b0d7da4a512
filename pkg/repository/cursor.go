package repository

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/driver"
)

// Cursor decodes the documents of a stream into entities as they are read.
// It is single-pass: once exhausted or closed it yields nothing. Not safe for
// concurrent use.
type Cursor[T any] struct {
	ctx    context.Context
	stream driver.Stream
	decode func(document.Document) (*T, error)
	done   bool
}

// NewCursor wraps stream; decode runs once per document, in stream order
func NewCursor[T any](ctx context.Context, stream driver.Stream, decode func(document.Document) (*T, error)) *Cursor[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Cursor[T]{ctx: ctx, stream: stream, decode: decode}
}

// Next returns the next entity. ok is false once the stream is exhausted.
func (c *Cursor[T]) Next(ctx context.Context) (*T, bool, error) {
	if c.done || c.stream == nil {
		return nil, false, nil
	}
	doc, err := c.stream.Next(ctx)
	if errors.Is(err, io.EOF) {
		c.finish()
		return nil, false, nil
	}
	if err != nil {
		c.finish()
		return nil, false, err
	}
	e, err := c.decode(doc)
	if err != nil {
		c.finish()
		return nil, false, err
	}
	return e, true, nil
}

// Each calls fn for every remaining entity, stopping at the first error
func (c *Cursor[T]) Each(fn func(*T) error) error {
	if fn == nil {
		return ErrNilConsumer
	}
	for {
		e, ok, err := c.Next(c.ctx)
		if err != nil || !ok {
			return err
		}
		if err := fn(e); err != nil {
			c.finish()
			return err
		}
	}
}

// Collect reads every remaining entity. The slice is empty, not nil, when nothing is left.
func (c *Cursor[T]) Collect() ([]*T, error) {
	out := []*T{}
	err := c.Each(func(e *T) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// All ranges over the remaining entities. An error is yielded once, last.
func (c *Cursor[T]) All() iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for {
			e, ok, err := c.Next(c.ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(e, nil) {
				c.finish()
				return
			}
		}
	}
}

// Close releases the stream
func (c *Cursor[T]) Close() error {
	if c.done || c.stream == nil {
		c.done = true
		return nil
	}
	c.done = true
	return c.stream.Close()
}

func (c *Cursor[T]) finish() {
	_ = c.Close()
}
