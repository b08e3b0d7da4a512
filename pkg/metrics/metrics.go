// Package metrics exports Prometheus metrics for document queries and the read cache.
package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/ammar0144/doc4go/pkg/cache"
	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/query"
)

// Config controls metrics collection
type Config struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
}

// DefaultConfig returns metrics disabled under the doc4go namespace
func DefaultConfig() *Config {
	return &Config{Namespace: "doc4go"}
}

// Metrics owns a registry and the query collectors registered in it
type Metrics struct {
	registry *prometheus.Registry

	queryDuration *prometheus.HistogramVec
	queryTotal    *prometheus.CounterVec
	queryErrors   *prometheus.CounterVec
}

// New creates the query collectors in a fresh registry
func New(cfg *Config) *Metrics {
	ns := "doc4go"
	if cfg != nil && cfg.Namespace != "" {
		ns = cfg.Namespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "query_duration_seconds",
				Help:      "Query round trip time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"driver", "op"},
		),
		queryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "query_total",
				Help:      "Queries run, by collection and op",
			},
			[]string{"driver", "collection", "op"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "query_errors_total",
				Help:      "Queries that failed, by collection, op and reason",
			},
			[]string{"driver", "collection", "op", "reason"}, // duplicate_id | timeout | error
		),
	}
	m.registry.MustRegister(m.queryDuration, m.queryTotal, m.queryErrors)
	return m
}

// Registry returns the registry for exposition
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterCache exports the read cache counters of src
func (m *Metrics) RegisterCache(src func() cache.Snapshot) error {
	return m.registry.Register(newCacheCollector(src))
}

// WritePrometheus writes the text exposition format to w
func (m *Metrics) WritePrometheus(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Wrap instruments every query next runs
func (m *Metrics) Wrap(next driver.Driver) driver.Driver {
	return &instrumented{next: next, m: m}
}

// From finds the Metrics instrumenting d, looking through wrapping drivers
func From(d driver.Driver) (*Metrics, bool) {
	for d != nil {
		if in, ok := d.(*instrumented); ok {
			return in.m, true
		}
		u, ok := d.(interface{ Unwrap() driver.Driver })
		if !ok {
			break
		}
		d = u.Unwrap()
	}
	return nil, false
}

type instrumented struct {
	next driver.Driver
	m    *Metrics
}

func (d *instrumented) Name() string                   { return d.next.Name() }
func (d *instrumented) Ping(ctx context.Context) error { return d.next.Ping(ctx) }
func (d *instrumented) Close() error                   { return d.next.Close() }

// Unwrap returns the instrumented driver
func (d *instrumented) Unwrap() driver.Driver { return d.next }

func (d *instrumented) Run(ctx context.Context, q *query.Query, opts driver.RunOptions) (*driver.Result, error) {
	name, op := d.next.Name(), string(q.Op)
	start := time.Now()
	res, err := d.next.Run(ctx, q, opts)
	d.m.queryDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
	d.m.queryTotal.WithLabelValues(name, q.Collection, op).Inc()
	if err != nil {
		d.m.queryErrors.WithLabelValues(name, q.Collection, op, reason(err)).Inc()
	}
	return res, err
}

func reason(err error) string {
	switch {
	case driver.IsDuplicateID(err):
		return "duplicate_id"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
