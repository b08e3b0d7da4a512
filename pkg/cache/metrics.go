package cache

import (
	"sync/atomic"
	"time"
)

// Metrics tracks read cache statistics with lock-free counters
type Metrics struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	errors   atomic.Uint64
	bypassed atomic.Uint64 // queries the cache does not handle

	gets    atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64

	// nanoseconds
	getLatency atomic.Uint64
	setLatency atomic.Uint64

	invalidations atomic.Uint64
	keysDeleted   atomic.Uint64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordHit()    { m.hits.Add(1) }
func (m *Metrics) RecordMiss()   { m.misses.Add(1) }
func (m *Metrics) RecordError()  { m.errors.Add(1) }
func (m *Metrics) RecordBypass() { m.bypassed.Add(1) }

// RecordGet records a cache read with latency
func (m *Metrics) RecordGet(d time.Duration) {
	m.gets.Add(1)
	m.getLatency.Add(uint64(d.Nanoseconds()))
}

// RecordSet records a cache write with latency
func (m *Metrics) RecordSet(d time.Duration) {
	m.sets.Add(1)
	m.setLatency.Add(uint64(d.Nanoseconds()))
}

// RecordInvalidation records one collection invalidation and how many keys it removed
func (m *Metrics) RecordInvalidation(keys int) {
	m.invalidations.Add(1)
	m.keysDeleted.Add(uint64(keys))
	m.deletes.Add(1)
}

// Snapshot returns a point-in-time copy of the counters
func (m *Metrics) Snapshot() Snapshot {
	hits := m.hits.Load()
	misses := m.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	gets := m.gets.Load()
	sets := m.sets.Load()
	var avgGet, avgSet time.Duration
	if gets > 0 {
		avgGet = time.Duration(m.getLatency.Load() / gets)
	}
	if sets > 0 {
		avgSet = time.Duration(m.setLatency.Load() / sets)
	}

	return Snapshot{
		Hits:          hits,
		Misses:        misses,
		Errors:        m.errors.Load(),
		Bypassed:      m.bypassed.Load(),
		HitRate:       hitRate,
		Gets:          gets,
		Sets:          sets,
		Deletes:       m.deletes.Load(),
		AvgGetLatency: avgGet,
		AvgSetLatency: avgSet,
		Invalidations: m.invalidations.Load(),
		KeysDeleted:   m.keysDeleted.Load(),
	}
}

// Reset zeroes all counters
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.hits, &m.misses, &m.errors, &m.bypassed,
		&m.gets, &m.sets, &m.deletes,
		&m.getLatency, &m.setLatency,
		&m.invalidations, &m.keysDeleted,
	} {
		c.Store(0)
	}
}

// Snapshot is a point-in-time copy of Metrics
type Snapshot struct {
	Hits     uint64
	Misses   uint64
	Errors   uint64
	Bypassed uint64
	HitRate  float64 // Percentage

	Gets    uint64
	Sets    uint64
	Deletes uint64

	AvgGetLatency time.Duration
	AvgSetLatency time.Duration

	Invalidations uint64
	KeysDeleted   uint64
}
