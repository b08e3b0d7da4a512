package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ammar0144/doc4go/pkg/cache"
)

// cacheCollector reads cache counters at scrape time
type cacheCollector struct {
	src func() cache.Snapshot

	hits          *prometheus.Desc
	misses        *prometheus.Desc
	errors        *prometheus.Desc
	bypassed      *prometheus.Desc
	invalidations *prometheus.Desc
	keysDeleted   *prometheus.Desc
	hitRate       *prometheus.Desc
}

func newCacheCollector(src func() cache.Snapshot) *cacheCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("doc4go", "cache", name), help, nil, nil)
	}
	return &cacheCollector{
		src:           src,
		hits:          desc("hits_total", "Reads answered from the cache"),
		misses:        desc("misses_total", "Reads that went to the database"),
		errors:        desc("errors_total", "Redis failures swallowed by the cache"),
		bypassed:      desc("bypassed_total", "Reads the cache does not handle"),
		invalidations: desc("invalidations_total", "Collection invalidations after writes"),
		keysDeleted:   desc("keys_deleted_total", "Keys removed by invalidations"),
		hitRate:       desc("hit_rate_percent", "Hits over hits plus misses"),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.hits, c.misses, c.errors, c.bypassed, c.invalidations, c.keysDeleted, c.hitRate} {
		ch <- d
	}
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.hits, s.Hits)
	counter(c.misses, s.Misses)
	counter(c.errors, s.Errors)
	counter(c.bypassed, s.Bypassed)
	counter(c.invalidations, s.Invalidations)
	counter(c.keysDeleted, s.KeysDeleted)
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, s.HitRate)
}
