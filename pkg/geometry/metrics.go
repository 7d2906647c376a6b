package geometry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// cacheMetrics holds prometheus collectors for cache operations.
type cacheMetrics struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	merges   prometheus.Counter
	dropped  prometheus.Counter
	modules  prometheus.Gauge
	duration prometheus.Histogram
}

// newCacheMetrics creates the collectors and registers them with reg.
func newCacheMetrics(reg prometheus.Registerer) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildx",
			Subsystem: "geometry_cache",
			Name:      "hits_total",
			Help:      "Total number of module geometry lookups served from the cache",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildx",
			Subsystem: "geometry_cache",
			Name:      "misses_total",
			Help:      "Total number of module geometry lookups that found no cached entry",
		}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildx",
			Subsystem: "geometry_cache",
			Name:      "merges_total",
			Help:      "Total number of module merge computations",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildx",
			Subsystem: "geometry_cache",
			Name:      "dropped_elements_total",
			Help:      "Total number of elements dropped because their meshes did not merge",
		}),
		modules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "buildx",
			Subsystem: "geometry_cache",
			Name:      "modules",
			Help:      "Number of modules with cached geometry",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "buildx",
			Subsystem: "geometry_cache",
			Name:      "merge_duration_seconds",
			Help:      "Time spent merging one module",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.merges, m.dropped, m.modules, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *cacheMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) recordMerge(took time.Duration, dropped, modules int) {
	if m == nil {
		return
	}
	m.merges.Inc()
	m.dropped.Add(float64(dropped))
	m.modules.Set(float64(modules))
	m.duration.Observe(took.Seconds())
}
