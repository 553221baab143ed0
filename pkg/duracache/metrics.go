package duracache

// metrics.go is a thin abstraction over Prometheus so the cache can be used
// with or without metrics. When the caller passes a *prometheus.Registry via
// WithMetrics, labeled collectors are created and registered; otherwise a
// no-op sink is used and the hot path does not pay for metric updates.
//
// Metrics are tier-level ("memory" or "disk"); aggregation across tiers is
// left to the Prometheus side via sum().
//
// © 2025 duracache authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsSink abstracts the concrete backend (Prometheus vs noop). Not
// exposed outside the package; Cache only knows about these methods.
type metricsSink interface {
	incHit(tier string)
	incMiss()
	incEviction(tier string)
	incPromotion()
	setMemoryStats(items int, bytes int64)
	setDiskStats(items int, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) incHit(string)             {}
func (noopMetrics) incMiss()                  {}
func (noopMetrics) incEviction(string)        {}
func (noopMetrics) incPromotion()             {}
func (noopMetrics) setMemoryStats(int, int64) {}
func (noopMetrics) setDiskStats(int, int64)   {}

type promMetrics struct {
	hits       *prometheus.CounterVec
	misses     prometheus.Counter
	evictions  *prometheus.CounterVec
	promotions prometheus.Counter

	memItems  prometheus.Gauge
	memBytes  prometheus.Gauge
	diskItems prometheus.Gauge
	diskBytes prometheus.Gauge
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	tierLabel := []string{"tier"}

	pm := &promMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duracache",
			Name:      "hits_total",
			Help:      "Number of cache hits, labeled by the tier that served them.",
		}, tierLabel),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duracache",
			Name:      "misses_total",
			Help:      "Number of cache misses.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duracache",
			Name:      "evictions_total",
			Help:      "Number of entries evicted, labeled by tier.",
		}, tierLabel),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duracache",
			Name:      "promotions_total",
			Help:      "Number of disk entries promoted into the memory tier.",
		}),
		memItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duracache",
			Name:      "memory_items",
			Help:      "Current number of entries held in the memory tier.",
		}),
		memBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duracache",
			Name:      "memory_bytes",
			Help:      "Current serialized-value bytes held in the memory tier.",
		}),
		diskItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duracache",
			Name:      "disk_items",
			Help:      "Current number of entries held in the disk tier.",
		}),
		diskBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duracache",
			Name:      "disk_bytes",
			Help:      "Current on-disk bytes held in the disk tier.",
		}),
	}

	reg.MustRegister(pm.hits, pm.misses, pm.evictions, pm.promotions,
		pm.memItems, pm.memBytes, pm.diskItems, pm.diskBytes)
	return pm
}

func (m *promMetrics) incHit(tier string)      { m.hits.WithLabelValues(tier).Inc() }
func (m *promMetrics) incMiss()                { m.misses.Inc() }
func (m *promMetrics) incEviction(tier string) { m.evictions.WithLabelValues(tier).Inc() }
func (m *promMetrics) incPromotion()           { m.promotions.Inc() }

func (m *promMetrics) setMemoryStats(items int, bytes int64) {
	m.memItems.Set(float64(items))
	m.memBytes.Set(float64(bytes))
}

func (m *promMetrics) setDiskStats(items int, bytes int64) {
	m.diskItems.Set(float64(items))
	m.diskBytes.Set(float64(bytes))
}

// newMetricsSink decides which implementation to use.
func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
