package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the health manager
type Metrics struct {
	// ProbesTotal counts probes by outcome ("healthy"/"unhealthy")
	ProbesTotal *prometheus.CounterVec

	// CacheHitsTotal counts health checks answered from cache
	CacheHitsTotal prometheus.Counter

	// ProbeLatency observes probe round-trip time in seconds
	ProbeLatency prometheus.Histogram
}

// NewMetrics creates and registers all health manager metrics
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mempoolwatch"
	}

	return &Metrics{
		ProbesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Total number of endpoint liveness probes by outcome",
		}, []string{"result"}),
		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "cache_hits_total",
			Help:      "Health checks answered from the record cache",
		}),
		ProbeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probe_latency_seconds",
			Help:      "Endpoint probe round-trip time",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
