package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the subscription controller
type Metrics struct {
	// ActiveSubscriptions is the current number of live subscriptions
	ActiveSubscriptions prometheus.Gauge

	// TransactionsReceivedTotal counts delivered transactions by chain
	TransactionsReceivedTotal *prometheus.CounterVec

	// TransactionsDroppedTotal counts dedup-suppressed transactions by chain
	TransactionsDroppedTotal *prometheus.CounterVec

	// AttachFailuresTotal counts failed endpoint attaches by transport
	AttachFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all controller metrics
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mempoolwatch"
	}

	return &Metrics{
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "active",
			Help:      "Current number of live subscriptions",
		}),
		TransactionsReceivedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "transactions_received_total",
			Help:      "Transactions delivered to subscribers",
		}, []string{"chain"}),
		TransactionsDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "transactions_dropped_total",
			Help:      "Transactions suppressed as duplicates",
		}, []string{"chain"}),
		AttachFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriptions",
			Name:      "attach_failures_total",
			Help:      "Endpoint attach failures by transport",
		}, []string{"transport"}),
	}
}
