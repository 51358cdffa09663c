package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteTotal counts cart price quotes by result.
	QuoteTotal *prometheus.CounterVec
	// SettlementTotal counts payment settlement outcomes.
	SettlementTotal *prometheus.CounterVec
	// SettlementDuration records settlement latency in seconds.
	SettlementDuration *prometheus.HistogramVec
	// PurchasesCreatedTotal counts purchase records written by settlement.
	PurchasesCreatedTotal prometheus.Counter
	// PurchasesSkippedTotal counts items skipped because the buyer already owned them.
	PurchasesSkippedTotal prometheus.Counter
	// NotifyTotal counts post-settlement notification attempts by result.
	NotifyTotal *prometheus.CounterVec
	// SettledProcessedTotal counts purchase.settled tasks handled by the worker.
	SettledProcessedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_quote_total",
			Help:      "Count of cart price quotes by result.",
		}, []string{"result"})
		SettlementTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_total",
			Help:      "Count of payment settlements by provider and outcome.",
		}, []string{"provider", "outcome"})
		SettlementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Latency of payment settlement in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"})
		PurchasesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_created_total",
			Help:      "Number of purchase records created by settlement.",
		})
		PurchasesSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_skipped_total",
			Help:      "Number of settled items skipped because the purchase already existed.",
		})
		NotifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_notify_total",
			Help:      "Count of post-settlement notifications by result.",
		}, []string{"result"})
		SettledProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_tasks_processed_total",
			Help:      "Count of purchase.settled tasks processed by the worker, by provider.",
		}, []string{"provider"})

		QuoteTotal = register(reg, QuoteTotal)
		SettlementTotal = register(reg, SettlementTotal)
		SettlementDuration = register(reg, SettlementDuration)
		PurchasesCreatedTotal = register(reg, PurchasesCreatedTotal)
		PurchasesSkippedTotal = register(reg, PurchasesSkippedTotal)
		NotifyTotal = register(reg, NotifyTotal)
		SettledProcessedTotal = register(reg, SettledProcessedTotal)
	})
}
