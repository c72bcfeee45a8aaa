// Package metrics exposes Prometheus collectors for ledger operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

// LedgerMetrics holds the collectors updated by the ledger service.
type LedgerMetrics struct {
	InvoicesCreated   prometheus.Counter
	PaymentsCreated   prometheus.Counter
	PaymentsExecuted  *prometheus.CounterVec // by status: executed, failed, rejected
	AmountSettled     prometheus.Counter
	SettlementLatency prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the ledger collectors and registers them on a dedicated
// registry, so several instances can coexist (one per test, for example).
func New() *LedgerMetrics {
	m := &LedgerMetrics{
		InvoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_created_total",
			Help:      "Total number of invoices created.",
		}),
		PaymentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_created_total",
			Help:      "Total number of payments created.",
		}),
		PaymentsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_executions_total",
			Help:      "Total number of payment executions by outcome.",
		}, []string{"status"}),
		AmountSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amount_settled_total",
			Help:      "Sum of transaction amounts applied to invoices.",
		}),
		SettlementLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Time spent validating and applying a payment.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.InvoicesCreated,
		m.PaymentsCreated,
		m.PaymentsExecuted,
		m.AmountSettled,
		m.SettlementLatency,
	)
	return m
}

// Registry returns the registry holding the ledger collectors.
func (m *LedgerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the ledger collectors in the Prometheus exposition format.
func (m *LedgerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
