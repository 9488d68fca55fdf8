// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"stockledger-api/internal/guard"
	"stockledger-api/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockledger"

// Metrics groups every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	ledgerOperations *prometheus.CounterVec
	casConflicts     *prometheus.CounterVec
	guardCalls       *prometheus.CounterVec
	guardState       *prometheus.GaugeVec
	auditFailures    *prometheus.CounterVec

	inventoryRecords    prometheus.Gauge
	inventoryQuantity   prometheus.Gauge
	inventoryOutOfStock prometheus.Gauge
	inventoryLowStock   prometheus.Gauge
}

// New creates the collectors on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ledgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cas_conflicts_total",
			Help:      "Compare-and-swap version conflicts observed by the ledger.",
		}, []string{"operation"}),
		guardCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_calls_total",
			Help:      "Guarded dependency call attempts by outcome.",
		}, []string{"dependency", "outcome"}),
		guardState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "guard_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"dependency"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit entries that could not be written, by sink.",
		}, []string{"sink"}),
		inventoryRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_records",
			Help:      "Number of quantity records.",
		}),
		inventoryQuantity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_quantity_total",
			Help:      "Sum of all on-hand quantities.",
		}),
		inventoryOutOfStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_out_of_stock",
			Help:      "Records with zero quantity.",
		}),
		inventoryLowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_low_stock",
			Help:      "Records below the low-stock threshold.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ledgerOperations,
		m.casConflicts,
		m.guardCalls,
		m.guardState,
		m.auditFailures,
		m.inventoryRecords,
		m.inventoryQuantity,
		m.inventoryOutOfStock,
		m.inventoryLowStock,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// LedgerOperation counts a finished ledger operation.
func (m *Metrics) LedgerOperation(operation, outcome string) {
	m.ledgerOperations.WithLabelValues(operation, outcome).Inc()
}

// CASConflict counts a lost compare-and-swap.
func (m *Metrics) CASConflict(operation string) {
	m.casConflicts.WithLabelValues(operation).Inc()
}

// AuditFailure counts an audit entry dropped by sink.
func (m *Metrics) AuditFailure(sink string) {
	m.auditFailures.WithLabelValues(sink).Inc()
}

// GuardCall implements guard.Observer.
func (m *Metrics) GuardCall(dependency, outcome string) {
	m.guardCalls.WithLabelValues(dependency, outcome).Inc()
}

// GuardState implements guard.Observer.
func (m *Metrics) GuardState(dependency string, state guard.State) {
	m.guardState.WithLabelValues(dependency).Set(float64(state))
}

// InventoryStats publishes the latest reporting snapshot.
func (m *Metrics) InventoryStats(s model.InventoryStats) {
	m.inventoryRecords.Set(float64(s.TotalRecords))
	m.inventoryQuantity.Set(float64(s.TotalQuantity))
	m.inventoryOutOfStock.Set(float64(s.OutOfStock))
	m.inventoryLowStock.Set(float64(s.LowStock))
}

var _ guard.Observer = (*Metrics)(nil)
