package observability

import "github.com/prometheus/client_golang/prometheus"

// ImportMetrics counts shipment reconciliation outcomes.
type ImportMetrics struct {
	rows      *prometheus.CounterVec
	groups    *prometheus.CounterVec
	surplus   prometheus.Counter
	reversals prometheus.Counter
}

// NewImportMetrics registers the reconciliation collectors.
func NewImportMetrics(registerer prometheus.Registerer) *ImportMetrics {
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_import_rows_total",
		Help: "Spreadsheet rows processed by validation status.",
	}, []string{"wizard", "status"})
	groups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_import_receipt_groups_total",
		Help: "Receipt groups synthesized by outcome.",
	}, []string{"status"})
	surplus := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_import_surplus_allocations_total",
		Help: "Allocations where the last line absorbed more than its open quantity.",
	})
	reversals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_import_reversals_total",
		Help: "Ledger reversals appended after movement cancellation or deletion.",
	})
	registerer.MustRegister(rows, groups, surplus, reversals)
	return &ImportMetrics{rows: rows, groups: groups, surplus: surplus, reversals: reversals}
}

// AddRows counts validated rows of a wizard.
func (m *ImportMetrics) AddRows(wizard, status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(wizard, status).Add(float64(n))
}

// ReceiptGroup counts one synthesized group.
func (m *ImportMetrics) ReceiptGroup(status string) {
	if m == nil {
		return
	}
	m.groups.WithLabelValues(status).Inc()
}

// Surplus counts one surplus absorption.
func (m *ImportMetrics) Surplus() {
	if m == nil {
		return
	}
	m.surplus.Inc()
}

// Reversal counts one appended reversal.
func (m *ImportMetrics) Reversal() {
	if m == nil {
		return
	}
	m.reversals.Inc()
}
