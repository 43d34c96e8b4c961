// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "estate"

// Reconciliation results
const (
	ResultCompleted = "completed"
	ResultReplayed  = "replayed"
	ResultRejected  = "rejected"
	ResultConflict  = "conflict"
	ResultFailed    = "failed"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ReconciliationOps      *prometheus.CounterVec
	ReconciliationDuration *prometheus.HistogramVec
	RefundExpenseAmount    prometheus.Counter
	PaymentsRecorded       prometheus.Counter
	TasksExecuted          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is not nil
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReconciliationOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "operations_total",
			Help:      "Reconciliation operations by operation and result.",
		}, []string{"operation", "result"}),
		ReconciliationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "duration_seconds",
			Help:      "Time spent executing reconciliation operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		RefundExpenseAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "refund_expense_amount_total",
			Help:      "Sum of refund expenses recorded by reconciliation.",
		}),
		PaymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "payments_recorded_total",
			Help:      "Payments recorded against sales.",
		}),
		TasksExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_executed_total",
			Help:      "Scheduled task executions by task and status.",
		}, []string{"task", "status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ReconciliationOps,
			m.ReconciliationDuration,
			m.RefundExpenseAmount,
			m.PaymentsRecorded,
			m.TasksExecuted,
		)
	}
	return m
}

// ObserveReconciliation counts one operation and its duration
func (m *Metrics) ObserveReconciliation(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReconciliationOps.WithLabelValues(operation, result).Inc()
	m.ReconciliationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddRefundExpense adds a recorded refund expense amount
func (m *Metrics) AddRefundExpense(amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	m.RefundExpenseAmount.Add(amount.InexactFloat64())
}

// IncPayments counts a recorded payment
func (m *Metrics) IncPayments() {
	if m == nil {
		return
	}
	m.PaymentsRecorded.Inc()
}

// ObserveTask counts a worker task run
func (m *Metrics) ObserveTask(task, status string) {
	if m == nil {
		return
	}
	m.TasksExecuted.WithLabelValues(task, status).Inc()
}
