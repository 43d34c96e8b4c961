package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefundStatus tracks disbursement of a cancellation refund
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusPartial   RefundStatus = "partial"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusNone      RefundStatus = "none"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundStatusPending:   {RefundStatusPending, RefundStatusPartial, RefundStatusCompleted, RefundStatusNone},
	RefundStatusNone:      {RefundStatusNone, RefundStatusPending, RefundStatusPartial, RefundStatusCompleted},
	RefundStatusPartial:   {RefundStatusPartial, RefundStatusCompleted},
	RefundStatusCompleted: {RefundStatusCompleted},
}

// Valid reports whether s is a known refund status
func (s RefundStatus) Valid() bool {
	_, ok := refundTransitions[s]
	return ok
}

// IsRefunded reports whether money has been (at least partly) paid back
func (s RefundStatus) IsRefunded() bool {
	return s == RefundStatusCompleted || s == RefundStatusPartial
}

// CanTransitionTo reports whether the refund may move from s to next.
// Refund progress only moves forward.
func (s RefundStatus) CanTransitionTo(next RefundStatus) bool {
	return allowed(refundTransitions[s], next)
}

// OutcomeType classifies how a cancelled sale was resolved
type OutcomeType string

const (
	OutcomePending       OutcomeType = "pending"
	OutcomeRefunded      OutcomeType = "refunded"
	OutcomePartialRefund OutcomeType = "partial_refund"
	OutcomeRetained      OutcomeType = "retained"
	OutcomeTransferred   OutcomeType = "transferred"
)

// OutcomeFor derives the outcome from the refund status and net refund
func OutcomeFor(status RefundStatus, netRefund decimal.Decimal) OutcomeType {
	switch status {
	case RefundStatusCompleted:
		if netRefund.IsPositive() {
			return OutcomeRefunded
		}
		return OutcomeRetained
	case RefundStatusPartial:
		return OutcomePartialRefund
	case RefundStatusNone:
		return OutcomeRetained
	default:
		return OutcomePending
	}
}

// CancelledSale is the audit record written when a sale is cancelled or transferred
type CancelledSale struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID   uint   `gorm:"index" json:"tenant_id"`
	ClientID   uint   `gorm:"index" json:"client_id"`
	PlotID     uint   `gorm:"index" json:"plot_id"`
	ProjectID  uint   `json:"project_id"`
	ClientName string `gorm:"type:varchar(255)" json:"client_name"`
	PlotNumber string `gorm:"type:varchar(50)" json:"plot_number"`

	TotalPrice      decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_price"`
	TotalPaid       decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_paid"`
	RefundAmount    decimal.Decimal `gorm:"type:decimal(15,2)" json:"refund_amount"`
	CancellationFee decimal.Decimal `gorm:"type:decimal(15,2)" json:"cancellation_fee"`
	NetRefund       decimal.Decimal `gorm:"type:decimal(15,2)" json:"net_refund"`
	// ExpensedAmount is the sum of Refund expenses recorded for this row so far.
	ExpensedAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"expensed_amount"`

	RefundStatus RefundStatus `gorm:"type:varchar(20);index" json:"refund_status"`
	OutcomeType  OutcomeType  `gorm:"type:varchar(20);index" json:"outcome_type"`
	Reason       string       `gorm:"type:text" json:"reason"`
	Notes        string       `gorm:"type:text" json:"notes"`

	TransferredToClientID *uint     `json:"transferred_to_client_id"`
	TransferredToPlotID   *uint     `json:"transferred_to_plot_id"`
	CancelledBy           uint      `json:"cancelled_by"`
	CancelledAt           time.Time `json:"cancelled_at"`
	WorkflowID            *uint     `gorm:"index" json:"workflow_id"`
}

// Retained is what the company keeps: total paid minus net refund
func (c CancelledSale) Retained() decimal.Decimal {
	return c.TotalPaid.Sub(c.NetRefund)
}
