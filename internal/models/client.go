package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/teambition/rrule-go"
	"gorm.io/gorm"
)

// SaleStatus is the lifecycle of a sale
type SaleStatus string

const (
	SaleStatusOngoing   SaleStatus = "ongoing"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

var saleTransitions = map[SaleStatus][]SaleStatus{
	SaleStatusOngoing:   {SaleStatusCompleted, SaleStatusCancelled},
	SaleStatusCompleted: {SaleStatusOngoing, SaleStatusCancelled},
}

// CanTransitionTo reports whether moving the sale from s to next is allowed.
// Cancelled is terminal.
func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	return allowed(saleTransitions[s], next)
}

// PaymentPlan is how a buyer pays for a plot
type PaymentPlan string

const (
	PaymentPlanCash        PaymentPlan = "cash"
	PaymentPlanInstallment PaymentPlan = "installment"
)

// Client is a buyer's sale of one plot (a "client record").
type Client struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID   uint   `gorm:"index" json:"tenant_id"`
	Name       string `gorm:"type:varchar(255)" json:"name"`
	Email      string `gorm:"type:varchar(255)" json:"email"`
	Phone      string `gorm:"type:varchar(50)" json:"phone"`
	NationalID string `gorm:"type:varchar(50)" json:"national_id"`

	ProjectID uint `gorm:"index" json:"project_id"`
	PlotID    uint `gorm:"index" json:"plot_id"`

	TotalPrice decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_price"`
	Discount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"discount"`
	TotalPaid  decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_paid"`
	Balance    decimal.Decimal `gorm:"type:decimal(15,2)" json:"balance"`
	Status     SaleStatus      `gorm:"type:varchar(20);default:'ongoing';index" json:"status"`

	PaymentPlan       PaymentPlan     `gorm:"type:varchar(20);default:'cash'" json:"payment_plan"`
	InstallmentRule   *string         `gorm:"type:text" json:"installment_rule"` // RFC 5545 RRULE string
	InstallmentAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"installment_amount"`
	InstallmentStart  *time.Time      `json:"installment_start"`
	// LastRemindedDue is the due date of the latest installment reminder sent
	LastRemindedDue *time.Time `json:"last_reminded_due"`

	NotificationChannel NotificationChannel `gorm:"type:varchar(20);default:'email'" json:"notification_channel"`
	TransferredFromID   *uint               `gorm:"index" json:"transferred_from_id"`
}

// AlreadyReminded reports whether a reminder for the installment due at due was sent
func (c Client) AlreadyReminded(due time.Time) bool {
	if c.LastRemindedDue == nil {
		return false
	}
	return c.LastRemindedDue.UTC().Format("2006-01-02") == due.UTC().Format("2006-01-02")
}

// NetPrice is the price after discount
func (c Client) NetPrice() decimal.Decimal {
	return c.TotalPrice.Sub(c.Discount)
}

// RecomputeBalance restores balance = total_price - discount - total_paid
func (c *Client) RecomputeBalance() {
	c.Balance = c.NetPrice().Sub(c.TotalPaid)
}

// IsActive reports whether the sale still counts towards active balances
func (c Client) IsActive() bool {
	return c.Status != SaleStatusCancelled
}

// InstallmentDue is one upcoming installment
type InstallmentDue struct {
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
}

// UpcomingInstallments lists up to limit installments due after from, stopping once the
// outstanding balance is covered. The last installment is capped at what remains.
func (c Client) UpcomingInstallments(from time.Time, limit int) ([]InstallmentDue, error) {
	if c.PaymentPlan != PaymentPlanInstallment || c.InstallmentRule == nil || *c.InstallmentRule == "" {
		return nil, nil
	}
	if !c.Balance.IsPositive() || !c.InstallmentAmount.IsPositive() {
		return nil, nil
	}

	rule, err := rrule.StrToRRule(*c.InstallmentRule)
	if err != nil {
		return nil, err
	}
	start := c.CreatedAt
	if c.InstallmentStart != nil {
		start = *c.InstallmentStart
	}
	rule.DTStart(start)

	var dues []InstallmentDue
	remaining := c.Balance
	next := rule.After(from, true)
	for !next.IsZero() && len(dues) < limit && remaining.IsPositive() {
		amount := decimal.Min(c.InstallmentAmount, remaining)
		dues = append(dues, InstallmentDue{DueDate: next, Amount: amount})
		remaining = remaining.Sub(amount)
		next = rule.After(next, false)
	}
	return dues, nil
}

// NextInstallment returns the next installment after from, if any
func (c Client) NextInstallment(from time.Time) (*InstallmentDue, error) {
	dues, err := c.UpcomingInstallments(from, 1)
	if err != nil || len(dues) == 0 {
		return nil, err
	}
	return &dues[0], nil
}
