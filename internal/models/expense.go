package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ExpenseCategoryRefund  = "Refund"
	ExpenseCategoryGeneral = "General"
	ExpenseCategoryPayroll = "Payroll"
)

// ExpenseStatus tells whether the outflow has been disbursed
type ExpenseStatus string

const (
	ExpenseStatusPending ExpenseStatus = "pending"
	ExpenseStatusPaid    ExpenseStatus = "paid"
)

// Expense is a ledger outflow
type Expense struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID        uint            `gorm:"index" json:"tenant_id"`
	Category        string          `gorm:"type:varchar(50);index" json:"category"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Description     string          `gorm:"type:varchar(255)" json:"description"`
	ExpenseDate     time.Time       `json:"expense_date"`
	Notes           string          `gorm:"type:text" json:"notes"`
	Status          ExpenseStatus   `gorm:"type:varchar(20);default:'paid'" json:"status"`
	CancelledSaleID *uint           `gorm:"index" json:"cancelled_sale_id"`
	WorkflowID      *uint           `gorm:"index" json:"workflow_id"`
	RecordedBy      uint            `json:"recorded_by"`
}
