package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentMethod is how money was received
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "Cash"
	PaymentMethodBank        PaymentMethod = "Bank"
	PaymentMethodMobileMoney PaymentMethod = "Mobile Money"
	PaymentMethodCheque      PaymentMethod = "Cheque"
	PaymentMethodTransfer    PaymentMethod = "Transfer"
)

// Payment is money received against a sale. Rows are never updated.
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID    uint            `gorm:"index" json:"tenant_id"`
	ClientID    uint            `gorm:"index" json:"client_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Method      PaymentMethod   `gorm:"type:varchar(50)" json:"method"`
	Reference   string          `gorm:"type:varchar(100)" json:"reference"`
	PaymentDate time.Time       `json:"payment_date"`
	Notes       string          `gorm:"type:text" json:"notes"`
	RecordedBy  uint            `json:"recorded_by"`
	WorkflowID  *uint           `gorm:"index" json:"workflow_id"`
}

// IsManual reports whether an operator may record this method directly.
// Transfer payments are only written when a sale moves between plots.
func (m PaymentMethod) IsManual() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBank, PaymentMethodMobileMoney, PaymentMethodCheque:
		return true
	}
	return false
}
