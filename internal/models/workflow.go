package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WorkflowOperation names a reconciliation operation
type WorkflowOperation string

const (
	WorkflowOperationCancel       WorkflowOperation = "cancel"
	WorkflowOperationTransfer     WorkflowOperation = "transfer"
	WorkflowOperationRefundUpdate WorkflowOperation = "refund_update"
)

// WorkflowStatus is the state of one reconciliation run
type WorkflowStatus string

const (
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// Step statuses
const (
	StepStatusDone       = "done"
	StepStatusFailed     = "failed"
	StepStatusRolledBack = "rolled_back"
)

// WorkflowStep is one entry of a workflow's step log
type WorkflowStep struct {
	Name   string    `json:"name"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// WorkflowResult holds the ids of the rows a workflow produced
type WorkflowResult struct {
	CancelledSaleID uint   `json:"cancelled_sale_id,omitempty"`
	NewClientID     uint   `json:"new_client_id,omitempty"`
	PaymentID       uint   `json:"payment_id,omitempty"`
	ExpenseIDs      []uint `json:"expense_ids,omitempty"`
}

// ReconciliationWorkflow records a cancel, transfer or refund update and doubles as the
// idempotency record for it.
type ReconciliationWorkflow struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID       uint              `gorm:"uniqueIndex:idx_workflows_tenant_key,priority:1" json:"tenant_id"`
	IdempotencyKey string            `gorm:"type:varchar(128);uniqueIndex:idx_workflows_tenant_key,priority:2" json:"idempotency_key"`
	RequestHash    string            `gorm:"type:varchar(64)" json:"request_hash"`
	Operation      WorkflowOperation `gorm:"type:varchar(20)" json:"operation"`
	Status         WorkflowStatus    `gorm:"type:varchar(20);index" json:"status"`

	PlotID          *uint `gorm:"index" json:"plot_id"`
	ClientID        *uint `gorm:"index" json:"client_id"`
	CancelledSaleID *uint `gorm:"index" json:"cancelled_sale_id"`
	OperatorID      uint  `json:"operator_id"`

	Request     datatypes.JSON `json:"request"`
	Steps       []WorkflowStep `gorm:"type:text;serializer:json" json:"steps"`
	Result      WorkflowResult `gorm:"type:text;serializer:json" json:"result"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at"`
}

// AddStep appends a step to the log
func (w *ReconciliationWorkflow) AddStep(name, status, detail string, at time.Time) {
	w.Steps = append(w.Steps, WorkflowStep{Name: name, Status: status, At: at, Detail: detail})
}
