package reconcile

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"estate_backoffice/internal/models"
)

// CancelledSaleFilter narrows ListCancelledSales
type CancelledSaleFilter struct {
	RefundStatus models.RefundStatus
	Outcome      models.OutcomeType
	ProjectID    uint
	Limit        int
	Offset       int
}

// GetWorkflow loads a workflow of the actor's tenant
func (e *Engine) GetWorkflow(ctx context.Context, actor models.Actor, id uint) (*models.ReconciliationWorkflow, error) {
	var wf models.ReconciliationWorkflow
	err := e.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, actor.TenantID).First(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("workflow %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	return &wf, nil
}

// GetCancelledSale loads a cancelled sale of the actor's tenant
func (e *Engine) GetCancelledSale(ctx context.Context, actor models.Actor, id uint) (*models.CancelledSale, error) {
	var cs models.CancelledSale
	err := e.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, actor.TenantID).First(&cs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("cancelled sale %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load cancelled sale: %w", err)
	}
	return &cs, nil
}

// ListCancelledSales lists the tenant's cancelled sales, newest first
func (e *Engine) ListCancelledSales(ctx context.Context, actor models.Actor, f CancelledSaleFilter) ([]models.CancelledSale, error) {
	q := e.db.WithContext(ctx).Where("tenant_id = ?", actor.TenantID)
	if f.RefundStatus != "" {
		if !f.RefundStatus.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRefundStatus, f.RefundStatus)
		}
		q = q.Where("refund_status = ?", f.RefundStatus)
	}
	if f.Outcome != "" {
		q = q.Where("outcome_type = ?", f.Outcome)
	}
	if f.ProjectID != 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var sales []models.CancelledSale
	if err := q.Order("cancelled_at DESC, id DESC").Limit(f.Limit).Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("list cancelled sales: %w", err)
	}
	return sales, nil
}
